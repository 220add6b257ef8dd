// Package hunk parses the Amiga executable "hunk" file format and lays
// the result out in emulated RAM.
package hunk

import (
	"encoding/binary"

	"github.com/hotdoglinux/amiganarrator/internal/abierr"
	"github.com/hotdoglinux/amiganarrator/internal/emulator"
)

// Hunk type tags (spec.md §3, grounded byte-for-byte in
// original_source/narrator.c's process_hunks and independently
// cross-checked against tautologico-amginspect's hunk dumper).
const (
	TagUnit    = 0x3E7
	TagName    = 0x3E8
	TagCode    = 0x3E9
	TagData    = 0x3EA
	TagBSS     = 0x3EB
	TagReloc32 = 0x3EC
	TagReloc16 = 0x3ED
	TagEnd     = 0x3F2
	TagHeader  = 0x3F3
)

// Table is the ordered sequence of base addresses, one per non-reloc,
// non-terminator hunk, in load order (spec.md §3 "Hunk table").
type Table []uint32

// cursor walks a byte slice as a stream of big-endian 32-bit longwords.
type cursor struct {
	data []byte
	pos  int // byte offset
}

func (c *cursor) eof() bool {
	return c.pos >= len(c.data)
}

func (c *cursor) longword() (uint32, error) {
	if c.pos+4 > len(c.data) {
		return 0, abierr.Newf(abierr.Format, "premature EOF at offset %d", c.pos)
	}
	v := binary.BigEndian.Uint32(c.data[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *cursor) skip(n int) {
	c.pos += n
}

// Load parses image (a full hunk-file byte buffer) and lays code/data/BSS
// hunks into emu's RAM starting at address 0, applying RELOC32 fixups.
// Implements the two-pass algorithm of spec.md §4.1: pass one places each
// hunk and records RELOC32 cursor positions without decoding them; pass
// two revisits those positions and rewrites relocated longwords.
func Load(emu *emulator.Emulator, image []byte) (Table, error) {
	c := &cursor{data: image}

	tag, err := c.longword()
	if err != nil {
		return nil, err
	}
	if tag != TagHeader {
		return nil, abierr.Newf(abierr.Format, "expected HEADER (0x%x), got 0x%x at offset 0", TagHeader, tag)
	}

	// HEADER: table name list (skipped, always empty for our binaries),
	// table size, first hunk, last hunk, then (last-first+1) sizes.
	if err := skipNameList(c); err != nil {
		return nil, err
	}
	tableSize, err := c.longword()
	if err != nil {
		return nil, err
	}
	first, err := c.longword()
	if err != nil {
		return nil, err
	}
	last, err := c.longword()
	if err != nil {
		return nil, err
	}
	_ = tableSize

	numHunks := int(last) - int(first) + 1
	if numHunks < 0 {
		numHunks = 0
	}
	for i := 0; i < numHunks; i++ {
		if _, err := c.longword(); err != nil { // size word, ignored
			return nil, err
		}
	}

	if numHunks == 0 {
		return Table{}, nil // boundary: hunk count zero, no RAM mutation
	}

	hunkBase := make(Table, numHunks)
	memPos := uint32(0)
	relocCursors := make(map[int]int) // hunk index -> byte offset of its RELOC32 table
	endCount := 0
	hunkIdx := 0

	for endCount < numHunks {
		if c.eof() {
			return nil, abierr.Newf(abierr.Format, "premature EOF after %d of %d hunks", endCount, numHunks)
		}
		tag, err := c.longword()
		if err != nil {
			return nil, err
		}

		switch tag {
		case TagCode, TagData:
			if hunkIdx >= numHunks {
				return nil, abierr.Newf(abierr.Format, "hunk index %d out of range (table size %d)", hunkIdx, numHunks)
			}
			hunkBase[hunkIdx] = memPos
			n, err := c.longword()
			if err != nil {
				return nil, err
			}
			nbytes := int(n) * 4
			if c.pos+nbytes > len(c.data) {
				return nil, abierr.Newf(abierr.Format, "premature EOF reading %d longwords at offset %d", n, c.pos)
			}
			emu.WriteBlock(memPos, c.data[c.pos:c.pos+nbytes])
			c.skip(nbytes)
			memPos += uint32(nbytes)

		case TagBSS:
			if hunkIdx >= numHunks {
				return nil, abierr.Newf(abierr.Format, "hunk index %d out of range (table size %d)", hunkIdx, numHunks)
			}
			hunkBase[hunkIdx] = memPos
			n, err := c.longword()
			if err != nil {
				return nil, err
			}
			memPos += uint32(n) * 4

		case TagReloc32:
			relocCursors[hunkIdx] = c.pos
			if err := skipReloc32Table(c); err != nil {
				return nil, err
			}

		case TagEnd:
			endCount++
			hunkIdx++

		default:
			return nil, abierr.Newf(abierr.Format, "unhandled hunk type 0x%x at offset %d", tag, c.pos-4)
		}
	}

	// Pass two: revisit each recorded RELOC32 table and apply fixups.
	for idx, pos := range relocCursors {
		if idx < 0 || idx >= numHunks {
			return nil, abierr.Newf(abierr.Format, "reloc32 hunk index %d out of range", idx)
		}
		rc := &cursor{data: image, pos: pos}
		for {
			count, err := rc.longword()
			if err != nil {
				return nil, err
			}
			if count == 0 {
				break
			}
			refHunk, err := rc.longword()
			if err != nil {
				return nil, err
			}
			if int(refHunk) >= numHunks {
				return nil, abierr.Newf(abierr.Format, "reloc32 references hunk index %d beyond highest loaded hunk %d", refHunk, numHunks-1)
			}
			base := hunkBase[refHunk]
			for i := uint32(0); i < count; i++ {
				offset, err := rc.longword()
				if err != nil {
					return nil, err
				}
				cur := emu.Read32(offset)
				emu.Write32(offset, cur+base)
			}
		}
	}

	return hunkBase, nil
}

func skipNameList(c *cursor) error {
	for {
		n, err := c.longword()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		c.skip(int(n) * 4)
	}
}

func skipReloc32Table(c *cursor) error {
	for {
		count, err := c.longword()
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		c.skip(4) // hunk index
		c.skip(int(count) * 4)
	}
}
