package hunk

import (
	"encoding/binary"
	"testing"

	"github.com/hotdoglinux/amiganarrator/internal/emulator"
	"gopkg.in/yaml.v3"
)

// goldenCase is one entry of a table-driven fixture describing a BSS
// hunk's size and its expected base in the hunk table.
// Expressed in YAML rather than Go literals so the fixture table can
// grow without touching test code.
type goldenCase struct {
	Name      string `yaml:"name"`
	BSSWords  uint32 `yaml:"bss_words"`
	WantBase0 uint32 `yaml:"want_base0"`
}

const goldenFixtures = `
- name: single-word-bss
  bss_words: 1
  want_base0: 0
- name: larger-bss
  bss_words: 64
  want_base0: 0
`

func TestLoadBSSHunkGolden(t *testing.T) {
	var cases []goldenCase
	if err := yaml.Unmarshal([]byte(goldenFixtures), &cases); err != nil {
		t.Fatalf("unmarshal fixtures: %v", err)
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			emu, err := emulator.New(0x10000)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer emu.Close()

			image := buildImage(
				header(0, 0, c.BSSWords),
				be32(TagBSS), be32(c.BSSWords),
				be32(TagEnd),
			)

			table, err := Load(emu, image)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(table) != 1 || table[0] != c.WantBase0 {
				t.Fatalf("hunk table = %v, want [%d]", table, c.WantBase0)
			}
		})
	}
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func buildImage(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func header(first, last uint32, sizes ...uint32) []byte {
	out := be32(TagHeader)
	out = append(out, be32(0)...) // empty name list
	out = append(out, be32(0)...) // table size (unused)
	out = append(out, be32(first)...)
	out = append(out, be32(last)...)
	for _, s := range sizes {
		out = append(out, be32(s)...)
	}
	return out
}

func TestLoadSingleCodeHunk(t *testing.T) {
	emu, err := emulator.New(0x10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer emu.Close()

	image := buildImage(
		header(0, 0, 2),
		be32(TagCode), be32(2), be32(0x11111111), be32(0x22222222),
		be32(TagEnd),
	)

	table, err := Load(emu, image)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table) != 1 || table[0] != 0 {
		t.Fatalf("hunk table = %v, want [0]", table)
	}
	if got := emu.Read32(0); got != 0x11111111 {
		t.Errorf("ram[0] = 0x%x, want 0x11111111", got)
	}
	if got := emu.Read32(4); got != 0x22222222 {
		t.Errorf("ram[4] = 0x%x, want 0x22222222", got)
	}
}

func TestLoadAppliesReloc32(t *testing.T) {
	emu, err := emulator.New(0x10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer emu.Close()

	// Hunk 0: CODE with a longword at offset 0 that reloc32 adjusts by
	// hunk 1's base. Hunk 1: a second CODE hunk placed right after.
	image := buildImage(
		header(0, 1, 1, 1),
		be32(TagCode), be32(1), be32(0x00000000), // hunk 0, one longword (placeholder)
		be32(TagReloc32),
		be32(1), be32(1), be32(0), // 1 record: hunk 1, offset 0
		be32(0), // terminator
		be32(TagEnd),
		be32(TagCode), be32(1), be32(0xCAFEBABE), // hunk 1
		be32(TagEnd),
	)

	table, err := Load(emu, image)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("hunk table = %v, want 2 entries", table)
	}
	want := table[1] // hunk_base[1]
	if got := emu.Read32(0); got != want {
		t.Errorf("ram[0] after reloc = 0x%x, want 0x%x", got, want)
	}
}

func TestLoadZeroHunksNoMutation(t *testing.T) {
	emu, err := emulator.New(0x10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer emu.Close()

	// first=1, last=0 => numHunks = last-first+1 = 0
	zero := header(1, 0)
	table, err := Load(emu, zero)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("table = %v, want empty", table)
	}
	if got := emu.Read32(0); got != 0 {
		t.Errorf("ram[0] = 0x%x, want 0 (no mutation)", got)
	}
}

func TestLoadUnknownHunkTypeFails(t *testing.T) {
	emu, err := emulator.New(0x10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer emu.Close()

	image := buildImage(
		header(0, 0, 0),
		be32(0xDEADBEEF),
	)

	_, err = Load(emu, image)
	if err == nil {
		t.Fatal("expected error for unknown hunk type")
	}
}
