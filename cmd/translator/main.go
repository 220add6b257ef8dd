// Command translator hosts translator.library: it converts English text
// into the phonetic notation narrator.device expects.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hotdoglinux/amiganarrator/internal/abi"
	"github.com/hotdoglinux/amiganarrator/internal/abierr"
	"github.com/hotdoglinux/amiganarrator/internal/emulator"
	"github.com/hotdoglinux/amiganarrator/internal/hunk"
	glog "github.com/hotdoglinux/amiganarrator/internal/log"
	"github.com/hotdoglinux/amiganarrator/internal/pcm"
	"github.com/hotdoglinux/amiganarrator/internal/romtag"
	"github.com/hotdoglinux/amiganarrator/internal/ui/colorize"
)

const outputCapacity = 8192

var (
	libraryFile string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "translator <text>",
		Short: "Emulate translator.library and print phonetic text",
		Long: `translator hosts a real translator.library binary under 68000 emulation,
calls its Translate entry point on the given English text, and prints the
resulting phonetic notation to stdout — the format narrator.device expects.

Example:
  translator "hello world"`,
		Args: cobra.ExactArgs(1),
		RunE: runTranslator,
	}

	rootCmd.Flags().StringVarP(&libraryFile, "library", "l", "translator.library", "path to the translator.library binary")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorize.Error(fmt.Sprintf("translator: %v", err)))
		os.Exit(1)
	}
}

func runTranslator(cmd *cobra.Command, args []string) error {
	text := args[0]

	glog.Init(verbose)
	logger := glog.L

	image, err := os.ReadFile(libraryFile)
	if err != nil {
		return abierr.Wrap(abierr.IO, "unable to open library file", err)
	}

	addrs := abi.TranslatorAddrs()
	emu, err := emulator.New(addrs.RAMSize)
	if err != nil {
		return abierr.Wrap(abierr.IO, "create emulator", err)
	}
	defer emu.Close()

	if _, err := hunk.Load(emu, image); err != nil {
		return err
	}

	romtagBase, translateVec, hasROMTag := locateTranslateVector(emu, image)
	if verbose {
		printBanner(libraryFile, romtagBase, hasROMTag, len(image))
	}

	emu.WriteCString(addrs.InputBase, text)

	tramp := romtag.BuildTranslatorTrampoline(emu, addrs.TrampolineBase,
		addrs.LibraryBase, addrs.InputBase, addrs.OutputBase,
		uint32(len(text)), outputCapacity, translateVec, hasROMTag)

	emu.SetSP(addrs.StackPointer)

	state := abi.NewTranslatorState(emu, logger, text)
	out := pcm.New(os.Stdout)
	state.Output = out

	dispatcher := abi.NewDispatcher(state)
	dispatcher.Install()

	runErr := emu.RunFrom(tramp.EntryPC)
	if runErr != nil {
		_ = out.Close()
		return abierr.Wrap(abierr.ABI, "emulation failed", runErr)
	}
	if state.ExitErr != nil {
		_ = out.Close()
		return state.ExitErr
	}

	phonetic := emu.ReadCString(addrs.OutputBase, outputCapacity)
	out.WriteLine(phonetic)
	return out.Close()
}

// locateTranslateVector finds the resident descriptor's first AUTOINIT
// vector (the library's Translate entry). Absent a descriptor, the
// caller falls back to a fixed offset (spec.md §4.2).
func locateTranslateVector(emu *emulator.Emulator, image []byte) (base uint32, translateVector uint32, ok bool) {
	desc, base, ok := romtag.Scan(emu, 0, uint32(len(image)))
	if !ok {
		return 0, 0, false
	}
	ai := romtag.DecodeAutoInit(emu, desc.InitPtr)
	v, ok := romtag.VectorAt(emu, ai.VectorTable, 0)
	if !ok {
		return base, 0, false
	}
	return base, v, true
}

// printBanner summarizes the loaded library binary before emulation starts,
// in --verbose mode only.
func printBanner(path string, romtagBase uint32, hasROMTag bool, size int) {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "%s translator ─ Amiga translator.library host\n", colorize.Header("▶"))
	fmt.Fprintf(os.Stderr, "  %s %s  %s %s\n", colorize.Detail("Loading:"), path, colorize.Detail("Size:"), colorize.FuncName(fmt.Sprintf("%d", size)))
	if hasROMTag {
		fmt.Fprintf(os.Stderr, "  %s %s\n", colorize.Detail("ROMTag:"), colorize.Address(romtagBase))
	} else {
		fmt.Fprintf(os.Stderr, "  %s %s\n", colorize.Detail("ROMTag:"), colorize.Tag("none (fixed-offset fallback)"))
	}
	fmt.Fprintln(os.Stderr, colorize.Border("────────────────────────────────────────"))
}
