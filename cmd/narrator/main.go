// Command narrator hosts translator.library's companion narrator.device:
// it feeds phonetic text to the guest binary and writes the resulting
// 8-bit signed PCM at 22200 Hz to stdout.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hotdoglinux/amiganarrator/internal/abi"
	"github.com/hotdoglinux/amiganarrator/internal/abierr"
	"github.com/hotdoglinux/amiganarrator/internal/emulator"
	"github.com/hotdoglinux/amiganarrator/internal/hunk"
	glog "github.com/hotdoglinux/amiganarrator/internal/log"
	"github.com/hotdoglinux/amiganarrator/internal/pcm"
	"github.com/hotdoglinux/amiganarrator/internal/romtag"
	"github.com/hotdoglinux/amiganarrator/internal/trace"
	"github.com/hotdoglinux/amiganarrator/internal/tui"
	"github.com/hotdoglinux/amiganarrator/internal/ui/colorize"
)

var (
	deviceFile string
	verbose    bool
	useTUI     bool
	scriptFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "narrator ( - | phonetic-text )",
		Short: "Emulate narrator.device and emit 8-bit PCM audio",
		Long: `narrator hosts a real narrator.device binary under 68000 emulation and
drives it through its documented boot sequence (MakeLibrary, AddTask, Wait,
GetMsg, BeginIO, ReplyMsg) to turn phonetic text into speech.

PCM output (8-bit signed, 22200 Hz, mono) is written to stdout; diagnostics
go to stderr.

Examples:
  narrator "/HEH4LOW. /" > out.raw
  echo "/HEH4LOW. /" | narrator - > out.raw`,
		Args: cobra.ExactArgs(1),
		RunE: runNarrator,
	}

	rootCmd.Flags().StringVarP(&deviceFile, "device", "d", "narrator.device", "path to the narrator.device binary")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live trace viewer instead of plain stderr logging")
	rootCmd.Flags().StringVar(&scriptFile, "script", "", "JS file handling otherwise-fatal unhandled ABI vectors")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorizedError(err))
		os.Exit(1)
	}
}

func runNarrator(cmd *cobra.Command, args []string) error {
	text, err := resolveInput(args[0])
	if err != nil {
		return abierr.Wrap(abierr.Usage, "read phonetic text", err)
	}

	glog.Init(verbose)
	logger := glog.L

	image, err := os.ReadFile(deviceFile)
	if err != nil {
		return abierr.Wrap(abierr.IO, "unable to open device file", err)
	}

	emu, err := emulator.New(abi.NarratorAddrs().RAMSize)
	if err != nil {
		return abierr.Wrap(abierr.IO, "create emulator", err)
	}
	defer emu.Close()

	if _, err := hunk.Load(emu, image); err != nil {
		return err
	}

	desc, base, hasROMTag := romtag.Scan(emu, 0, uint32(len(image)))
	if verbose {
		printBanner(deviceFile, base, hasROMTag, len(image))
		fmt.Fprintf(os.Stderr, "  %s %s\n\n", colorize.Detail("Input:"), colorize.String(fmt.Sprintf("%q", text)))
	}

	state := abi.NewNarratorState(emu, logger, text)
	out := pcm.New(os.Stdout)
	state.Output = out
	if scriptFile != "" {
		src, err := os.ReadFile(scriptFile)
		if err != nil {
			return abierr.Wrap(abierr.Usage, "read --script file", err)
		}
		state.ScriptSource = string(src)
	}

	var initPtr uint32
	if hasROMTag {
		initPtr = desc.InitPtr
		_ = base
	}

	tramp := romtag.BuildNarratorTrampoline(emu, state.Addr.TrampolineBase,
		state.Addr.LibraryBase, state.Addr.NarratorRB, state.Addr.StackPointer,
		initPtr, hasROMTag)
	state.MakeLibraryPatchAddr = tramp.MakeLibraryPatchAddr
	state.AddTaskPatchAddr = tramp.AddTaskPatchAddr

	emu.SetSP(state.Addr.StackPointer)
	emu.SetA(1, state.Addr.LibraryName)
	emu.SetA(2, state.Addr.LibraryBase)
	emu.SetD(0, 0)
	emu.SetA(6, state.Addr.ExecBase)

	dispatcher := abi.NewDispatcher(state)
	dispatcher.Install()

	runErr := runWithOptionalTUI(state, emu, tramp.EntryPC, logger)
	closeErr := out.Close()

	if runErr != nil {
		return runErr
	}
	return closeErr
}

func runWithOptionalTUI(state *abi.State, emu *emulator.Emulator, entry uint32, logger *glog.Logger) error {
	if !useTUI {
		resultCh := make(chan error, 1)
		go func() { resultCh <- emu.RunFrom(entry) }()
		if err := <-resultCh; err != nil {
			return abierr.Wrap(abierr.ABI, "emulation failed", err)
		}
		return state.ExitErr
	}

	events := make(chan *trace.Event, 256)
	done := make(chan error, 1)
	logger.SetOnTrace(func(pc uint32, category, name, detail string) {
		e := trace.NewEvent(pc, category, name, detail)
		trace.DefaultEnricher(e)
		select {
		case events <- e:
		default:
		}
	})

	go func() {
		err := emu.RunFrom(entry)
		if err == nil {
			err = state.ExitErr
		}
		close(events)
		done <- err
	}()

	p := tea.NewProgram(tui.New(events, done))
	if _, err := p.Run(); err != nil {
		return abierr.Wrap(abierr.ABI, "tui", err)
	}
	return state.ExitErr
}

// resolveInput returns arg verbatim unless it is "-", in which case it
// reads phonetic text from stdin.
func resolveInput(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func colorizedError(err error) string {
	return colorize.Error(fmt.Sprintf("narrator: %v", err))
}

// printBanner summarizes the loaded device binary before emulation starts,
// in --verbose mode only.
func printBanner(path string, romtagBase uint32, hasROMTag bool, size int) {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "%s narrator ─ Amiga narrator.device host\n", colorize.Header("▶"))
	fmt.Fprintf(os.Stderr, "  %s %s  %s %s\n", colorize.Detail("Loading:"), path, colorize.Detail("Size:"), colorize.FuncName(fmt.Sprintf("%d", size)))
	if hasROMTag {
		fmt.Fprintf(os.Stderr, "  %s %s\n", colorize.Detail("ROMTag:"), colorize.Address(romtagBase))
	} else {
		fmt.Fprintf(os.Stderr, "  %s %s\n", colorize.Detail("ROMTag:"), colorize.Tag("none (MakeLibrary fallback)"))
	}
	fmt.Fprintln(os.Stderr, colorize.Border("────────────────────────────────────────"))
}
