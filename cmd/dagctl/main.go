// Command dagctl is a read-only REPL for inspecting a dagd cache directory
// without a running daemon: it scans whatever (dag-fmt, csum-fmt) path
// templates it is given and lets an operator list tracked epochs, inspect
// one, or re-scan, the same way `cmd/sloty` lets an operator poke at a
// slotcache file interactively.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/epoch"
	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("dagctl", flag.ContinueOnError)

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() < 1 {
		return fmt.Errorf("usage: dagctl <dag-fmt> [csum-fmt]")
	}

	dagTmpl := flagSet.Arg(0)
	if err := epoch.ValidatePathTemplate(dagTmpl); err != nil {
		return err
	}

	csumTmpl := ""
	if flagSet.NArg() >= 2 {
		csumTmpl = flagSet.Arg(1)
		if err := epoch.ValidatePathTemplate(csumTmpl); err != nil {
			return err
		}
	}

	realFS := fs.NewReal()

	reg := epoch.New(epoch.Config{
		Store:            dagio.New(realFS),
		FS:               realFS,
		KernelsFor:       kernel.For,
		DagPathTemplate:  dagTmpl,
		CsumPathTemplate: csumTmpl,
		BlockSize:        int64(kernel.LineBytes),
		MaxCache:         0, // inspector never admits or evicts
	})

	if err := reg.Scan(); err != nil {
		return err
	}

	r := &repl{reg: reg, dagTmpl: dagTmpl, csumTmpl: csumTmpl}

	return r.run()
}

// repl is the interactive command loop. rescan rebuilds reg from scratch
// rather than calling Scan again on the same Registry: Scan always
// inserts what it opens, so reusing one Registry across multiple scans
// would double-track every already-seen epoch.
type repl struct {
	reg   *epoch.Registry
	liner *liner.State

	dagTmpl  string
	csumTmpl string
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".dagctl_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close() //nolint:errcheck

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close() //nolint:errcheck
	}

	fmt.Printf("dagctl - dag cache inspector (%d epoch(s) tracked)\n", len(r.reg.Records()))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("dagctl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		cmdArgs := fields[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "list", "ls":
			r.cmdList()

		case "info", "show":
			r.cmdInfo(cmdArgs)

		case "rescan":
			r.cmdRescan()

		case "total":
			r.cmdTotal()

		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close() //nolint:errcheck

	_, _ = r.liner.WriteHistory(f)
}

func (r *repl) completer(line string) []string {
	commands := []string{"list", "info", "rescan", "total", "help", "exit"}

	var out []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  list              List every tracked (algorithm, epoch)")
	fmt.Println("  info <epoch>      Show detail for the named epoch (first algorithm match)")
	fmt.Println("  rescan            Re-scan the configured path templates")
	fmt.Println("  total             Show total on-disk size across all tracked epochs")
	fmt.Println("  help              Show this help")
	fmt.Println("  exit              Quit")
}

func (r *repl) cmdList() {
	records := r.reg.Records()
	if len(records) == 0 {
		fmt.Println("(no epochs tracked)")

		return
	}

	for _, rec := range records {
		state := "building"
		if rec.Complete() {
			state = "complete"
		}

		fmt.Printf("%-8s epoch=%-5d size=%d state=%s\n", rec.Algorithm().Name(), rec.Num(), rec.Size(), state)
	}
}

func (r *repl) cmdInfo(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: info <epoch>")

		return
	}

	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("invalid epoch %q: %v\n", args[0], err)

		return
	}

	for _, rec := range r.reg.Records() {
		if uint64(rec.Num()) == n {
			fmt.Println(rec.Report())

			return
		}
	}

	fmt.Printf("epoch %d not tracked\n", n)
}

func (r *repl) cmdRescan() {
	realFS := fs.NewReal()

	reg := epoch.New(epoch.Config{
		Store:            dagio.New(realFS),
		FS:               realFS,
		KernelsFor:       kernel.For,
		DagPathTemplate:  r.dagTmpl,
		CsumPathTemplate: r.csumTmpl,
		BlockSize:        int64(kernel.LineBytes),
	})

	if err := reg.Scan(); err != nil {
		fmt.Println("rescan failed:", err)

		return
	}

	r.reg = reg

	fmt.Printf("rescanned: %d epoch(s) tracked\n", len(r.reg.Records()))
}

func (r *repl) cmdTotal() {
	fmt.Printf("%d bytes across %d epoch(s)\n", r.reg.TotalSize(), len(r.reg.Records()))
}
