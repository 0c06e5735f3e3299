// Command dagcsum is the standalone checksum-stream generator (spec.md §2's
// "checksum-generation one-shot tool"): given an algorithm and epoch, build
// that epoch's intermediate cache once and write one CSUM_BYTES-truncated
// SHA3-256 record per chunk to stdout, in ascending chunk order.
//
// It performs the same work as `dagd -g`, but without needing a dag-fmt
// path template, an event bus, or any on-disk dataset file at all -- only
// the checksum stream itself is produced.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/dagforge/dagd/internal/csumgen"
	"github.com/dagforge/dagd/internal/kernel"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out, errOut *os.File) error {
	flagSet := flag.NewFlagSet("dagcsum", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	algoName := flagSet.StringP("algo", "a", "ethash", "mining algorithm (ethash, etchash, ubqhash)")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: dagcsum [-a algo] <epoch>")
	}

	var epoch uint32
	if _, err := fmt.Sscanf(flagSet.Arg(0), "%d", &epoch); err != nil {
		return fmt.Errorf("invalid epoch %q: %w", flagSet.Arg(0), err)
	}

	algo, err := kernel.ParseAlgorithm(*algoName)
	if err != nil {
		return err
	}

	kern, err := kernel.For(algo)
	if err != nil {
		return err
	}

	return csumgen.Generate(kern, kernel.NewSHA3Hasher(), epoch, out)
}
