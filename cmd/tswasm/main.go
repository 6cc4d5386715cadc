// Command tswasm loads a WASM-compiled parser language module and prints a
// summary of its copied-out descriptor, for ad hoc inspection of language
// artifacts outside of an embedding parser.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wasmlang/tswasm"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("tswasm", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	if help || flags.NArg() == 0 {
		printUsage(stdErr)
		return 0
	}

	switch flags.Arg(0) {
	case "load":
		return doLoad(flags.Args()[1:], stdOut, stdErr)
	case "version":
		fmt.Fprintln(stdOut, "tswasm (development build)")
		return 0
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		return 1
	}
}

func doLoad(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("load", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var name string
	flags.StringVar(&name, "name", "", "Language name (matches the tree_sitter_<name> export).")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm language module")
		printLoadUsage(stdErr, flags)
		return 1
	}
	if name == "" {
		fmt.Fprintln(stdErr, "missing -name")
		printLoadUsage(stdErr, flags)
		return 1
	}

	wasmBytes, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		return 1
	}

	store, err := tswasm.NewStore(tswasm.NewStoreConfig())
	if err != nil {
		fmt.Fprintf(stdErr, "error creating store: %v\n", err)
		return 1
	}

	descriptor, err := store.Load(name, wasmBytes)
	if err != nil {
		fmt.Fprintf(stdErr, "error loading language: %v\n", err)
		return 1
	}

	wasm, ok := descriptor.(*tswasm.WasmLanguage)
	if !ok {
		fmt.Fprintln(stdErr, "loaded descriptor is unexpectedly not wasm-backed")
		return 1
	}

	fmt.Fprintf(stdOut, "language: %s\n", name)
	fmt.Fprintf(stdOut, "version: %d\n", wasm.Version)
	fmt.Fprintf(stdOut, "symbol_count: %d\n", wasm.SymbolCount)
	fmt.Fprintf(stdOut, "state_count: %d (large: %d)\n", wasm.StateCount, wasm.LargeStateCount)
	fmt.Fprintf(stdOut, "external_token_count: %d\n", wasm.ExternalTokenCount)
	fmt.Fprintf(stdOut, "field_count: %d\n", wasm.FieldCount)
	return 0
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "tswasm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  tswasm <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  load\t\tLoads a wasm language module and prints its descriptor summary")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of the tswasm CLI")
}

func printLoadUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "tswasm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  tswasm load -name <language> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
