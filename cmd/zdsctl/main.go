// Command zdsctl is a thin demonstration front-end over package zds. It is
// explicitly a non-goal as a maintained product (spec.md §1): no
// interactive shell, no output formatting options, no config discovery
// beyond -C. It exists to show the operation surface wired to flags, in
// the style of calvinalkan-agent-task's pflag-based subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/jpl-au/zds"

	json "github.com/goccy/go-json"
	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 1
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "put":
		return cmdPut(rest, out, errOut)
	case "get":
		return cmdGet(rest, out, errOut)
	case "scan":
		return cmdScan(rest, out, errOut)
	case "pack":
		return cmdPack(rest, out, errOut)
	case "unpack":
		return cmdUnpack(rest, out, errOut)
	case "-h", "--help", "help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "zdsctl: unknown command %q\n", sub)
		printUsage(errOut)
		return 1
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage: zdsctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  put    -C <root> --collection <name> --id <id> <json-document>")
	fmt.Fprintln(w, "  get    -C <root> --collection <name> --id <id>")
	fmt.Fprintln(w, "  scan   -C <root> --collection <name>")
	fmt.Fprintln(w, "  pack   -C <root> <archive.zip>")
	fmt.Fprintln(w, "  unpack <archive.zip> <dest-dir>")
}

func cmdPut(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	rootPath := fs.StringP("root", "C", ".", "root directory")
	collection := fs.String("collection", "", "collection name")
	id := fs.String("id", "", "document id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *collection == "" || *id == "" || fs.NArg() < 1 {
		fmt.Fprintln(errOut, "error: --collection, --id, and a JSON document argument are required")
		return 1
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(fs.Arg(0)), &doc); err != nil {
		fmt.Fprintln(errOut, "error: invalid JSON document:", err)
		return 1
	}

	r, err := zds.Open(*rootPath, zds.ReadWrite, nil)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer r.Close()

	store, err := r.Collection(*collection, zds.CollectionOptions{})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if err := store.Put(*id, doc); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if err := store.Flush(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func cmdGet(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	rootPath := fs.StringP("root", "C", ".", "root directory")
	collection := fs.String("collection", "", "collection name")
	id := fs.String("id", "", "document id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *collection == "" || *id == "" {
		fmt.Fprintln(errOut, "error: --collection and --id are required")
		return 1
	}

	r, err := zds.Open(*rootPath, zds.ReadOnly, nil)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer r.Close()

	store, err := r.Collection(*collection, zds.CollectionOptions{})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	doc, err := store.Get(*id)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	data, err := json.Marshal(doc)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	fmt.Fprintln(out, string(data))
	return 0
}

func cmdScan(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	rootPath := fs.StringP("root", "C", ".", "root directory")
	collection := fs.String("collection", "", "collection name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *collection == "" {
		fmt.Fprintln(errOut, "error: --collection is required")
		return 1
	}

	r, err := zds.Open(*rootPath, zds.ReadOnly, nil)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer r.Close()

	store, err := r.Collection(*collection, zds.CollectionOptions{})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	code := 0
	for doc, err := range store.Scan(zds.ScanOptions{}) {
		if err != nil {
			fmt.Fprintln(errOut, "warning:", err)
			code = 1
			continue
		}
		data, merr := json.Marshal(doc)
		if merr != nil {
			fmt.Fprintln(errOut, "warning:", merr)
			code = 1
			continue
		}
		fmt.Fprintln(out, string(data))
	}
	return code
}

func cmdPack(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	rootPath := fs.StringP("root", "C", ".", "root directory")
	deflate := fs.Bool("deflate", false, "compress entries with deflate instead of store")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(errOut, "error: archive path is required")
		return 1
	}

	method := zds.PackStore
	if *deflate {
		method = zds.PackDeflate
	}
	if err := zds.Pack(*rootPath, fs.Arg(0), method); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func cmdUnpack(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("unpack", flag.ContinueOnError)
	force := fs.Bool("force", false, "allow unpacking into a non-empty directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(errOut, "error: archive path and destination directory are required")
		return 1
	}
	if err := zds.Unpack(fs.Arg(0), fs.Arg(1), *force); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}
