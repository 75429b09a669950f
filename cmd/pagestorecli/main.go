// Command pagestorecli is a small demo/inspection tool over a pagestore
// file, in the spirit of the teacher's cmd/tinysqlpage: flag-driven,
// logs fatal errors, and does one thing per invocation.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/benthor/pagefile/pagestore"
)

func main() {
	pageSize := flag.Int("pagesize", 4096, "page size for a newly created file")
	create := flag.Bool("create", false, "create the file if it does not exist")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, path := args[0], args[1]

	store, err := pagestore.Open(path, pagestore.Options{PageSize: *pageSize, Create: *create})
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer store.Close()

	switch cmd {
	case "dump":
		runDump(store)
	case "stat":
		runStat(store, path)
	case "verify":
		runVerify(store)
	case "write":
		if len(args) < 3 {
			log.Fatal("write requires a string argument: pagestorecli write <path> <text>")
		}
		runWrite(store, args[2])
	default:
		usage()
		os.Exit(2)
	}
}

func runDump(store *pagestore.Store) {
	lines, err := store.Debug()
	if err != nil {
		log.Fatalf("dump: %v", err)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func runStat(store *pagestore.Store, path string) {
	onDisk, unsaved := store.SizeSummary()
	fmt.Printf("path:        %s\n", path)
	fmt.Printf("instance id: %s\n", store.InstanceID())
	fmt.Printf("page size:   %d\n", store.PageSize())
	fmt.Printf("on disk:     %s\n", onDisk)
	fmt.Printf("unsaved:     %s\n", unsaved)
}

func runVerify(store *pagestore.Store) {
	issues, err := store.VerifyStore()
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	if len(issues) == 0 {
		fmt.Println("ok")
		return
	}
	for _, issue := range issues {
		fmt.Println(issue)
	}
	os.Exit(1)
}

func runWrite(store *pagestore.Store, text string) {
	root, err := store.RootPage()
	if err != nil {
		log.Fatalf("root page: %v", err)
	}
	if err := root.Write([]byte(text), 0); err != nil {
		log.Fatalf("write: %v", err)
	}
	if err := store.Save(); err != nil {
		log.Fatalf("save: %v", err)
	}
	fmt.Printf("wrote %s to the root page\n", humanize.Bytes(uint64(len(text))))
}

func usage() {
	fmt.Fprintf(os.Stderr, `pagestorecli - inspect and exercise a pagestore file

Usage:
  pagestorecli [flags] dump <path>
  pagestorecli [flags] stat <path>
  pagestorecli [flags] verify <path>
  pagestorecli [flags] write <path> <text>

Flags:
`)
	flag.PrintDefaults()
}
