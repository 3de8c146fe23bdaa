// Command btreecli is an interactive REPL over a disk-resident tree,
// following the sibling example's cli/cli.go command shape (SET/GET/DEL/
// EXIT) extended with RANGE, colorized via github.com/fatih/color.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"btreedisk/btree"
	"btreedisk/codec"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	fs := flag.NewFlagSet("btreecli", flag.ExitOnError)
	treePath := fs.String("tree", "btreecli.tree", "path to the tree file")
	dataPath := fs.String("data", "btreecli.data", "path to the data file")
	degree := fs.Int("degree", 32, "minimum degree of the tree (an existing tree must be opened with the degree it was created with)")
	fs.Parse(os.Args[1:])

	logger := log.New(os.Stderr, "btreecli: ", log.LstdFlags)

	tr, err := btree.Open[int64, string](*treePath, *dataPath, *degree, codec.Int64{}, codec.String{},
		func(a, b int64) bool { return a < b }, btree.Options{Logger: logger})
	must(err)
	defer tr.Close()

	repl := &cli{scanner: bufio.NewScanner(os.Stdin), tree: tr}
	repl.start()
}

type cli struct {
	scanner *bufio.Scanner
	tree    *btree.Tree[int64, string]
}

func (c *cli) start() {
	c.printHelp()
	c.printPrompt()
	for c.scanner.Scan() {
		c.process(c.scanner.Text())
		c.printPrompt()
	}
}

func (c *cli) printHelp() {
	fmt.Print(`
Disk B-tree CLI

Available Commands:
  SET <key> <val>       Insert a key-value pair
  GET <key>             Retrieve the value for key
  DEL <key>             Remove a key-value pair
  RANGE <lo> <hi>       Print all keys in [lo, hi)
  CHECK                 Validate tree invariants
  EXIT                  Terminate this session
`)
}

func (c *cli) printPrompt() {
	color.New(color.FgCyan).Print("> ")
}

func (c *cli) process(line string) {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return
	}
	switch strings.ToLower(fields[0]) {
	case "set":
		c.set(fields[1:])
	case "get":
		c.get(fields[1:])
	case "del":
		c.del(fields[1:])
	case "range":
		c.rangeScan(fields[1:])
	case "check":
		c.check()
	case "exit":
		os.Exit(0)
	default:
		color.New(color.FgRed).Printf("unknown command %q\n", fields[0])
	}
}

func (c *cli) set(args []string) {
	if len(args) != 2 {
		color.New(color.FgRed).Println("usage: SET <key> <value>")
		return
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		color.New(color.FgRed).Printf("bad key: %v\n", err)
		return
	}
	inserted, err := c.tree.Insert(key, args[1])
	if err != nil {
		color.New(color.FgRed).Printf("error: %v\n", err)
		return
	}
	if !inserted {
		color.New(color.FgRed).Println("key already present")
		return
	}
	color.New(color.FgGreen).Println("OK")
}

func (c *cli) get(args []string) {
	if len(args) != 1 {
		color.New(color.FgRed).Println("usage: GET <key>")
		return
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		color.New(color.FgRed).Printf("bad key: %v\n", err)
		return
	}
	val, ok, err := c.tree.Get(key)
	if err != nil {
		color.New(color.FgRed).Printf("error: %v\n", err)
		return
	}
	if !ok {
		color.New(color.FgRed).Println("key not found")
		return
	}
	fmt.Println(val)
}

func (c *cli) del(args []string) {
	if len(args) != 1 {
		color.New(color.FgRed).Println("usage: DEL <key>")
		return
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		color.New(color.FgRed).Printf("bad key: %v\n", err)
		return
	}
	removed, err := c.tree.Erase(key)
	if err != nil {
		color.New(color.FgRed).Printf("error: %v\n", err)
		return
	}
	if !removed {
		color.New(color.FgRed).Println("key not found")
		return
	}
	color.New(color.FgGreen).Println("OK")
}

func (c *cli) rangeScan(args []string) {
	if len(args) != 2 {
		color.New(color.FgRed).Println("usage: RANGE <lo> <hi>")
		return
	}
	lo, err1 := strconv.ParseInt(args[0], 10, 64)
	hi, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		color.New(color.FgRed).Println("bad bound")
		return
	}
	it, err := c.tree.Range(lo, hi, true, false)
	if err != nil {
		color.New(color.FgRed).Printf("error: %v\n", err)
		return
	}
	defer it.Close()
	count := 0
	for it.Next() {
		fmt.Printf("%d = %s\n", it.Key(), it.Value())
		count++
	}
	if err := it.Error(); err != nil {
		color.New(color.FgRed).Printf("error: %v\n", err)
		return
	}
	color.New(color.FgGreen).Printf("%d keys\n", count)
}

func (c *cli) check() {
	if err := c.tree.CheckTree(); err != nil {
		color.New(color.FgRed).Printf("corrupt: %v\n", err)
		return
	}
	color.New(color.FgGreen).Println("OK")
}
