// Lorecore playtests a Lua campaign locally against an in-memory store.
// Usage: lorecore [--version] [--plain] [--script <file>] [--trace] [--seed <n>] <campaign_directory>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/nathoo/lorecore/cli"
	"github.com/nathoo/lorecore/engine/playtest"
	"github.com/nathoo/lorecore/loader"
	"github.com/nathoo/lorecore/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = "Usage: lorecore [--version] [--plain] [--script <file>] [--trace] [--seed <n>] <campaign_directory>\n"

func main() {
	plain := false
	trace := false
	seed := time.Now().UnixNano()
	var campaignDir, scriptFile string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version":
			fmt.Printf("lorecore %s (commit %s, built %s)\n", version, commit, date)
			return
		case "--plain":
			plain = true
		case "--trace":
			trace = true
		case "--script", "--seed":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", args[i])
				os.Exit(1)
			}
			i++
			if args[i-1] == "--script" {
				scriptFile = args[i]
				continue
			}
			n, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "--seed: %v\n", err)
				os.Exit(1)
			}
			seed = n
		default:
			if campaignDir == "" {
				campaignDir = args[i]
			}
		}
	}

	if campaignDir == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	defs, warnings, err := loader.Load(campaignDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading campaign: %v\n", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, err := playtest.New(ctx, defs, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting session: %v\n", err)
		os.Exit(1)
	}
	g.Trace = trace

	header := fmt.Sprintf("%s v%s by %s\n\n", defs.Campaign.Title, defs.Campaign.Version, defs.Campaign.Author)

	// Script mode forces plain output and echoes each command.
	if scriptFile != "" {
		f, err := os.Open(scriptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening script: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		fmt.Print(header)
		c := cli.New(g)
		c.In = f
		c.EchoInput = true
		c.Run(ctx)
		return
	}

	if plain || !isTerminal() {
		fmt.Print(header)
		cli.New(g).Run(ctx)
		return
	}

	if err := tui.Run(ctx, g); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// isTerminal reports whether stdout is a terminal rather than a pipe or file.
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
