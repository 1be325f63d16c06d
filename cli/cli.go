// Package cli is the line-oriented playtest front end, used when stdout is
// not a terminal and for scripted runs.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nathoo/lorecore/engine/playtest"
)

// CLI reads commands from In and writes narrative to Out.
type CLI struct {
	Game      *playtest.Game
	In        io.Reader
	Out       io.Writer
	EchoInput bool // echo each input line after the prompt (for script playback)
	lastCmd   string
}

// New creates a CLI on stdin and stdout.
func New(g *playtest.Game) *CLI {
	return &CLI{Game: g, In: os.Stdin, Out: os.Stdout}
}

// Run shows the intro and the starting node, then loops until /quit or
// end of input.
func (c *CLI) Run(ctx context.Context) {
	if intro := c.Game.Defs.Campaign.Intro; intro != "" {
		c.printLine(intro)
		c.printLine("")
	}
	c.printLines(c.Game.Step(ctx, "look").Output)

	scanner := bufio.NewScanner(c.In)
	for {
		c.print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		if strings.HasPrefix(input, "/") {
			lines, quit := c.Game.Meta(ctx, input)
			for _, l := range lines {
				c.printSystem(l)
			}
			if quit {
				return
			}
			continue
		}

		lower := strings.ToLower(input)
		if lower == "again" || lower == "g" {
			if c.lastCmd == "" {
				c.printLine("Nothing to repeat.")
				continue
			}
			input = c.lastCmd
		} else {
			c.lastCmd = input
		}

		c.printLines(c.Game.Step(ctx, input).Output)
	}
}

func (c *CLI) printLines(lines []string) {
	for _, line := range lines {
		c.printLine(line)
	}
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	if text == "" {
		fmt.Fprintln(c.Out)
		return
	}
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
