// Package console renders build progress for a human watching a
// terminal. It is a pure side channel: nothing in the executor's control
// flow depends on what a Reporter does with an Event.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Outcome classifies how a DAG node's build step ended.
type Outcome int

const (
	Built Outcome = iota
	Skipped
	Cleaned
	Failed
)

// Event describes one node's outcome, for a Reporter to render.
type Event struct {
	Target  string
	Command string
	Outcome Outcome
	Err     error
}

// Reporter is notified as the executor processes each DAG node.
type Reporter interface {
	Report(Event)
}

// ColorReporter writes one colorized line per event to w, in the style
// of a terminal-aware CLI tool: green for built, yellow for skipped, red
// for failed.
type ColorReporter struct {
	Out io.Writer
}

// NewColorReporter returns a ColorReporter writing to out.
func NewColorReporter(out io.Writer) *ColorReporter {
	return &ColorReporter{Out: out}
}

func (c *ColorReporter) Report(e Event) {
	switch e.Outcome {
	case Built:
		fmt.Fprintln(c.Out, color.GreenString("build")+"  "+e.Target+commandSuffix(e.Command))
	case Skipped:
		fmt.Fprintln(c.Out, color.YellowString("skip")+"   "+e.Target)
	case Cleaned:
		fmt.Fprintln(c.Out, color.CyanString("clean")+"  "+e.Target)
	case Failed:
		fmt.Fprintln(c.Out, color.RedString("fail")+"   "+e.Target+": "+errString(e.Err))
	}
}

// PlainReporter writes newline-delimited, uncolored lines: for piping to
// a file or another process.
type PlainReporter struct {
	Out io.Writer
}

// NewPlainReporter returns a PlainReporter writing to out.
func NewPlainReporter(out io.Writer) *PlainReporter {
	return &PlainReporter{Out: out}
}

func (p *PlainReporter) Report(e Event) {
	words := []string{outcomeWord(e.Outcome), e.Target}
	if e.Outcome == Built && e.Command != "" {
		words = append(words, e.Command)
	}
	if e.Err != nil {
		words = append(words, errString(e.Err))
	}
	fmt.Fprintln(p.Out, strings.Join(words, " "))
}

func outcomeWord(o Outcome) string {
	switch o {
	case Built:
		return "build"
	case Skipped:
		return "skip"
	case Cleaned:
		return "clean"
	default:
		return "fail"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// commandSuffix renders the expanded action after the target name, the
// way a build tool echoes the command it's about to run (or, in
// dry-run, would have run). Empty when the event carries no command
// text.
func commandSuffix(command string) string {
	if command == "" {
		return ""
	}
	return ": " + command
}
