package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	errMissingArgs = errors.New("missing arguments")
	errExtraArgs   = errors.New("too many arguments")
)

// Group orders commands in help listings.
type Group int

const (
	GroupEntries Group = iota
	GroupTags
	GroupMaintenance
	GroupSession
)

var groupTitles = map[Group]string{
	GroupEntries:     "Entries",
	GroupTags:        "Tags",
	GroupMaintenance: "Maintenance",
	GroupSession:     "Session",
}

// Args bounds the positional arguments of a command. Max < 0 means no
// upper bound. The zero value accepts no arguments.
type Args struct {
	Min, Max int
}

func exactArgs(n int) Args     { return Args{Min: n, Max: n} }
func argRange(lo, hi int) Args { return Args{Min: lo, Max: hi} }
func minArgs(n int) Args       { return Args{Min: n, Max: -1} }

func (a Args) check(n int) error {
	switch {
	case n < a.Min:
		return fmt.Errorf("%w: want at least %d, got %d", errMissingArgs, a.Min, n)
	case a.Max >= 0 && n > a.Max:
		return fmt.Errorf("%w: want at most %d, got %d", errExtraArgs, a.Max, n)
	}

	return nil
}

// Command is one fscache subcommand.
type Command struct {
	// Usage follows "fscache" in help. Its first word is the command name.
	Usage string
	Short string
	// Long replaces Short in "fscache <cmd> --help" when set.
	Long string

	Group Group
	Args  Args

	// Flags may be nil for commands without flags.
	Flags *flag.FlagSet

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the command's line in the command listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// PrintHelp prints "fscache <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: fscache", c.Usage)
	o.Println()

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags == nil || !c.Flags.HasFlags() {
		return
	}

	var buf strings.Builder

	c.Flags.SetOutput(&buf)
	c.Flags.PrintDefaults()

	o.Println()
	o.Println("Flags:")
	o.Printf("%s", buf.String())
}

// Run parses args and executes the command, returning the exit code.
// Usage errors print the command's usage line after the message.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o)

		return 0
	}

	if err == nil {
		err = c.Args.check(c.Flags.NArg())
	}

	if err != nil {
		o.ErrPrintln("error:", err)
		o.ErrPrintln("usage: fscache", c.Usage)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}

// commandListing renders cmds as help lines under one heading per group.
func commandListing(cmds []*Command) []string {
	byGroup := make(map[Group][]*Command)
	for _, cmd := range cmds {
		byGroup[cmd.Group] = append(byGroup[cmd.Group], cmd)
	}

	var lines []string

	for g := GroupEntries; g <= GroupSession; g++ {
		if len(byGroup[g]) == 0 {
			continue
		}

		if len(lines) > 0 {
			lines = append(lines, "")
		}

		lines = append(lines, groupTitles[g]+":")
		for _, cmd := range byGroup[g] {
			lines = append(lines, cmd.HelpLine())
		}
	}

	return lines
}
