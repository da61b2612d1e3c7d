package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
)

const maxKeyCompletions = 50

var (
	errUnterminatedQuote = errors.New("unterminated quote")
	errNestedShell       = errors.New("already in a shell")
	errNoInput           = errors.New("shell needs an input to read commands from")
)

// prompter reads one line per call. *liner.State implements it.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// scanPrompter reads lines from a non-interactive input such as a pipe.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.sc.Text(), nil
}

func (p *scanPrompter) AppendHistory(string) {}

func (a *app) shellCmd() *Command {
	return &Command{
		Usage: "shell",
		Short: "Start an interactive shell",
		Group: GroupSession,
		Long: "Read commands line by line and run them against the same cache. Words may be quoted " +
			"with double quotes. Values must be passed as arguments.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if o.in == os.Stdin {
				return a.runLiner(ctx, o)
			}

			if o.in == nil {
				return errNoInput
			}

			return a.runShell(ctx, o, &scanPrompter{sc: bufio.NewScanner(o.in)})
		},
	}
}

// historyFile returns the path to the history file.
func (a *app) historyFile() string {
	home := a.env["HOME"]
	if home == "" {
		var err error

		home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
	}

	return filepath.Join(home, ".fscache_history")
}

func (a *app) runLiner(ctx context.Context, o *IO) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(a.complete)

	history := a.historyFile()

	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	o.Printf("fscache shell (dir=%s, namespace=%q)\n", a.cache.Options().CacheDir, a.cache.Options().Namespace)
	o.Println("Type 'help' for available commands.")

	err := a.runShell(ctx, o, line)

	if history != "" {
		if f, createErr := os.Create(history); createErr == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}

	return err
}

func (a *app) runShell(ctx context.Context, o *IO, p prompter) error {
	// Commands must not read the shell's own input.
	in := o.in
	o.in = nil

	defer func() { o.in = in }()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := p.Prompt("fscache> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p.AppendHistory(line)

		words, err := splitWords(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch words[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			a.printShellHelp(o)

			continue
		case "shell":
			o.ErrPrintln("error:", errNestedShell)

			continue
		}

		cmd := a.lookup(words[0])
		if cmd == nil {
			o.ErrPrintln("error:", fmt.Errorf("%w: %s (type 'help' for commands)", errUnknownCommand, words[0]))

			continue
		}

		cmd.Run(ctx, o, words[1:])

		for _, w := range o.drainWarnings() {
			o.ErrPrintln("warning:", w)
		}
	}
}

func (a *app) printShellHelp(o *IO) {
	cmds := slices.DeleteFunc(a.commands(), func(cmd *Command) bool { return cmd.Name() == "shell" })
	for _, line := range commandListing(cmds) {
		o.Println(line)
	}

	o.Println("  help                               Show this help")
	o.Println("  exit / quit / q                    Exit")
}

// complete provides tab completion: command names for the first word, keys
// of the namespace for the second.
func (a *app) complete(line string) []string {
	cmdName, partial, hasArg := strings.Cut(line, " ")

	var completions []string

	if !hasArg {
		for _, cmd := range a.commands() {
			if strings.HasPrefix(cmd.Name(), cmdName) {
				completions = append(completions, cmd.Name())
			}
		}

		for _, builtin := range []string{"help", "exit", "quit"} {
			if strings.HasPrefix(builtin, cmdName) {
				completions = append(completions, builtin)
			}
		}

		return completions
	}

	if strings.Contains(partial, " ") {
		return nil
	}

	for key, err := range a.cache.Keys() {
		if err != nil {
			continue
		}

		if strings.HasPrefix(key, partial) {
			completions = append(completions, cmdName+" "+key)
		}

		if len(completions) >= maxKeyCompletions {
			break
		}
	}

	return completions
}

// splitWords splits line at whitespace. Double quotes group words; a
// backslash escapes the next character inside quotes.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quoted  bool
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)

			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			inWord = true
		case !quoted && (r == ' ' || r == '\t'):
			if inWord {
				words = append(words, current.String())
				current.Reset()

				inWord = false
			}
		default:
			current.WriteRune(r)

			inWord = true
		}
	}

	if quoted || escaped {
		return nil, errUnterminatedQuote
	}

	if inWord {
		words = append(words, current.String())
	}

	return words, nil
}
