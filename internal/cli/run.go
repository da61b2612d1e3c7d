package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fscache/pkg/fscache"
)

var errUnknownCommand = errors.New("unknown command")

// globalFlags holds the flags accepted before the command name.
type globalFlags struct {
	set *flag.FlagSet

	workDir    string
	configPath string
	dir        string
	namespace  string
	dirLevel   int
	ttl        string
	noLock     bool
	verbose    bool
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("fscache", flag.ContinueOnError)}

	g.set.SetInterspersed(false)
	g.set.SetOutput(io.Discard)

	g.set.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	g.set.StringVar(&g.dir, "dir", "", "Cache `directory` (default: system temp dir)")
	g.set.StringVarP(&g.namespace, "namespace", "n", "", "Key `namespace`")
	g.set.IntVar(&g.dirLevel, "dir-level", 1, "Shard directory `levels` (0-16)")
	g.set.StringVar(&g.ttl, "ttl", "", "Default entry `duration`, e.g. 10m (default: never expires)")
	g.set.BoolVar(&g.noLock, "no-lock", false, "Disable file locking; writes use temp file + rename")
	g.set.BoolVarP(&g.verbose, "verbose", "v", false, "Log debug messages to stderr")
	g.set.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

// overrides returns the config values given as flags.
func (g *globalFlags) overrides() Config {
	var cfg Config

	if g.set.Changed("dir") {
		cfg.Dir = g.dir
	}

	if g.set.Changed("namespace") {
		cfg.Namespace = g.namespace
	}

	if g.set.Changed("dir-level") {
		level := g.dirLevel
		cfg.DirLevel = &level
	}

	if g.set.Changed("ttl") {
		cfg.TTL = g.ttl
	}

	if g.noLock {
		locking := false
		cfg.FileLocking = &locking
	}

	return cfg
}

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	g := newGlobalFlags()

	if len(args) > 0 {
		args = args[1:]
	}

	if err := g.set.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, nil)

		return 1
	}

	rest := g.set.Args()

	if g.help || len(rest) == 0 {
		printUsage(out, g)

		return 0
	}

	workDir := g.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}

		workDir = wd
	}

	cfg, sources, err := LoadConfig(workDir, g.configPath, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cfg = mergeConfig(cfg, g.overrides())

	o := NewIO(in, out, errOut)

	a, err := newApp(o, cfg, sources, workDir, env, g.verbose)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}
	defer a.close()

	code := a.dispatch(ctx, rest)
	if code != 0 {
		return code
	}

	return o.Finish()
}

// app is the state shared by all commands of one invocation (and of every
// line typed into the shell).
type app struct {
	cache   *fscache.Cache
	cfg     Config
	sources ConfigSources
	env     map[string]string
	io      *IO
}

func newApp(o *IO, cfg Config, sources ConfigSources, workDir string, env map[string]string, verbose bool) (*app, error) {
	opts, err := cfg.Options(workDir)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts.Logger = slog.New(slog.NewTextHandler(o.errOut, &slog.HandlerOptions{Level: level}))
	opts.OnCleanupError = func(err error) { o.Warn(err.Error()) }

	if opts.CacheDir != "" {
		if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	cache, err := fscache.New(opts)
	if err != nil {
		return nil, err
	}

	return &app{cache: cache, cfg: cfg, sources: sources, env: env, io: o}, nil
}

func (a *app) close() {
	_ = a.cache.Close()
}

// commands returns fresh command instances. Flag sets keep parse state, so
// every dispatch builds its own.
func (a *app) commands() []*Command {
	return []*Command{
		a.getCmd(),
		a.setCmd(),
		a.addCmd(),
		a.replaceCmd(),
		a.casCmd(),
		a.rmCmd(),
		a.hasCmd(),
		a.touchCmd(),
		a.metaCmd(),
		a.tagsCmd(),
		a.tagCmd(),
		a.keysCmd(),
		a.clearNamespaceCmd(),
		a.clearPrefixCmd(),
		a.clearTagsCmd(),
		a.clearExpiredCmd(),
		a.flushCmd(),
		a.optimizeCmd(),
		a.infoCmd(),
		a.printConfigCmd(),
		a.shellCmd(),
	}
}

func (a *app) lookup(name string) *Command {
	for _, cmd := range a.commands() {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

func (a *app) dispatch(ctx context.Context, args []string) int {
	cmd := a.lookup(args[0])
	if cmd == nil {
		fprintln(a.io.errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, args[0]))
		printUsage(a.io.errOut, nil)

		return 1
	}

	return cmd.Run(ctx, a.io, args[1:])
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, g *globalFlags) {
	if g == nil {
		g = newGlobalFlags()
	}

	fprintln(w, `fscache - filesystem-backed key/value cache

Usage: fscache [options] <command> [args]

Options:`)

	var buf strings.Builder
	g.set.SetOutput(&buf)
	g.set.PrintDefaults()
	g.set.SetOutput(io.Discard)
	_, _ = io.WriteString(w, buf.String())
	fprintln(w)

	a := &app{}
	for _, line := range commandListing(a.commands()) {
		fprintln(w, line)
	}
}
