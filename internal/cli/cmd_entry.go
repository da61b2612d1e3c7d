package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fscache/pkg/fscache"
)

var errMissingValue = errors.New("missing value: pass it as argument or on stdin")

// value returns args[idx], or all of stdin when the argument is absent or "-".
func (a *app) value(args []string, idx int) ([]byte, error) {
	if len(args) > idx && args[idx] != "-" {
		return []byte(args[idx]), nil
	}

	if a.io.in == nil {
		return nil, errMissingValue
	}

	data, err := io.ReadAll(a.io.in)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}

	return data, nil
}

// withTTL runs fn with the cache TTL temporarily set to ttl when the flag
// was given.
func (a *app) withTTL(flags *flag.FlagSet, ttl time.Duration, fn func() error) error {
	if !flags.Changed("ttl") {
		return fn()
	}

	prev := a.cache.Options().TTL

	if err := a.cache.UpdateOptions(func(o *fscache.Options) { o.TTL = ttl }); err != nil {
		return err
	}

	fnErr := fn()

	restoreErr := a.cache.UpdateOptions(func(o *fscache.Options) { o.TTL = prev })

	return errors.Join(fnErr, restoreErr)
}

func (a *app) getCmd() *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	raw := flags.Bool("raw", false, "Do not append a newline")
	token := flags.Bool("token", false, "Print the CAS token on the first line")

	return &Command{
		Flags: flags,
		Usage: "get [--raw] [--token] <key>",
		Short: "Print the value of a key",
		Group: GroupEntries,
		Args:  exactArgs(1),
		Long:  "Print the value stored under key. Fails if the key is missing or expired.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			value, tok, err := a.cache.GetWithToken(args[0])
			if err != nil {
				return err
			}

			if *token {
				o.Println(tok)
			}

			_, _ = o.Write(value)

			if !*raw {
				o.Println()
			}

			return nil
		},
	}
}

func (a *app) setCmd() *Command {
	flags := flag.NewFlagSet("set", flag.ContinueOnError)
	ttl := flags.Duration("ttl", 0, "Expire the entry after `duration` (0 = never)")

	return &Command{
		Flags: flags,
		Usage: "set [--ttl <d>] <key> [value]",
		Short: "Store a value",
		Group: GroupEntries,
		Args:  argRange(1, 2),
		Long:  "Store value under key, replacing any previous value and its tags. Reads stdin when value is omitted or \"-\".",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			value, err := a.value(args, 1)
			if err != nil {
				return err
			}

			return a.withTTL(flags, *ttl, func() error {
				return a.cache.Set(args[0], value)
			})
		},
	}
}

func (a *app) addCmd() *Command {
	return a.conditionalSetCmd("add", "Store a value only if the key is absent", func(key string, value []byte) (bool, error) {
		return a.cache.Add(key, value)
	})
}

func (a *app) replaceCmd() *Command {
	return a.conditionalSetCmd("replace", "Store a value only if the key exists", func(key string, value []byte) (bool, error) {
		return a.cache.Replace(key, value)
	})
}

func (a *app) conditionalSetCmd(name, short string, store func(key string, value []byte) (bool, error)) *Command {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	ttl := flags.Duration("ttl", 0, "Expire the entry after `duration` (0 = never)")

	return &Command{
		Flags: flags,
		Usage: name + " [--ttl <d>] <key> [value]",
		Short: short,
		Group: GroupEntries,
		Args:  argRange(1, 2),
		Long:  short + ". Prints true when the value was stored, false otherwise.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			value, err := a.value(args, 1)
			if err != nil {
				return err
			}

			return a.withTTL(flags, *ttl, func() error {
				stored, err := store(args[0], value)
				if err != nil {
					return err
				}

				o.Println(stored)

				return nil
			})
		},
	}
}

func (a *app) casCmd() *Command {
	flags := flag.NewFlagSet("cas", flag.ContinueOnError)
	ttl := flags.Duration("ttl", 0, "Expire the entry after `duration` (0 = never)")

	return &Command{
		Flags: flags,
		Usage: "cas [--ttl <d>] <key> <token> [value]",
		Short: "Store a value if its token still matches",
		Group: GroupEntries,
		Args:  argRange(2, 3),
		Long:  "Store value under key only if the entry is unchanged since \"get --token\" printed token.",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			value, err := a.value(args, 2)
			if err != nil {
				return err
			}

			return a.withTTL(flags, *ttl, func() error {
				return a.cache.CheckAndSet(args[1], args[0], value)
			})
		},
	}
}

func (a *app) rmCmd() *Command {
	return &Command{
		Usage: "rm <key>...",
		Short: "Remove keys",
		Group: GroupEntries,
		Args:  minArgs(1),
		Long:  "Remove keys and their tags. Prints the number of entries removed.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			missing, err := a.cache.RemoveMany(args)
			if err != nil {
				return err
			}

			o.Printf("removed %d\n", len(args)-len(missing))

			return nil
		},
	}
}

func (a *app) hasCmd() *Command {
	return &Command{
		Usage: "has <key>...",
		Short: "Report whether keys exist",
		Group: GroupEntries,
		Args:  minArgs(1),
		Long:  "Print true or false for a single key, or \"<key> true|false\" per line for several.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 1 {
				ok, err := a.cache.Has(args[0])
				if err != nil {
					return err
				}

				o.Println(ok)

				return nil
			}

			found, err := a.cache.HasMany(args)
			if err != nil {
				return err
			}

			present := keySet(found)
			for _, key := range args {
				_, ok := present[key]
				o.Printf("%s %t\n", key, ok)
			}

			return nil
		},
	}
}

func (a *app) touchCmd() *Command {
	flags := flag.NewFlagSet("touch", flag.ContinueOnError)
	ttl := flags.Duration("ttl", 0, "New lifetime `duration` (0 = never expires)")

	return &Command{
		Flags: flags,
		Usage: "touch [--ttl <d>] <key>...",
		Short: "Reset the expiration of keys",
		Group: GroupEntries,
		Args:  minArgs(1),
		Long:  "Rewrite the expiration of existing keys from now. Prints the number of entries touched.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return a.withTTL(flags, *ttl, func() error {
				missing, err := a.cache.TouchMany(args)
				if err != nil {
					return err
				}

				o.Printf("touched %d\n", len(args)-len(missing))

				return nil
			})
		},
	}
}

func (a *app) metaCmd() *Command {
	return &Command{
		Usage: "meta <key>",
		Short: "Show file metadata of a key",
		Group: GroupEntries,
		Args:  exactArgs(1),
		Exec: func(_ context.Context, o *IO, args []string) error {
			meta, err := a.cache.GetMetadata(args[0])
			if err != nil {
				return err
			}

			o.Println("filespec=" + meta.FileSpec)
			o.Println("mtime=" + formatTime(meta.MTime))

			caps := a.cache.Capabilities()

			if caps.SupportsMetadata(fscache.MetadataATime) {
				o.Println("atime=" + formatTime(meta.ATime))
			}

			if caps.SupportsMetadata(fscache.MetadataCTime) {
				o.Println("ctime=" + formatTime(meta.CTime))
			}

			return nil
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}

	return set
}
