package cli

import (
	"context"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

func (a *app) keysCmd() *Command {
	flags := flag.NewFlagSet("keys", flag.ContinueOnError)
	prefix := flags.String("prefix", "", "Only list keys starting with `prefix`")

	return &Command{
		Flags: flags,
		Usage: "keys [--prefix <p>]",
		Short: "List keys of the namespace, sorted",
		Group: GroupEntries,
		Long:  "List keys of the namespace, sorted. Expired entries not yet cleaned up are included.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			var keys []string

			for key, err := range a.cache.Keys() {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}

				if err != nil {
					o.Warn(err.Error())

					continue
				}

				if strings.HasPrefix(key, *prefix) {
					keys = append(keys, key)
				}
			}

			slices.Sort(keys)

			for _, key := range keys {
				o.Println(key)
			}

			return nil
		},
	}
}

func (a *app) infoCmd() *Command {
	return &Command{
		Usage: "info",
		Short: "Show cache settings, limits and disk space",
		Group: GroupSession,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			opts := a.cache.Options()
			caps := a.cache.Capabilities()

			o.Println("cache_dir=" + opts.CacheDir)
			o.Println("namespace=" + opts.Namespace)
			o.Printf("dir_level=%d\n", opts.DirLevel)
			o.Println("suffix=" + opts.Suffix)
			o.Println("tag_suffix=" + opts.TagSuffix)
			o.Printf("file_locking=%t\n", opts.FileLocking)
			o.Printf("ttl=%s\n", opts.TTL)
			o.Printf("max_key_length=%d\n", caps.MaxKeyLength)
			o.Printf("min_ttl=%s\n", caps.MinTTL)
			o.Printf("ttl_precision=%s\n", caps.TTLPrecision)
			o.Println("metadata=" + strings.Join(caps.SupportedMetadata, ","))

			total, err := a.cache.TotalSpace()
			if err != nil {
				return err
			}

			avail, err := a.cache.AvailableSpace()
			if err != nil {
				return err
			}

			o.Printf("total_bytes=%d\n", total)
			o.Printf("available_bytes=%d\n", avail)

			return nil
		},
	}
}

func (a *app) printConfigCmd() *Command {
	return &Command{
		Usage: "print-config",
		Short: "Show resolved configuration",
		Group: GroupSession,
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := FormatConfig(a.cfg)
			if err != nil {
				return err
			}

			o.Println(formatted)
			o.Println("")
			o.Println("# sources")

			if a.sources.Global == "" && a.sources.Project == "" {
				o.Println("(defaults only)")

				return nil
			}

			if a.sources.Global != "" {
				o.Println("global_config=" + a.sources.Global)
			}

			if a.sources.Project != "" {
				o.Println("project_config=" + a.sources.Project)
			}

			return nil
		},
	}
}
