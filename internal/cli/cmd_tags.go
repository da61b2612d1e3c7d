package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fscache/pkg/fscache"
)

func (a *app) tagsCmd() *Command {
	return &Command{
		Usage: "tags <key>",
		Short: "List the tags of a key",
		Group: GroupTags,
		Args:  exactArgs(1),
		Exec: func(_ context.Context, o *IO, args []string) error {
			tags, ok, err := a.cache.GetTags(args[0])
			if err != nil {
				return err
			}

			if !ok {
				return fmt.Errorf("%w: %s", fscache.ErrNotFound, args[0])
			}

			for _, tag := range tags {
				o.Println(tag)
			}

			return nil
		},
	}
}

func (a *app) tagCmd() *Command {
	return &Command{
		Usage: "tag <key> [tag...]",
		Short: "Replace the tags of a key",
		Group: GroupTags,
		Args:  minArgs(1),
		Long:  "Replace the tags of an existing key. Without tags, the key's tags are removed.",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			ok, err := a.cache.SetTags(args[0], args[1:])
			if err != nil {
				return err
			}

			if !ok {
				return fmt.Errorf("%w: %s", fscache.ErrNotFound, args[0])
			}

			return nil
		},
	}
}

func (a *app) clearTagsCmd() *Command {
	flags := flag.NewFlagSet("clear-tags", flag.ContinueOnError)
	anyTag := flags.Bool("any", false, "Remove entries carrying any of the tags instead of all")

	return &Command{
		Flags: flags,
		Usage: "clear-tags [--any] <tag>...",
		Short: "Remove entries by tag",
		Group: GroupTags,
		Args:  minArgs(1),
		Long:  "Remove every entry of the namespace that carries all of the tags (or any, with --any).",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			return a.cache.ClearByTags(args, *anyTag)
		},
	}
}
