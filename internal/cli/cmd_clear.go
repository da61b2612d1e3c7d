package cli

import (
	"context"
	"errors"
)

var errFlushTempDir = errors.New("refusing to flush the system temp directory: pass --dir or set \"dir\" in the config")

func (a *app) clearNamespaceCmd() *Command {
	return &Command{
		Usage: "clear-ns <namespace>",
		Short: "Remove all entries of a namespace",
		Group: GroupMaintenance,
		Args:  exactArgs(1),
		Exec: func(_ context.Context, _ *IO, args []string) error {
			return a.cache.ClearByNamespace(args[0])
		},
	}
}

func (a *app) clearPrefixCmd() *Command {
	return &Command{
		Usage: "clear-prefix <prefix>",
		Short: "Remove entries whose key starts with prefix",
		Group: GroupMaintenance,
		Args:  exactArgs(1),
		Exec: func(_ context.Context, _ *IO, args []string) error {
			return a.cache.ClearByPrefix(args[0])
		},
	}
}

func (a *app) clearExpiredCmd() *Command {
	return &Command{
		Usage: "clear-expired",
		Short: "Remove expired entries of the namespace",
		Group: GroupMaintenance,
		Exec: func(_ context.Context, _ *IO, _ []string) error {
			return a.cache.ClearExpired()
		},
	}
}

func (a *app) flushCmd() *Command {
	return &Command{
		Usage: "flush",
		Short: "Remove everything below the cache directory",
		Group: GroupMaintenance,
		Long: "Remove every file and directory below the cache directory, including files the cache " +
			"did not create. The directory itself is kept.",
		Exec: func(_ context.Context, _ *IO, _ []string) error {
			if a.cfg.Dir == "" {
				return errFlushTempDir
			}

			return a.cache.Flush()
		},
	}
}

func (a *app) optimizeCmd() *Command {
	return &Command{
		Usage: "optimize",
		Short: "Remove empty shard directories",
		Group: GroupMaintenance,
		Exec: func(_ context.Context, _ *IO, _ []string) error {
			return a.cache.Optimize()
		},
	}
}
