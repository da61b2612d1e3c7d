package cli_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fscache/internal/cli"
)

func Test_Run_Prints_Usage_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, args := range [][]string{nil, {"--help"}, {"-h"}} {
		stdout, _, code := c.Run(args...)
		require.Equal(t, 0, code)
		require.Contains(t, stdout, "Usage: fscache [options] <command> [args]")
		require.Contains(t, stdout, "clear-tags [--any] <tag>...")
	}
}

func Test_Run_Lists_Commands_By_Group(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("--help")

	entries := strings.Index(stdout, "Entries:")
	tags := strings.Index(stdout, "Tags:")
	maintenance := strings.Index(stdout, "Maintenance:")

	require.Positive(t, entries)
	require.Greater(t, tags, entries)
	require.Greater(t, maintenance, tags)
	require.Greater(t, strings.Index(stdout, "clear-tags [--any]"), tags)
	require.Greater(t, strings.Index(stdout, "optimize"), maintenance)
}

func Test_Command_Fails_With_Usage_When_Arg_Count_Out_Of_Range(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("get", "a", "b")
	require.Contains(t, stderr, "too many arguments: want at most 1, got 2")
	require.Contains(t, stderr, "usage: fscache get [--raw] [--token] <key>")

	require.Contains(t, c.MustFail("cas", "k"), "missing arguments: want at least 2, got 1")
	require.Contains(t, c.MustFail("keys", "extra"), "too many arguments")
	require.Contains(t, c.MustFail("info", "extra"), "too many arguments")
}

func Test_Run_Fails_When_Command_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("frobnicate")
	require.Contains(t, stderr, "unknown command: frobnicate")
}

func Test_Run_Fails_When_Global_Flag_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	_, stderr, code := c.RunRaw("", "--bogus", "keys")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unknown flag: --bogus")
}

func Test_Command_Help_Prints_Flags(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	out := c.MustRun("set", "--help")
	require.Contains(t, out, "Usage: fscache set [--ttl <d>] <key> [value]")
	require.Contains(t, out, "--ttl")
}

func Test_Run_Fails_When_Options_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	require.Contains(t, c.MustFail("--dir-level", "17", "keys"), "invalid argument")
	require.Contains(t, c.MustFail("--ttl", "soon", "keys"), "invalid config")
}

func Test_Run_Creates_Cache_Dir_When_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.CacheDir = filepath.Join(c.Dir, "nested", "cache")

	c.MustRun("set", "k", "v")
	require.Equal(t, "v", c.MustRun("get", "k"))
}

func Test_Info_Reports_Settings_And_Limits(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	out := c.MustRun("-n", "ns", "--dir-level", "2", "--ttl", "90s", "info")
	require.Contains(t, out, "namespace=ns\n")
	require.Contains(t, out, "dir_level=2\n")
	require.Contains(t, out, "ttl=1m30s\n")
	require.Contains(t, out, "max_key_length=248\n")
	require.Contains(t, out, "metadata=mtime,filespec,atime,ctime\n")
	require.Contains(t, out, "total_bytes=")
}
