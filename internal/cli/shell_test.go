package cli_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fscache/internal/cli"
)

func Test_Shell_Runs_Commands_Until_Exit(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	script := `
# comment lines are skipped
set greeting "hello world"
get greeting
bogus
set --ttl 1h short lived
info
exit
get greeting
`

	stdout, stderr, code := c.RunWithInput(script, "shell")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "hello world\n")
	require.Contains(t, stdout, "ttl=0s\n", "a per-command ttl must not change the session default")
	require.Contains(t, stderr, "unknown command: bogus")
	require.Equal(t, "lived", c.MustRun("get", "short"))
}

func Test_Shell_Reports_Errors_And_Continues(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.RunWithInput("get missing\nset k \"unterminated\nset k v\nhas k\nshell\n", "shell")
	require.Equal(t, 0, code)
	require.Contains(t, stderr, "not found")
	require.Contains(t, stderr, "unterminated quote")
	require.Contains(t, stderr, "already in a shell")
	require.Contains(t, stdout, "true\n")
}
