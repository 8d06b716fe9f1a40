package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"migrate", "detect", "load", "run", "status", "verify", "history", "export", "audit", "seed"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "cdc-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCycleCommands_OnceFlag(t *testing.T) {
	for _, c := range []struct {
		name string
		flag string
	}{
		{"detect", "once"},
		{"load", "once"},
	} {
		cmd, _, err := rootCmd.Find([]string{c.name})
		require.NoError(t, err)
		flag := cmd.Flags().Lookup(c.flag)
		require.NotNil(t, flag, "%s should have --%s", c.name, c.flag)
		assert.Equal(t, "false", flag.DefValue)
	}
}

func TestRunCommand_Flags(t *testing.T) {
	flag := runCmd.Flags().Lookup("addr")
	require.NotNil(t, flag, "run command should have --addr flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestHistoryCommand_Flags(t *testing.T) {
	flag := historyCmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
	assert.Equal(t, "o", flag.Shorthand)
}

func TestHistoryCommand_RequiresKey(t *testing.T) {
	assert.Error(t, historyCmd.Args(historyCmd, nil))
	assert.NoError(t, historyCmd.Args(historyCmd, []string{"42"}))
}

func TestStatusCommand_Flags(t *testing.T) {
	for _, name := range []string{"pipeline", "limit", "since"} {
		assert.NotNil(t, statusCmd.Flags().Lookup(name), "status should have --%s flag", name)
	}
	assert.Equal(t, "20", statusCmd.Flags().Lookup("limit").DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "dim_orders_history.xlsx", flag.DefValue)
}

func TestSeedCommand_Flags(t *testing.T) {
	flag := seedCmd.Flags().Lookup("orders")
	require.NotNil(t, flag)
	assert.Equal(t, "1000", flag.DefValue)
}

func TestMigrateCommand_Flags(t *testing.T) {
	assert.NotNil(t, migrateCmd.Flags().Lookup("source"))
}

func TestAuditCommand_HasInstall(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range auditCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["install"])
}
