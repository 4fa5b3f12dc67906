package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAllCommandsHaveShortDescription walks the entire command tree and
// verifies that every command has a non-empty Short description.
func TestAllCommandsHaveShortDescription(t *testing.T) {
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		t.Run(cmd.CommandPath(), func(t *testing.T) {
			assert.NotEmpty(t, cmd.Short,
				"%s: missing Short description", cmd.CommandPath())
			assert.LessOrEqual(t, len(cmd.Short), 80,
				"%s: Short description too long", cmd.CommandPath())
		})
	})
}

func TestAllCommandsHaveLongDescription(t *testing.T) {
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		t.Run(cmd.CommandPath(), func(t *testing.T) {
			assert.NotEmpty(t, cmd.Long,
				"%s: missing Long description", cmd.CommandPath())
			assert.False(t,
				strings.Contains(cmd.Long, "\nExample:") ||
					strings.Contains(cmd.Long, "\nExamples:"),
				"%s: Long contains embedded examples; move to Example field",
				cmd.CommandPath())
		})
	})
}

// TestLeafCommandsHaveExamples verifies that every runnable command has an
// Example that invokes tether.
func TestLeafCommandsHaveExamples(t *testing.T) {
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		if cmd.RunE == nil && cmd.Run == nil {
			return
		}
		if cmd == rootCmd || cmd.Name() == "help" {
			return
		}
		t.Run(cmd.CommandPath(), func(t *testing.T) {
			require.NotEmpty(t, cmd.Example,
				"%s: leaf command missing Example field", cmd.CommandPath())
			assert.Contains(t, cmd.Example, "tether")
		})
	})
}

func TestAllFlagsHaveDescriptions(t *testing.T) {
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			t.Run(cmd.CommandPath()+"/--"+f.Name, func(t *testing.T) {
				assert.NotEmpty(t, f.Usage,
					"flag --%s on %s has no description", f.Name, cmd.CommandPath())
			})
		})
	})
}

// TestCommandGroupsAssigned verifies all top-level commands have a GroupID
// set for organized help output.
func TestCommandGroupsAssigned(t *testing.T) {
	groups := map[string]bool{}
	for _, g := range rootCmd.Groups() {
		groups[g.ID] = true
	}

	for _, cmd := range rootCmd.Commands() {
		if !cmd.IsAvailableCommand() || cmd.Name() == "help" {
			continue
		}
		t.Run(cmd.Name(), func(t *testing.T) {
			require.NotEmpty(t, cmd.GroupID,
				"top-level command %q missing GroupID", cmd.Name())
			assert.True(t, groups[cmd.GroupID], "unknown group %q", cmd.GroupID)
		})
	}
}

func TestRootHelpContainsGroups(t *testing.T) {
	res := runCLI(t, "", "--help")
	require.NoError(t, res.err)

	for _, title := range []string{"Session:", "Chain Reads:", "Signing & Transactions:", "Configuration:"} {
		assert.Contains(t, res.stdout, title)
	}
	assert.Contains(t, res.stdout, "--provider")
}

func TestParentCommandsShowSubcommandsInHelp(t *testing.T) {
	for _, parent := range []*cobra.Command{signCmd, sendCmd, configCmd} {
		t.Run(parent.Name(), func(t *testing.T) {
			buf := new(bytes.Buffer)
			parent.SetOut(buf)
			t.Cleanup(func() { parent.SetOut(nil) })
			require.NoError(t, parent.Help())

			help := buf.String()
			assert.Contains(t, help, "Available Commands:")
			assert.Contains(t, parent.Long, "Subcommands:")
			for _, sub := range parent.Commands() {
				if sub.IsAvailableCommand() {
					assert.Contains(t, help, sub.Name())
				}
			}
		})
	}
}

func TestWalkCommandsVisitsAll(t *testing.T) {
	var visited []string
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		visited = append(visited, cmd.CommandPath())
	})

	expected := []string{
		"tether",
		"tether connect",
		"tether disconnect",
		"tether status",
		"tether providers",
		"tether shell",
		"tether chain-id",
		"tether accounts",
		"tether balance",
		"tether network",
		"tether sign",
		"tether sign message",
		"tether sign typed",
		"tether send",
		"tether send native",
		"tether send token",
		"tether receipt",
		"tether metrics",
		"tether config",
		"tether config show",
		"tether config init",
		"tether version",
		"tether completion",
	}
	for _, path := range expected {
		assert.Contains(t, visited, path, "walkCommands did not visit %q", path)
	}
}

func newNoopRun() func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {}
}

func TestEnrichParentLong(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		children []*cobra.Command
		contains []string
		excludes []string
	}{
		{
			name: "lists visible subcommands",
			children: []*cobra.Command{
				{Use: "sub1", Short: "First subcommand", Run: newNoopRun()},
				{Use: "sub2", Short: "Second subcommand", Run: newNoopRun()},
			},
			contains: []string{"Base description.", "Subcommands:", "sub1", "First subcommand", "sub2"},
		},
		{
			name: "skips hidden subcommands",
			children: []*cobra.Command{
				{Use: "visible", Short: "Visible command", Run: newNoopRun()},
				{Use: "secret", Short: "Secret command", Hidden: true, Run: newNoopRun()},
			},
			contains: []string{"visible"},
			excludes: []string{"secret"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			parent := &cobra.Command{Use: "parent", Short: "Parent", Long: "Base description."}
			parent.AddCommand(tc.children...)

			enrichParentLong(parent)

			for _, s := range tc.contains {
				assert.Contains(t, parent.Long, s)
			}
			for _, s := range tc.excludes {
				assert.NotContains(t, parent.Long, s)
			}
		})
	}
}

func TestEnrichParentLong_NoSubcommands(t *testing.T) {
	t.Parallel()

	leaf := &cobra.Command{Use: "leaf", Short: "A leaf", Long: "Leaf description."}
	enrichParentLong(leaf)
	assert.Equal(t, "Leaf description.", leaf.Long)
}

func TestFlagGroups(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *cobra.Command
		flags map[string]string
	}{
		{"typed demo and file", signTypedCmd, map[string]string{"demo": "true", "file": "x.json"}},
		{"typed neither", signTypedCmd, map[string]string{}},
		{"native demo and to", sendNativeCmd, map[string]string{"demo": "true", "to": "0x0"}},
		{"token demo and token", sendTokenCmd, map[string]string{"demo": "true", "token": "0x0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Cleanup(resetFlags)
			for name, value := range tc.flags {
				require.NoError(t, tc.cmd.Flags().Set(name, value))
			}
			require.Error(t, tc.cmd.ValidateFlagGroups())
		})
	}
}

func TestHelpOutputContainsGlobalFlags(t *testing.T) {
	buf := new(bytes.Buffer)
	balanceCmd.SetOut(buf)
	t.Cleanup(func() { balanceCmd.SetOut(nil) })
	require.NoError(t, balanceCmd.Help())

	help := buf.String()
	for _, flag := range []string{"--home", "--output", "--verbose", "--provider"} {
		assert.Contains(t, help, flag)
	}
	assert.Contains(t, help, "Examples:")
}
