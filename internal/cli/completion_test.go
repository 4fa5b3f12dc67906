package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion_Command(t *testing.T) {
	tests := []struct {
		shell  string
		marker string
	}{
		{"bash", "bash completion"},
		{"zsh", "#compdef tether"},
		{"fish", "complete -c tether"},
		{"powershell", "Register-ArgumentCompleter"},
	}

	for _, tc := range tests {
		t.Run(tc.shell, func(t *testing.T) {
			res := runCLI(t, "", "--home", t.TempDir(), "completion", tc.shell)
			require.NoError(t, res.err)
			assert.Contains(t, res.stdout, tc.marker)
		})
	}
}

func TestCompletion_RejectsUnknownShell(t *testing.T) {
	res := runCLI(t, "", "--home", t.TempDir(), "completion", "tcsh")
	require.Error(t, res.err)
}

func TestCompleteConfigKeys(t *testing.T) {
	t.Parallel()

	keys, _ := completeConfigKeys(configGetCmd, nil, "")
	assert.Contains(t, keys, "providers.injected.endpoint")
	assert.Len(t, keys, len(configKeys))

	keys, _ = completeConfigKeys(configSetCmd, []string{"logging.level"}, "")
	assert.Empty(t, keys)
}
