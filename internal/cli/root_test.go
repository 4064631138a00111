package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/version"
)

// hermeticEnv pins the variables the commands read so the host
// environment cannot leak in.
func hermeticEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EVENT_BUS_NAME", "")
	t.Setenv("USE_MOCK_PROVIDERS", "false")
	t.Setenv("SYNC_POLICY_FILE", "")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "reqsync", cmd.Use)
	assert.Contains(t, cmd.Long, "headcount plans")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "consume", "event", "migrate", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "", levelFlag.DefValue)
}

func TestArgumentValidation(t *testing.T) {
	hermeticEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "serve takes no args", args: []string{"serve", "extra"}},
		{name: "migrate takes no args", args: []string{"migrate", "extra"}},
		{name: "event takes one source", args: []string{"event", "a.json", "b.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			require.Error(t, err)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "reqsync "+version.Version))

	out, _, err = execute(t, "", "version", "--json")
	require.NoError(t, err)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestEventCommand(t *testing.T) {
	hermeticEnv(t)

	ignored := `{"source":"mock.paylocity","detail-type":"MockPaylocityEvent","detail":{"type":"headcount_plan"}}`
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(ignored), 0o600))

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{name: "stdin by default", stdin: ignored, args: []string{"event"}},
		{name: "explicit stdin", stdin: ignored, args: []string{"event", "-"}},
		{name: "file", args: []string{"event", path}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)

			var ack events.Ack
			require.NoError(t, json.Unmarshal([]byte(out), &ack))
			assert.Equal(t, events.AckIgnored, ack.Status)
			assert.Equal(t, "Event ignored", ack.Message)
		})
	}
}

func TestEventCommand_Errors(t *testing.T) {
	hermeticEnv(t)

	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{name: "invalid json", stdin: `{"source":`, args: []string{"event"}, wantErr: "invalid event payload"},
		{name: "missing file", args: []string{"event", filepath.Join(t.TempDir(), "missing.json")}, wantErr: "failed to read event file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out)
		})
	}
}

func TestConsumeRequiresBus(t *testing.T) {
	hermeticEnv(t)

	_, _, err := execute(t, "", "consume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_BUS_NAME")
}

func TestMigrateCommand(t *testing.T) {
	hermeticEnv(t)
	dsn := filepath.Join(t.TempDir(), "requisitions.db")
	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("STORE_DSN", dsn)

	out, _, err := execute(t, "", "--log-level", "info", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Store migrations applied")

	_, err = os.Stat(dsn)
	assert.NoError(t, err)

	// Applying again is a no-op
	_, _, err = execute(t, "", "migrate")
	require.NoError(t, err)
}

func TestInvalidConfig(t *testing.T) {
	hermeticEnv(t)
	t.Setenv("STORE_DRIVER", "mongo")

	for _, args := range [][]string{{"migrate"}, {"event"}} {
		_, _, err := execute(t, "{}", args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STORE_DRIVER")
	}
}

