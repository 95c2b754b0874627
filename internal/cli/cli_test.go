package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/homeauth/internal/config"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "homeauth", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"login"}, {"signup"}, {"resume"}, {"signout"}, {"device"}, {"apikey"}, {"version"},
		{"accounts", "list"}, {"accounts", "switch"}, {"accounts", "remove"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"version", "--format", "yaml"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// writeTestConfig points both databases into a temp dir.
func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.db")
	body := fmt.Sprintf(`
cache:
  path: %s
directory:
  driver: sqlite
  dsn: %s
google:
  client_id: test-client
  open_browser: false
`, cachePath, filepath.Join(dir, "directory.db"))
	path := filepath.Join(dir, "homeauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, cachePath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(""))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "version", "--format", "json")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Contains(t, body, "version")
}

func TestAPIKeyCommand(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	masked, err := runCLI(t, "apikey", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, masked, "*")

	rotated, err := runCLI(t, "apikey", "-c", cfgPath, "--regenerate", "--format", "json")
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rotated), &body))
	assert.Equal(t, false, body["masked"])
	assert.True(t, strings.HasPrefix(body["api_key"].(string), "sk-"))
}

func TestResumeAndSwitch(t *testing.T) {
	cfgPath, cachePath := writeTestConfig(t)

	out, err := runCLI(t, "resume", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	database, err := db.InitDB(cachePath)
	require.NoError(t, err)
	cache := db.NewSessionCache(database)
	for _, id := range []string{"acct-1", "acct-2"} {
		require.NoError(t, cache.UpsertActive(context.Background(), domain.Account{
			ID: id, ExternalID: "g-" + id, DisplayName: "User " + id, Email: id + "@example.com",
			AuthMethods: []domain.AuthMethod{domain.AuthMethodGoogle}, CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, closeGorm(database))

	out, err = runCLI(t, "resume", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "acct-2@example.com")

	out, err = runCLI(t, "accounts", "switch", "acct-1", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Switched to User acct-1")

	out, err = runCLI(t, "accounts", "list", "-c", cfgPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "* acct-1"), "active account listed first: %q", lines[0])

	_, err = runCLI(t, "accounts", "switch", "missing", "-c", cfgPath)
	require.Error(t, err)

	out, err = runCLI(t, "signout", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	out, err = runCLI(t, "accounts", "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No cached accounts.")
}

func TestTerminalConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			var prompt bytes.Buffer
			c := NewTerminalConfirmer(strings.NewReader(tt.input), &prompt)
			got, err := c.Confirm(context.Background(), session.PendingConfirmation{Message: session.PromptCreateAccount.Message()})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, prompt.String(), "[y/N]")
		})
	}
}

func TestTerminalConfirmer_SuccessiveAnswers(t *testing.T) {
	var prompt bytes.Buffer
	c := NewTerminalConfirmer(strings.NewReader("n\ny\n"), &prompt)
	msg := session.PendingConfirmation{Message: session.PromptLogInInstead.Message()}

	got, err := c.Confirm(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = c.Confirm(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, got, "second answer must not be lost to the first read")
}

func TestTerminalConfirmer_CancelledPromptKeepsInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var prompt bytes.Buffer
	c := NewTerminalConfirmer(pr, &prompt)
	msg := session.PendingConfirmation{Message: session.PromptCreateAccount.Message()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Confirm(ctx, msg)
	assert.ErrorIs(t, err, context.Canceled)

	go pw.Write([]byte("yes\n"))
	got, err := c.Confirm(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestPrintOutcome(t *testing.T) {
	acct := &domain.Account{ID: "acct-1", DisplayName: "Lan", Email: "lan@example.com"}

	var buf bytes.Buffer
	p := printer{format: "text", w: &buf}
	require.NoError(t, printOutcome(p, session.Outcome{Account: acct, CacheErr: domain.ErrCacheWriteFailed}, nil))
	assert.Contains(t, buf.String(), "Signed in as Lan")
	assert.Contains(t, buf.String(), "Warning:")

	buf.Reset()
	require.NoError(t, printOutcome(p, session.Outcome{}, fmt.Errorf("%w: closed", domain.ErrUserCancelled)))
	assert.Contains(t, buf.String(), "cancelled")

	buf.Reset()
	require.NoError(t, printOutcome(p, session.Outcome{}, domain.ErrDeclined))
	assert.Contains(t, buf.String(), "Nothing changed.")

	err := printOutcome(p, session.Outcome{}, fmt.Errorf("%w: timeout", domain.ErrDirectoryWriteFailed))
	require.Error(t, err)
	assert.Equal(t, domain.UserMessage(domain.ErrDirectoryWriteFailed), err.Error())
	assert.False(t, errors.Is(err, domain.ErrDirectoryWriteFailed))
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")
	cfg.DirectoryDriver = "mongo"
	_, err := newAppFromConfig(context.Background(), cfg, &bytes.Buffer{})
	require.Error(t, err)
}
