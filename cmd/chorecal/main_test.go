package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorecal/internal/remote"
)

func writeConfig(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "config.yaml")
	body := "account_id: test-home\nsnapshot_path: " + filepath.Join(dir, "snapshot.json") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return dir, path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSyncCommand(t *testing.T) {
	dir, cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "--log-level", "error", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "account:  test-home")
	assert.Contains(t, out, "tasks:    0")

	_, err = os.Stat(filepath.Join(dir, "snapshot.json"))
	assert.NoError(t, err)
}

func TestRunSync_PushesGeneratedOccurrences(t *testing.T) {
	ctx := context.Background()
	_, path := writeConfig(t)
	conf, err := loadConfig(&rootFlags{configPath: path, logLevel: "error"})
	require.NoError(t, err)

	a, err := newApp(ctx, conf)
	require.NoError(t, err)
	defer a.Close()

	mem, ok := a.client.(*remote.Memory)
	require.True(t, ok)
	require.NoError(t, mem.UpsertTask(ctx, remote.TaskRecord{
		ID:           "root",
		OwnerID:      "test-home",
		Name:         "Dishes",
		DueDate:      time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		RepeatOption: "daily",
	}))

	var out bytes.Buffer
	require.NoError(t, runSync(ctx, a, &out))

	assert.Greater(t, a.store.Len(), 1, "daily root should have generated occurrences")
	assert.Equal(t, a.store.Len(), mem.Len(), "generated occurrences must reach the remote store")
	assert.Equal(t, 0, a.sync.Status().Pending)
	assert.NotContains(t, out.String(), "unsynced")
}

func TestExportCommand(t *testing.T) {
	dir, cfg := writeConfig(t)
	target := filepath.Join(dir, "out.ics")

	_, err := run(t, "--config", cfg, "--log-level", "error", "export", "-o", target)
	require.NoError(t, err)

	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
}

func TestImportCommand(t *testing.T) {
	dir, cfg := writeConfig(t)
	src := filepath.Join(dir, "in.ics")
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:bins@example",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240103T070000Z",
		"SUMMARY:Bins",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"
	require.NoError(t, os.WriteFile(src, []byte(ics), 0o600))

	out, err := run(t, "--config", cfg, "--log-level", "error", "import", src)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 task(s)")

	_, err = run(t, "--config", cfg, "import", filepath.Join(dir, "missing.ics"))
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "import")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  kind: dynamo\n"), 0o600))

	_, err := run(t, "--config", path, "sync")
	assert.Error(t, err)
}
