package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

const sampleChannelFile = `
channels:
  - name: ops-webhooks
    type: webhook
    enabled: true
    config:
      urls:
        - https://hooks.slack.com/services/T/B/X
        - https://example.com/hook
  - name: oncall-mail
    type: email
    enabled: false
    config:
      recipients: oncall@example.com
rules:
  - id: security-urgent
    name: Urgent security events
    severity: urgent
    condition_type: EQ
    sources: [security]
    enabled: true
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadChannelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	writeFile(t, path, sampleChannelFile)

	f, err := LoadChannelFile(path)
	require.NoError(t, err)
	require.Len(t, f.Channels, 2)

	hooks := f.Channels[0]
	assert.Equal(t, models.ChannelWebhook, hooks.Type)
	assert.True(t, hooks.Enabled)
	assert.Equal(t, []string{"https://hooks.slack.com/services/T/B/X", "https://example.com/hook"}, hooks.StringList("urls"))
	assert.NotEqual(t, [16]byte{}, [16]byte(hooks.ID))

	again, err := LoadChannelFile(path)
	require.NoError(t, err)
	assert.Equal(t, hooks.ID, again.Channels[0].ID, "derived ids are stable")

	assert.Equal(t, []string{"oncall@example.com"}, f.Channels[1].StringList("recipients"))

	require.Len(t, f.Rules, 1)
	assert.Equal(t, models.SeverityUrgent, f.Rules[0].Severity)
	assert.Equal(t, []models.Source{models.SourceSecurity}, f.Rules[0].Sources)
}

func TestLoadChannelFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadChannelFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "channels: [")
	_, err = LoadChannelFile(bad)
	assert.Error(t, err)

	noType := filepath.Join(dir, "notype.yaml")
	writeFile(t, noType, "channels:\n  - name: x\n")
	_, err = LoadChannelFile(noType)
	assert.Error(t, err)

	badRule := filepath.Join(dir, "rule.yaml")
	writeFile(t, badRule, "rules:\n  - id: r\n    severity: critical\n")
	_, err = LoadChannelFile(badRule)
	assert.Error(t, err)
}

func TestWatchChannelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	writeFile(t, path, sampleChannelFile)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *ChannelFile, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchChannelFile(ctx, path, logging.NewDiscard(), func(f *ChannelFile) { changes <- f })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, "channels: [") // invalid: skipped
	writeFile(t, path, "channels:\n  - name: only\n    type: slack\n    enabled: true\n")

	// A truncate can surface as its own event, so wait for the final content.
	deadline := time.After(3 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case f := <-changes:
			if len(f.Channels) == 1 {
				assert.Equal(t, "only", f.Channels[0].Name)
				reloaded = true
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchChannelFile_AtomicSaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	writeFile(t, path, sampleChannelFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *ChannelFile, 16)
	go func() {
		_ = WatchChannelFile(ctx, path, logging.NewDiscard(), func(f *ChannelFile) { changes <- f })
	}()
	time.Sleep(100 * time.Millisecond)

	save := func(name string) {
		tmp := filepath.Join(dir, ".channels.yaml.tmp")
		writeFile(t, tmp, "channels:\n  - name: "+name+"\n    type: slack\n    enabled: true\n")
		require.NoError(t, os.Rename(tmp, path))
	}
	waitFor := func(name string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case f := <-changes:
				if len(f.Channels) == 1 && f.Channels[0].Name == name {
					return
				}
			case <-deadline:
				t.Fatalf("no reload with channel %q", name)
			}
		}
	}

	// Two saves in a row: the watch must survive the first replacement.
	save("first")
	waitFor("first")
	save("second")
	waitFor("second")
}
