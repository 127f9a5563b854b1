package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.Server.URL)
	require.Equal(t, 300, cfg.Server.HeartbeatInterval)
	require.Equal(t, DeliveryModePoll, cfg.Delivery.Mode)
	require.Equal(t, 60, cfg.Delivery.PollInterval)
	require.False(t, cfg.Spawn.Enabled)
	require.Equal(t, 3, cfg.Spawn.MaxConcurrent)
	require.Equal(t, 24, cfg.Spawn.RetentionHours)
	require.Equal(t, 18789, cfg.Host.Port)
	require.Equal(t, "", cfg.Events.NATSURL)
	require.Equal(t, 0, cfg.Status.Port)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  url: https://gate.example.com
  heartbeatInterval: 120
delivery:
  mode: push
  projectId: p-1
spawn:
  enabled: true
  agentId: agent-1
  maxConcurrent: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	require.Equal(t, "https://gate.example.com", cfg.Server.URL)
	require.Equal(t, DeliveryModePush, cfg.Delivery.Mode)
	require.Equal(t, "p-1", cfg.Delivery.ProjectID)
	require.True(t, cfg.Spawn.Enabled)
	require.Equal(t, "agent-1", cfg.Spawn.AgentID)
	require.Equal(t, 5, cfg.Spawn.MaxConcurrent)

	// Untouched sections keep their defaults.
	require.Equal(t, 60, cfg.Delivery.PollInterval)
	require.Equal(t, 60, cfg.Spawn.Interval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	write := func(t *testing.T, content string) string {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
		return dir
	}

	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad server scheme",
			content: "server:\n  url: ftp://gate.example.com\n",
			wantErr: "server.url",
		},
		{
			name:    "unknown delivery mode",
			content: "delivery:\n  mode: carrier-pigeon\n",
			wantErr: "delivery.mode",
		},
		{
			name:    "non-positive poll interval",
			content: "delivery:\n  pollInterval: 0\n",
			wantErr: "pollInterval",
		},
		{
			name:    "spawn without agent id",
			content: "spawn:\n  enabled: true\n",
			wantErr: "spawn.agentId",
		},
		{
			name:    "spawn with zero ceiling",
			content: "spawn:\n  enabled: true\n  agentId: agent-1\n  maxConcurrent: 0\n",
			wantErr: "maxConcurrent",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWithPath(write(t, tc.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	server := ServerConfig{HeartbeatInterval: 120}
	require.Equal(t, 2*time.Minute, server.HeartbeatIntervalDuration())

	delivery := DeliveryConfig{PollInterval: 30}
	require.Equal(t, 30*time.Second, delivery.PollIntervalDuration())

	spawn := SpawnConfig{Interval: 90, RetentionHours: 24}
	require.Equal(t, 90*time.Second, spawn.IntervalDuration())
	require.Equal(t, 24*time.Hour, spawn.Retention())
}

func TestResolveCredentialPrefersFile(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "api-key")
	require.NoError(t, os.WriteFile(keyFile, []byte("  file-secret\n"), 0o600))

	server := ServerConfig{APIKey: "inline-secret", APIKeyFile: keyFile}
	key, err := server.ResolveAPIKey()
	require.NoError(t, err)
	require.Equal(t, "file-secret", key)

	server.APIKeyFile = ""
	key, err = server.ResolveAPIKey()
	require.NoError(t, err)
	require.Equal(t, "inline-secret", key)
}

func TestResolveCredentialFileErrors(t *testing.T) {
	host := HostConfig{Token: "inline", TokenFile: filepath.Join(t.TempDir(), "missing")}
	_, err := host.ResolveToken()
	require.Error(t, err)
	require.Contains(t, err.Error(), "host token")

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	host.TokenFile = empty
	_, err = host.ResolveToken()
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}
