package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMustLoadPathAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "env: \"dev\"\ndiscord:\n  token: \"abc\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg := MustLoadPath(path)

	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "abc", cfg.Discord.Token)
	require.Equal(t, ":8080", cfg.HTTP.Address)
	require.Equal(t, "&vc", cfg.Discord.CommandPrefix)
	require.Equal(t, 30*time.Second, cfg.Lifecycle.GracePeriod)
	require.Equal(t, 3, cfg.Lifecycle.RetryAttempts)
}

func TestMustLoadPathOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `env: "prod"
http:
  address: ":9090"
lifecycle:
  grace_period: 60s
  join_mute_max: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg := MustLoadPath(path)

	require.Equal(t, ":9090", cfg.HTTP.Address)
	require.Equal(t, time.Minute, cfg.Lifecycle.GracePeriod)
	require.Equal(t, 5*time.Minute, cfg.Lifecycle.JoinMuteMax)
}

func TestMustLoadPathMissingFilePanics(t *testing.T) {
	require.Panics(t, func() {
		MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
