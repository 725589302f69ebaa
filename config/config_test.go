package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAuthUsersSkipsMalformedEntries(t *testing.T) {
	got := ParseAuthUsers("alice:hunter1, bob:hunter2 ,noColonHere,  :emptyuser, trailing:")
	require.Equal(t, map[string]string{"alice": "hunter1", "bob": "hunter2"}, got)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("DT_LISTEN_ADDR", ":9999")
	t.Setenv("DT_WINDOW", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, 8, cfg.Window)
}

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":5191", cfg.ListenAddr)
	require.Equal(t, 16, cfg.Window)
}

func TestResolveAuthUsersListTakesPrecedence(t *testing.T) {
	cfg := Default()
	cfg.AuthUsersList = "alice:fromlist"

	users, err := cfg.ResolveAuthUsers()
	require.NoError(t, err)
	require.Equal(t, "fromlist", users["alice"])
}
