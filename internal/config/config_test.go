package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "LOG_LEVEL", "LOG_PRETTY", "OPENAI_API_KEY", "OPENAI_MODEL", "SCORING_TIMEOUT",
	"ROOM_MAX_AGE", "SWEEP_INTERVAL", "VOTING_TIME", "RESULT_DELAY", "VOTE_SETTLE_DELAY",
	"GAME_TIME_LIMIT", "MAX_ROUNDS", "WS_RATE", "WS_BURST",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Equal(t, 10*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Rooms.MaxAge)
	assert.Equal(t, 5*time.Minute, cfg.Rooms.SweepInterval)
	assert.Equal(t, GameConfig{
		VotingTime:      30 * time.Second,
		ResultDelay:     8 * time.Second,
		VoteSettleDelay: time.Second,
		TimeLimit:       5 * time.Minute,
		MaxRounds:       3,
	}, cfg.Game)
	assert.Equal(t, WSConfig{Rate: 5, Burst: 10}, cfg.WS)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_PRETTY", "false")
	t.Setenv("VOTING_TIME", "45s")
	t.Setenv("VOTE_SETTLE_DELAY", "0s")
	t.Setenv("MAX_ROUNDS", "5")
	t.Setenv("WS_RATE", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, 45*time.Second, cfg.Game.VotingTime)
	assert.Zero(t, cfg.Game.VoteSettleDelay)
	assert.Equal(t, 5, cfg.Game.MaxRounds)
	assert.Equal(t, 2.5, cfg.WS.Rate)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_MODEL=gpt-4o-mini\nPORT=7000\n"), 0o600))
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "7100", cfg.Port)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value, msg string
	}{
		{"VOTING_TIME", "soon", "invalid VOTING_TIME"},
		{"VOTING_TIME", "0s", "invalid VOTING_TIME"},
		{"MAX_ROUNDS", "three", "invalid MAX_ROUNDS"},
		{"MAX_ROUNDS", "11", "invalid MAX_ROUNDS"},
		{"LOG_PRETTY", "maybe", "invalid LOG_PRETTY"},
		{"WS_RATE", "-1", "invalid WS_RATE"},
		{"RESULT_DELAY", "-2s", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
