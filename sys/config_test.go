package sys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DISCORD_TOKEN", "GUILD_ID", "DATABASE_PATH", "HISTORY_BACKEND", "MONGO_URI", "MONGO_DATABASE",
		"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "METRICS_ADDR", "OWNER_IDS", "SILENT",
		"SEARCH_RATE_LIMIT", "VOICE_YT_PREFIX", "VOICE_YTM_PREFIX",
		"AUTOPLAY_RECOMMENDATIONS", "AUTOPLAY_MAX_HISTORY", "AUTOPLAY_HISTORY_RETENTION",
		"AUTOPLAY_MAX_FAILURES", "AUTOPLAY_MAX_FALLBACKS", "AUTOPLAY_MAX_INACTIVE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_RequiresToken(t *testing.T) {
	clearConfigEnv(t)
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.HistoryBackend)
	assert.Equal(t, "[YT]", cfg.YoutubePrefix)
	assert.Equal(t, "[YTM]", cfg.YTMusicPrefix)
	assert.Equal(t, 5.0, cfg.SearchRateLimit)
	assert.Equal(t, DefaultAutoplayConfig(), cfg.Autoplay)
	assert.Nil(t, cfg.OwnerIDs)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("OWNER_IDS", " 111 , 222")
	t.Setenv("HISTORY_BACKEND", " Mongo ")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("AUTOPLAY_RECOMMENDATIONS", "4")
	t.Setenv("AUTOPLAY_HISTORY_RETENTION", "12h")
	t.Setenv("AUTOPLAY_MAX_INACTIVE", "not a duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, cfg.OwnerIDs)
	assert.Equal(t, BackendMongo, cfg.HistoryBackend)
	assert.Equal(t, 4, cfg.Autoplay.RecommendationCount)
	assert.Equal(t, 12*time.Hour, cfg.Autoplay.HistoryRetention)
	assert.Equal(t, DefaultAutoplayConfig().MaxInactiveTime, cfg.Autoplay.MaxInactiveTime)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Token: "t", HistoryBackend: BackendSQLite, Autoplay: DefaultAutoplayConfig()}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short guild id", func(c *Config) { c.GuildID = "123" }},
		{"mongo without uri", func(c *Config) { c.HistoryBackend = BackendMongo }},
		{"unknown backend", func(c *Config) { c.HistoryBackend = "redis" }},
		{"zero recommendations", func(c *Config) { c.Autoplay.RecommendationCount = 0 }},
		{"zero history", func(c *Config) { c.Autoplay.MaxHistorySize = 0 }},
		{"zero failures", func(c *Config) { c.Autoplay.MaxConsecutiveFailures = 0 }},
		{"negative retention", func(c *Config) { c.Autoplay.HistoryRetention = -time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
