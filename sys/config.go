package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Token           string
	GuildID         string
	DatabasePath    string
	HistoryBackend  string
	MongoURI        string
	MongoDatabase   string
	SpotifyID       string
	SpotifySecret   string
	MetricsAddr     string
	OwnerIDs        []string
	Silent          bool
	SearchRateLimit float64
	YoutubePrefix   string
	YTMusicPrefix   string
	Autoplay        AutoplayConfig
}

// AutoplayConfig holds the tuning knobs of the autoplay engine.
type AutoplayConfig struct {
	RecommendationCount    int
	MaxHistorySize         int
	HistoryRetention       time.Duration
	MaxConsecutiveFailures int
	MaxFallbackAttempts    int
	MaxInactiveTime        time.Duration
}

const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// DefaultAutoplayConfig returns the stock autoplay tuning.
func DefaultAutoplayConfig() AutoplayConfig {
	return AutoplayConfig{
		RecommendationCount:    7,
		MaxHistorySize:         500,
		HistoryRetention:       24 * time.Hour,
		MaxConsecutiveFailures: 3,
		MaxFallbackAttempts:    5,
		MaxInactiveTime:        10 * time.Minute,
	}
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("HISTORY_BACKEND")))
	if backend == "" {
		backend = BackendSQLite
	}

	mongoDB := os.Getenv("MONGO_DATABASE")
	if mongoDB == "" {
		mongoDB = GetProjectName()
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	ytPrefix := os.Getenv("VOICE_YT_PREFIX")
	if ytPrefix == "" {
		ytPrefix = "[YT]"
	}
	ytmPrefix := os.Getenv("VOICE_YTM_PREFIX")
	if ytmPrefix == "" {
		ytmPrefix = "[YTM]"
	}

	ap := DefaultAutoplayConfig()
	ap.RecommendationCount = envInt("AUTOPLAY_RECOMMENDATIONS", ap.RecommendationCount)
	ap.MaxHistorySize = envInt("AUTOPLAY_MAX_HISTORY", ap.MaxHistorySize)
	ap.HistoryRetention = envDuration("AUTOPLAY_HISTORY_RETENTION", ap.HistoryRetention)
	ap.MaxConsecutiveFailures = envInt("AUTOPLAY_MAX_FAILURES", ap.MaxConsecutiveFailures)
	ap.MaxFallbackAttempts = envInt("AUTOPLAY_MAX_FALLBACKS", ap.MaxFallbackAttempts)
	ap.MaxInactiveTime = envDuration("AUTOPLAY_MAX_INACTIVE", ap.MaxInactiveTime)

	cfg := &Config{
		Token:           os.Getenv("DISCORD_TOKEN"),
		GuildID:         os.Getenv("GUILD_ID"),
		DatabasePath:    dbPath,
		HistoryBackend:  backend,
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   mongoDB,
		SpotifyID:       os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifySecret:   os.Getenv("SPOTIFY_CLIENT_SECRET"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		OwnerIDs:        ownerIDs,
		Silent:          silent,
		SearchRateLimit: envFloat("SEARCH_RATE_LIMIT", 5),
		YoutubePrefix:   ytPrefix,
		YTMusicPrefix:   ytmPrefix,
		Autoplay:        ap,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	switch c.HistoryBackend {
	case BackendSQLite:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("HISTORY_BACKEND=mongo requires MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.HistoryBackend)
	}
	return c.Autoplay.Validate()
}

func (a AutoplayConfig) Validate() error {
	if a.RecommendationCount <= 0 {
		return fmt.Errorf("AUTOPLAY_RECOMMENDATIONS must be positive")
	}
	if a.MaxHistorySize <= 0 {
		return fmt.Errorf("AUTOPLAY_MAX_HISTORY must be positive")
	}
	if a.MaxConsecutiveFailures <= 0 || a.MaxFallbackAttempts <= 0 {
		return fmt.Errorf("autoplay failure thresholds must be positive")
	}
	if a.HistoryRetention <= 0 || a.MaxInactiveTime <= 0 {
		return fmt.Errorf("autoplay durations must be positive")
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "jukebox"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "jukebox"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}
