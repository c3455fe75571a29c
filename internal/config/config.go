package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	DatabaseDriver      string // postgres | sqlite
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	LogLevel            string

	Session SessionConfig
}

// SessionConfig tunes the client session controllers.
type SessionConfig struct {
	AutosaveDelay       time.Duration
	LayoutSaveDelay     time.Duration
	LayoutSavedDisplay  time.Duration
	RefetchDelay        time.Duration
	ConfidenceSaveDelay time.Duration
	GridCols            int
	Compact             bool
	// MaxRealtimePayload is the largest record payload published with its answers.
	MaxRealtimePayload int
}

// DefaultSessionConfig returns the timings the board ships with.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AutosaveDelay:       700 * time.Millisecond,
		LayoutSaveDelay:     500 * time.Millisecond,
		LayoutSavedDisplay:  2 * time.Second,
		RefetchDelay:        500 * time.Millisecond,
		ConfidenceSaveDelay: 600 * time.Millisecond,
		GridCols:            10,
		Compact:             true,
		MaxRealtimePayload:  64 * 1024,
	}
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	def := DefaultSessionConfig()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTOSAVE_DELAY_MS", def.AutosaveDelay.Milliseconds())
	v.SetDefault("LAYOUT_SAVE_DELAY_MS", def.LayoutSaveDelay.Milliseconds())
	v.SetDefault("LAYOUT_SAVED_DISPLAY_MS", def.LayoutSavedDisplay.Milliseconds())
	v.SetDefault("REFETCH_DELAY_MS", def.RefetchDelay.Milliseconds())
	v.SetDefault("CONFIDENCE_SAVE_DELAY_MS", def.ConfidenceSaveDelay.Milliseconds())
	v.SetDefault("GRID_COLS", def.GridCols)
	v.SetDefault("LAYOUT_COMPACT", def.Compact)
	v.SetDefault("REALTIME_MAX_PAYLOAD_BYTES", def.MaxRealtimePayload)

	env := v.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := v.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = v.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = v.GetString("DATABASE_URL_TEST")
	}

	cols := v.GetInt("GRID_COLS")
	if cols < 1 {
		cols = def.GridCols
	}

	return &Config{
		Env:                 env,
		Port:                v.GetString("PORT"),
		SessionSecret:       v.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		DatabaseDriver:      strings.ToLower(v.GetString("DATABASE_DRIVER")),
		RedisURL:            v.GetString("REDIS_URL"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(v.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		Session: SessionConfig{
			AutosaveDelay:       millis(v, "AUTOSAVE_DELAY_MS", def.AutosaveDelay),
			LayoutSaveDelay:     millis(v, "LAYOUT_SAVE_DELAY_MS", def.LayoutSaveDelay),
			LayoutSavedDisplay:  millis(v, "LAYOUT_SAVED_DISPLAY_MS", def.LayoutSavedDisplay),
			RefetchDelay:        millis(v, "REFETCH_DELAY_MS", def.RefetchDelay),
			ConfidenceSaveDelay: millis(v, "CONFIDENCE_SAVE_DELAY_MS", def.ConfidenceSaveDelay),
			GridCols:            cols,
			Compact:             v.GetBool("LAYOUT_COMPACT"),
			MaxRealtimePayload:  v.GetInt("REALTIME_MAX_PAYLOAD_BYTES"),
		},
	}, nil
}

func millis(v *viper.Viper, key string, def time.Duration) time.Duration {
	ms := v.GetInt64(key)
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
