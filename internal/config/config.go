// Package config loads runtime configuration from an optional YAML file
// plus DROPDECK_* environment overrides, with validated defaults for every
// timing and learning constant.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	// Paths
	MusicDir  string `mapstructure:"music_dir"`
	DataDir   string `mapstructure:"data_dir"`
	RecordDir string `mapstructure:"record_dir"`

	// Server
	Port int `mapstructure:"port"`

	// Transport
	BPMTolerance float64 `mapstructure:"bpm_tolerance"` // sync ratio band, ±fraction

	// Transition windows
	WindowLead     time.Duration `mapstructure:"window_lead"`     // window opens this far before a drop
	WindowDeadline time.Duration `mapstructure:"window_deadline"` // decision due this far before a drop
	BassWindowS    float64       `mapstructure:"bass_window_s"`   // bass profile comparison span
	StrictKey      bool          `mapstructure:"strict_key"`      // gate drop-layering on key clashes

	// Learning
	ScoreIncrement float64 `mapstructure:"score_increment"` // feedback magnitude
	ScoreDecay     float64 `mapstructure:"score_decay"`     // old-score retention per update
	ScoreNeutral   float64 `mapstructure:"score_neutral"`   // default for unseen feature keys
	MinConfidence  float64 `mapstructure:"min_confidence"`  // below this, safe fallback wins

	// Session
	MinTracks int `mapstructure:"min_tracks"` // tracks required to start a session
}

// setDefaults registers every default on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("music_dir", "music")
	v.SetDefault("data_dir", "data")
	v.SetDefault("record_dir", "recordings")
	v.SetDefault("port", 8080)
	v.SetDefault("bpm_tolerance", 0.06)
	v.SetDefault("window_lead", 8*time.Second)
	v.SetDefault("window_deadline", 2*time.Second)
	v.SetDefault("bass_window_s", 8.0)
	v.SetDefault("strict_key", false)
	v.SetDefault("score_increment", 1.0)
	v.SetDefault("score_decay", 0.98)
	v.SetDefault("score_neutral", 0.0)
	v.SetDefault("min_confidence", 0.0)
	v.SetDefault("min_tracks", 2)
}

// Load reads configuration from the given file (optional; "" skips the
// file) and DROPDECK_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DROPDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	if c.BPMTolerance <= 0 || c.BPMTolerance >= 0.5 {
		return fmt.Errorf("bpm_tolerance must be in (0, 0.5), got %v", c.BPMTolerance)
	}
	if c.WindowDeadline <= 0 {
		return errors.New("window_deadline must be positive")
	}
	if c.WindowLead <= c.WindowDeadline {
		return fmt.Errorf("window_lead (%v) must exceed window_deadline (%v)", c.WindowLead, c.WindowDeadline)
	}
	if c.ScoreIncrement <= 0 {
		return errors.New("score_increment must be positive")
	}
	if c.ScoreDecay <= 0 || c.ScoreDecay > 1 {
		return fmt.Errorf("score_decay must be in (0, 1], got %v", c.ScoreDecay)
	}
	if c.MinTracks < 2 {
		return fmt.Errorf("min_tracks must be at least 2, got %d", c.MinTracks)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// DBPath returns the experience database location under the data dir.
func (c Config) DBPath() string {
	return c.DataDir + "/experience.sqlite"
}
