// Package conf handles loading and access of application settings
package conf

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // Path to the log file
	Rotation RotationType // Type of log rotation
	MaxSize  int64        // Max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// MainSettings holds process-wide settings
type MainSettings struct {
	Name string    // name of this node, can be used to identify the source of exported data
	Log  LogConfig // main log file settings
}

// SearchSettings controls the initial vector search and batch sampling
type SearchSettings struct {
	TopK          int     // default candidate pool cap for a new session
	MinSimilarity float64 // default similarity floor for a new session
	BatchSize     int     // how many results a sampling batch presents
}

// TrainingSettings controls classifier training and the self-training loop
type TrainingSettings struct {
	MinPositive         int     // minimum positive labels before training is allowed
	MinNegative         int     // minimum negative labels before training is allowed
	ConfidenceThreshold float64 // pseudo-label confidence cutoff for self-training
	MaxRounds           int     // upper bound on self-training refit rounds
	ValidationRatio     float64 // held-out share of the labeled set for metrics
	LearningRate        float64
	Epochs              int
}

// TrackerSettings controls score distribution bookkeeping
type TrackerSettings struct {
	Bins int // number of equal-width histogram bins over [0,1]
}

// WorkerSettings controls the background job workers
type WorkerSettings struct {
	PollInterval  time.Duration // how often workers poll for queued jobs
	MaxConcurrent int           // concurrent jobs per worker
	JobTimeout    time.Duration // hard cap on a single job run
}

// EmbeddingSettings configures the embedding producer
type EmbeddingSettings struct {
	ModelPath string // path to the TensorFlow Lite embedding model
	Dimension int    // expected embedding dimensionality
	Threads   int    // interpreter thread count, 0 = runtime default
}

// OutputSettings configures where engine state is persisted
type OutputSettings struct {
	SQLite struct {
		Enabled bool
		Path    string
	}
	MySQL struct {
		Enabled  bool
		Username string
		Password string
		Database string
		Host     string
		Port     string
	}
}

// Settings is the root configuration object
type Settings struct {
	Debug bool

	Main      MainSettings
	Search    SearchSettings
	Training  TrainingSettings
	Tracker   TrackerSettings
	Worker    WorkerSettings
	Embedding EmbeddingSettings
	Output    OutputSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	once             sync.Once
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/echofind")
	viper.AddConfigPath("/etc/echofind")

	viper.SetEnvPrefix("EF")
	viper.AutomaticEnv()

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env cover everything
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the settings instance, loading it on first use
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
