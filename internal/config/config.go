package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// Config struct for environment variables.
type Config struct {
	Channels     []string `envconfig:"CHANNELS"`
	ManifestPath string   `envconfig:"MANIFEST_PATH"`
	WorkDir      string   `envconfig:"WORK_DIR" default:"podcasts"`
	WorkerID     string   `envconfig:"WORKER_ID"`

	MaxParallel      int      `envconfig:"MAX_PARALLEL" default:"4"`
	MaxAttempts      int      `envconfig:"MAX_ATTEMPTS" default:"3"`
	AudioFormat      string   `envconfig:"AUDIO_FORMAT" default:"wav"`
	FormatPreference string   `envconfig:"FORMAT_PREFERENCE" default:"bestaudio[ext=wav]/bestaudio"`
	ExtractAudio     bool     `envconfig:"EXTRACT_AUDIO" default:"true"`
	AuthKeywords     []string `envconfig:"AUTH_KEYWORDS"`
	FatalKeywords    []string `envconfig:"FATAL_KEYWORDS"`

	LedgerPath        string `envconfig:"LEDGER_PATH" default:"download_status.csv"`
	DBPath            string `envconfig:"DB_PATH"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubject       string `envconfig:"NATS_SUBJECT" default:"ytaudio.outcomes"`

	YtdlpPath      string        `envconfig:"YTDLP_PATH"`
	ExtractTimeout time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"30m"`
	ExtractRate    float64       `envconfig:"EXTRACT_RATE" default:"2"`
	ExtractBurst   int           `envconfig:"EXTRACT_BURST" default:"4"`

	Cookie struct {
		File          string        `split_words:"true" default:"cookies.txt"`
		Browser       string        `split_words:"true" default:"firefox"`
		MaxAge        time.Duration `split_words:"true" default:"24h"`
		CheckInterval time.Duration `split_words:"true" default:"30m"`
	}

	UploadEnabled bool `envconfig:"UPLOAD_ENABLED" default:"true"`

	GCS struct {
		Bucket          string        `split_words:"true"`
		Prefix          string        `split_words:"true" default:"raw_audio"`
		CredentialsFile string        `split_words:"true"`
		AccessToken     string        `split_words:"true"`
		ExistsTimeout   time.Duration `split_words:"true" default:"60s"`
		UploadTimeout   time.Duration `split_words:"true" default:"300s"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		Enabled         bool          `split_words:"true" default:"true"`
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MaxParallel < 1 {
		return nil, fmt.Errorf("MAX_PARALLEL must be at least 1, got %d", cfg.MaxParallel)
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Classifier builds the failure classifier from the configured vocabularies.
func (c *Config) Classifier() transfer.Classifier {
	return transfer.NewClassifier(c.AuthKeywords, c.FatalKeywords)
}

// UploadConfigured reports whether artifacts should be sent to object storage.
func (c *Config) UploadConfigured() bool {
	return c.UploadEnabled && c.GCS.Bucket != ""
}

type manifest struct {
	Channels []string `toml:"channels"`
}

// LoadChannels returns the channels to process: the manifest entries first,
// then CHANNELS, without duplicates. An empty result is ErrNoChannels.
func (c *Config) LoadChannels() ([]transfer.ChannelRef, error) {
	var refs []string

	if c.ManifestPath != "" {
		fromFile, err := readManifest(c.ManifestPath)
		if err != nil {
			return nil, err
		}

		refs = append(refs, fromFile...)
	}

	refs = append(refs, c.Channels...)

	seen := make(map[string]struct{}, len(refs))
	channels := make([]transfer.ChannelRef, 0, len(refs))

	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}

		if _, ok := seen[ref]; ok {
			continue
		}

		seen[ref] = struct{}{}
		channels = append(channels, transfer.ChannelRef(ref))
	}

	if len(channels) == 0 {
		return nil, transfer.ErrNoChannels
	}

	return channels, nil
}

func readManifest(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var m manifest
		if _, err := toml.DecodeFile(path, &m); err != nil {
			return nil, fmt.Errorf("failed to decode channel manifest %s: %w", path, err)
		}

		return m.Channels, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel manifest %s: %w", path, err)
	}
	defer f.Close()

	var refs []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		refs = append(refs, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channel manifest %s: %w", path, err)
	}

	return refs, nil
}
