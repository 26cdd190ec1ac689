package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for inkpost.
type Config struct {
	Deepgram    DeepgramConfig    `yaml:"deepgram"`
	Audio       AudioConfig       `yaml:"audio"`
	Rules       RulesConfig       `yaml:"rules"`
	Session     SessionConfig     `yaml:"session"`
	Speech      SpeechConfig      `yaml:"speech"`
	Supabase    SupabaseConfig    `yaml:"supabase"`
	Generation  GenerationConfig  `yaml:"generation"`
	Handwriting HandwritingConfig `yaml:"handwriting"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"-"`
	APIBaseURL  string `yaml:"api_base_url"`
	Model       string `yaml:"model"`
	SmartFormat bool   `yaml:"smart_format"`
}

type AudioConfig struct {
	RecorderCommand  string `yaml:"recorder_command"`
	InputFormat      string `yaml:"input_format"`
	InputDevice      string `yaml:"input_device"`
	EchoCancelSource string `yaml:"echo_cancel_source"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
	SpokenCommands bool   `yaml:"spoken_commands"`
}

type SessionConfig struct {
	Language       string        `yaml:"language"`
	ChunkSize      int           `yaml:"chunk_size"`
	ReleaseTimeout time.Duration `yaml:"release_timeout"`
}

// SpeechConfig holds the recording state machine delays.
type SpeechConfig struct {
	RestartDelay time.Duration `yaml:"restart_delay"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	SwitchDelay  time.Duration `yaml:"switch_delay"`
	CloseDelay   time.Duration `yaml:"close_delay"`
}

type SupabaseConfig struct {
	URL            string        `yaml:"url"`
	AnonKey        string        `yaml:"-"`
	TemplateBucket string        `yaml:"template_bucket"`
	UploadBucket   string        `yaml:"upload_bucket"`
	SignedURLTTL   time.Duration `yaml:"signed_url_ttl"`
	Timeout        time.Duration `yaml:"timeout"`
}

type GenerationConfig struct {
	Provider       string        `yaml:"provider"` // gemini, ollama
	GeminiAPIKey   string        `yaml:"-"`
	GeminiBaseURL  string        `yaml:"gemini_base_url"`
	GeminiModel    string        `yaml:"gemini_model"`
	OllamaEndpoint string        `yaml:"ollama_endpoint"`
	OllamaModel    string        `yaml:"ollama_model"`
	Timeout        time.Duration `yaml:"timeout"`
}

type HandwritingConfig struct {
	DBPath string `yaml:"db_path"`
}

type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

type TelemetryConfig struct {
	Environment     string `yaml:"environment"`
	DiagnosticsAddr string `yaml:"diagnostics_addr"`
}

// Default returns the built-in configuration rooted at home.
func Default(home string) Config {
	configDir := filepath.Join(home, ".config", "inkpost")
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Rules: RulesConfig{
			Path:           filepath.Join(configDir, "substitutions.rules"),
			IterationLimit: 30,
			SpokenCommands: false,
		},
		Session: SessionConfig{
			Language:       "en-US",
			ChunkSize:      4096,
			ReleaseTimeout: 4 * time.Second,
		},
		Speech: SpeechConfig{
			RestartDelay: 50 * time.Millisecond,
			SettleDelay:  300 * time.Millisecond,
			SwitchDelay:  200 * time.Millisecond,
			CloseDelay:   500 * time.Millisecond,
		},
		Supabase: SupabaseConfig{
			TemplateBucket: "mailai-hw-tpl(with-helplines&bgchars)",
			UploadBucket:   "mailai-hw-uploads",
			SignedURLTTL:   time.Hour,
			Timeout:        30 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:       "gemini",
			GeminiBaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			GeminiModel:    "gemini-pro",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "llama3.2:latest",
			Timeout:        60 * time.Second,
		},
		Handwriting: HandwritingConfig{
			DBPath: filepath.Join(configDir, "inkpost.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Environment: "desktop",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file, an
// optional .env file and environment variables, in increasing priority.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	cfg := Default(home)

	path := strings.TrimSpace(os.Getenv("INKPOST_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ".config", "inkpost", "config.yaml")
	}
	if err := loadFile(path, explicit, &cfg); err != nil {
		return Config{}, err
	}

	envFile := envOrDefault("INKPOST_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file %q: %w", envFile, err)
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func loadFile(path string, required bool, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Deepgram.APIKey = strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))
	overrideString(&cfg.Deepgram.APIBaseURL, "DEEPGRAM_API_BASE")
	overrideString(&cfg.Deepgram.Model, "DEEPGRAM_MODEL")
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)

	overrideString(&cfg.Audio.RecorderCommand, "INKPOST_FFMPEG_COMMAND")
	overrideString(&cfg.Audio.InputFormat, "INKPOST_AUDIO_INPUT_FORMAT")
	cfg.Audio.InputDevice = firstNonEmpty(os.Getenv("INKPOST_AUDIO_INPUT_DEVICE"), os.Getenv("PULSE_SOURCE"), cfg.Audio.InputDevice)
	overrideString(&cfg.Audio.EchoCancelSource, "INKPOST_ECHO_CANCEL_SOURCE")
	cfg.Audio.SampleRate = envOrDefaultInt("INKPOST_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("INKPOST_CHANNELS", cfg.Audio.Channels)

	overrideString(&cfg.Rules.Path, "INKPOST_RULES_FILE")
	cfg.Rules.IterationLimit = envOrDefaultInt("INKPOST_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)
	cfg.Rules.SpokenCommands = envOrDefaultBool("INKPOST_SPOKEN_COMMANDS", cfg.Rules.SpokenCommands)

	overrideString(&cfg.Session.Language, "INKPOST_LANGUAGE")
	cfg.Session.ChunkSize = envOrDefaultInt("INKPOST_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	overrideMillis(&cfg.Session.ReleaseTimeout, "INKPOST_RELEASE_TIMEOUT_MS")

	overrideMillis(&cfg.Speech.RestartDelay, "INKPOST_RESTART_DELAY_MS")
	overrideMillis(&cfg.Speech.SettleDelay, "INKPOST_SETTLE_DELAY_MS")
	overrideMillis(&cfg.Speech.SwitchDelay, "INKPOST_SWITCH_DELAY_MS")
	overrideMillis(&cfg.Speech.CloseDelay, "INKPOST_CLOSE_DELAY_MS")

	overrideString(&cfg.Supabase.URL, "SUPABASE_URL")
	cfg.Supabase.AnonKey = strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY"))
	overrideString(&cfg.Supabase.TemplateBucket, "INKPOST_TEMPLATE_BUCKET")
	overrideString(&cfg.Supabase.UploadBucket, "INKPOST_UPLOAD_BUCKET")

	overrideString(&cfg.Generation.Provider, "INKPOST_GENERATOR")
	cfg.Generation.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	overrideString(&cfg.Generation.GeminiModel, "GEMINI_MODEL")
	overrideString(&cfg.Generation.OllamaEndpoint, "OLLAMA_HOST")
	overrideString(&cfg.Generation.OllamaModel, "OLLAMA_MODEL")

	overrideString(&cfg.Handwriting.DBPath, "INKPOST_DB_PATH")
	overrideString(&cfg.Logging.Dir, "INKPOST_LOG_DIR")
	overrideString(&cfg.Logging.Level, "INKPOST_LOG_LEVEL")
	overrideString(&cfg.Telemetry.DiagnosticsAddr, "INKPOST_DIAGNOSTICS_ADDR")
}

func normalize(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.ReleaseTimeout <= 0 {
		cfg.Session.ReleaseTimeout = 4 * time.Second
	}
	cfg.Generation.Provider = strings.ToLower(strings.TrimSpace(cfg.Generation.Provider))
	if cfg.Generation.Provider != "ollama" {
		cfg.Generation.Provider = "gemini"
	}
}

func overrideString(target *string, key string) {
	*target = envOrDefault(key, *target)
}

// overrideMillis reads a non-negative millisecond count.
func overrideMillis(target *time.Duration, key string) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return
	}
	*target = time.Duration(parsed) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
