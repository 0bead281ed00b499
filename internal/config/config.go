package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all dictaflow environment variables.
const EnvPrefix = "DICTAFLOW_"

// Preset names recognized out of the box. Both are parameterizations of the
// same chunk scheduler: standard slices every ~65s with a 10% trailing
// overlap, longform slices every 7 minutes with a fixed 10s trailing overlap.
const (
	PresetStandard = "standard"
	PresetLongform = "longform"
)

// Preset holds the scheduler tunables for one named recording mode.
type Preset struct {
	ChunkInterval   string  `yaml:"chunk_interval"`
	OverlapFraction float64 `yaml:"overlap_fraction"`
	OverlapSeconds  int     `yaml:"overlap_seconds"`
}

// Config holds all application configuration. Secrets (API keys, service
// tokens) are loaded exclusively from environment variables and never appear
// in the config file.
type Config struct {
	ListenAddr            string            `yaml:"listen_addr"`
	DBPath                string            `yaml:"db_path"`
	ServiceURL            string            `yaml:"service_url"`
	DefaultPreset         string            `yaml:"default_preset"`
	Presets               map[string]Preset `yaml:"presets"`
	MaxDuration           string            `yaml:"max_duration"`
	MinChunkBytes         int               `yaml:"min_chunk_bytes"`
	SubmitTimeout         string            `yaml:"submit_timeout"`
	ChunkSubmitTimeout    string            `yaml:"chunk_submit_timeout"`
	MaxRetries            int               `yaml:"max_retries"`
	PollInterval          string            `yaml:"poll_interval"`
	PollMaxAttempts       int               `yaml:"poll_max_attempts"`
	DefaultLanguage       string            `yaml:"default_language"`
	DefaultModel          string            `yaml:"default_model"`
	AllowedModels         []string          `yaml:"allowed_models"`
	TranslationModel      string            `yaml:"translation_model"`
	SpeechModel           string            `yaml:"speech_model"`
	SpeechVoice           string            `yaml:"speech_voice"`
	MicSampleRate         int               `yaml:"mic_sample_rate"`
	MicSampleRates        []int             `yaml:"mic_sample_rates"`
	SegmentCadence        string            `yaml:"segment_cadence"`
	GDriveFolderID        string            `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string            `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	ServiceToken string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/dictaflow.db",
		ServiceURL:            "http://127.0.0.1:9090",
		DefaultPreset:         PresetStandard,
		Presets:               defaultPresets(),
		MaxDuration:           "30m",
		MinChunkBytes:         2048,
		SubmitTimeout:         "60s",
		ChunkSubmitTimeout:    "120s",
		MaxRetries:            2,
		PollInterval:          "5s",
		PollMaxAttempts:       60,
		DefaultLanguage:       "en",
		DefaultModel:          "whisper-1",
		TranslationModel:      "standard",
		SpeechModel:           "tts-1",
		SpeechVoice:           "alloy",
		MicSampleRate:         16000,
		MicSampleRates:        []int{48000, 44100, 32000, 24000},
		SegmentCadence:        "1s",
		GoogleCredentialsFile: "./service-account.json",
	}
}

func defaultPresets() map[string]Preset {
	return map[string]Preset{
		PresetStandard: {ChunkInterval: "65s", OverlapFraction: 0.10},
		PresetLongform: {ChunkInterval: "7m", OverlapSeconds: 10},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	// A config file that lists its own presets still gets the built-in ones
	// unless it overrides them by name.
	if cfg.Presets == nil {
		cfg.Presets = map[string]Preset{}
	}
	for name, preset := range defaultPresets() {
		if _, ok := cfg.Presets[name]; !ok {
			cfg.Presets[name] = preset
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ResolvePreset returns the named preset with its interval parsed, falling
// back to the standard preset when the name is unknown.
func (c *Config) ResolvePreset(name string) (Preset, time.Duration) {
	preset, ok := c.Presets[name]
	if !ok {
		preset = c.Presets[PresetStandard]
	}
	interval, err := time.ParseDuration(preset.ChunkInterval)
	if err != nil || interval <= 0 {
		interval = 65 * time.Second
	}
	return preset, interval
}

// ParsedMaxDuration returns MaxDuration as a time.Duration, falling back to
// 30 minutes if the value is invalid.
func (c *Config) ParsedMaxDuration() time.Duration {
	return parsedOrDefault(c.MaxDuration, 30*time.Minute)
}

func (c *Config) ParsedSubmitTimeout() time.Duration {
	return parsedOrDefault(c.SubmitTimeout, 60*time.Second)
}

func (c *Config) ParsedChunkSubmitTimeout() time.Duration {
	return parsedOrDefault(c.ChunkSubmitTimeout, 120*time.Second)
}

func (c *Config) ParsedPollInterval() time.Duration {
	return parsedOrDefault(c.PollInterval, 5*time.Second)
}

func (c *Config) ParsedSegmentCadence() time.Duration {
	return parsedOrDefault(c.SegmentCadence, time.Second)
}

func parsedOrDefault(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "SERVICE_URL"); v != "" {
		cfg.ServiceURL = v
	}
	if v := os.Getenv(EnvPrefix + "DEFAULT_PRESET"); v != "" {
		cfg.DefaultPreset = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_DURATION"); v != "" {
		cfg.MaxDuration = v
	}
	if v := os.Getenv(EnvPrefix + "MIN_CHUNK_BYTES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.MinChunkBytes = n
		}
	}
	if v := os.Getenv(EnvPrefix + "DEFAULT_LANGUAGE"); v != "" {
		cfg.DefaultLanguage = v
	}
	if v := os.Getenv(EnvPrefix + "DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSLATION_MODEL"); v != "" {
		cfg.TranslationModel = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.ServiceToken = os.Getenv(EnvPrefix + "SERVICE_TOKEN")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.ServiceURL == "" {
		warnings = append(warnings, "Transcription service URL not configured — dictation is disabled. Set "+EnvPrefix+"SERVICE_URL.")
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured — bilingual speech playback is disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if _, ok := cfg.Presets[cfg.DefaultPreset]; !ok {
		warnings = append(warnings, fmt.Sprintf("Unknown default_preset %q — using %q.", cfg.DefaultPreset, PresetStandard))
		cfg.DefaultPreset = PresetStandard
	}
	for name, preset := range cfg.Presets {
		if _, err := time.ParseDuration(preset.ChunkInterval); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid chunk_interval %q for preset %q — using default 65s.", preset.ChunkInterval, name))
		}
		if preset.OverlapFraction < 0 || preset.OverlapFraction >= 1 {
			warnings = append(warnings, fmt.Sprintf("overlap_fraction %v for preset %q outside [0, 1) — clamping to 0.10.", preset.OverlapFraction, name))
			preset.OverlapFraction = 0.10
			cfg.Presets[name] = preset
		}
	}
	if _, err := time.ParseDuration(cfg.MaxDuration); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid max_duration %q — using default 30m.", cfg.MaxDuration))
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
