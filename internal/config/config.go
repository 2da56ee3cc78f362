package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir     string `json:"data_dir"`
	LogLevel    string `json:"log_level"`
	GlossaryDir string `json:"glossary_dir"`
	HTTP        struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Provider struct {
		BaseURL         string `json:"base_url"`
		APIKey          string `json:"api_key"`
		TranscriptModel string `json:"transcript_model"`
		CardsModel      string `json:"cards_model"`
		FactsModel      string `json:"facts_model"`
	} `json:"provider"`
	Runtime struct {
		RingCapacity      int `json:"ring_capacity"`
		RingMaxAgeMs      int `json:"ring_max_age_ms"`
		FactsCapacity     int `json:"facts_capacity"`
		CardsCapacity     int `json:"cards_capacity"`
		DebounceMs        int `json:"debounce_ms"`
		StatusPushMs      int `json:"status_push_ms"`
		ReplayLimit       int `json:"replay_limit"`
		ResumeLimit       int `json:"resume_limit"`
		ResumeConcurrency int `json:"resume_concurrency"`
	} `json:"runtime"`
	Salience struct {
		FirstMentionBonus   float64 `json:"first_mention_bonus"`
		ExtraMentionCap     float64 `json:"extra_mention_cap"`
		QuestionCueBonus    float64 `json:"question_cue_bonus"`
		GlossaryBonus       float64 `json:"glossary_bonus"`
		FactBonus           float64 `json:"fact_bonus"`
		RecencyPenaltyLast  float64 `json:"recency_penalty_last"`
		RecencyPenaltyOther float64 `json:"recency_penalty_other"`
		SuppressionPenalty  float64 `json:"suppression_penalty"`
		Threshold           float64 `json:"threshold"`
		FreshnessMs         int     `json:"freshness_ms"`
		RecentCardWindow    int     `json:"recent_card_window"`
	} `json:"salience"`
	RateLimit struct {
		MinIntervalMs int `json:"min_interval_ms"`
		WindowMs      int `json:"window_ms"`
		MaxPerWindow  int `json:"max_per_window"`
	} `json:"rate_limit"`
	Metrics struct {
		TokenizerModel string `json:"tokenizer_model"`
		WarnTokens     int    `json:"warn_tokens"`
		CriticalTokens int    `json:"critical_tokens"`
	} `json:"metrics"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	MaintenanceSchedule string `json:"maintenance_schedule"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".cuecard"),
		LogLevel: "info",
	}
	cfg.GlossaryDir = filepath.Join(cfg.DataDir, "glossaries")
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8743"
	cfg.Provider.BaseURL = "https://api.openai.com/v1"
	cfg.Provider.TranscriptModel = "whisper-1"
	cfg.Provider.CardsModel = "gpt-4o-mini"
	cfg.Provider.FactsModel = "gpt-4o-mini"
	cfg.Runtime.RingCapacity = 200
	cfg.Runtime.RingMaxAgeMs = 10 * 60 * 1000
	cfg.Runtime.FactsCapacity = 100
	cfg.Runtime.CardsCapacity = 50
	cfg.Runtime.DebounceMs = 25000
	cfg.Runtime.StatusPushMs = 5000
	cfg.Runtime.ReplayLimit = 500
	cfg.Runtime.ResumeLimit = 50
	cfg.Runtime.ResumeConcurrency = 4
	cfg.Salience.FirstMentionBonus = 1.5
	cfg.Salience.ExtraMentionCap = 2
	cfg.Salience.QuestionCueBonus = 1.0
	cfg.Salience.GlossaryBonus = 1.0
	cfg.Salience.FactBonus = 0.5
	cfg.Salience.RecencyPenaltyLast = 3.0
	cfg.Salience.RecencyPenaltyOther = 1.0
	cfg.Salience.SuppressionPenalty = 0
	cfg.Salience.Threshold = 2.5
	cfg.Salience.FreshnessMs = 5 * 60 * 1000
	cfg.Salience.RecentCardWindow = 10
	cfg.RateLimit.MinIntervalMs = 30000
	cfg.RateLimit.WindowMs = 120000
	cfg.RateLimit.MaxPerWindow = 1
	cfg.Metrics.TokenizerModel = "gpt-4o-mini"
	cfg.Metrics.WarnTokens = 50000
	cfg.Metrics.CriticalTokens = 150000
	cfg.MaintenanceSchedule = "@hourly"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Provider.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.Provider.BaseURL = baseURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	return Save(path, cfg)
}

// Save writes the config to path atomically via a temp file rename.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues returns the config as a flat dot-separated key map, masking
// secrets when maskSecrets is true.
func ListValues(cfg *Config, maskSecrets bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	flat := Flatten(nested)
	if maskSecrets {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// SetValue updates a single dot-separated key in the config file at path.
// The value is parsed as JSON where possible, so numbers and booleans keep
// their type; anything unparseable is stored as a string.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	values, err := ListValues(cfg, false)
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	values[key] = parsed

	nested := Unflatten(values)
	data, err := json.Marshal(nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("apply config value: %w", err)
	}
	return Save(path, cfg)
}

// GetValue reads a single dot-separated key from the config file at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	values, err := ListValues(cfg, true)
	if err != nil {
		return nil, err
	}
	val, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}
