package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything flyover needs to reach Spotify and the other
// surface.
type Config struct {
	ClientID        string
	APIBaseURL      string
	AccountsURL     string
	RedirectPort    int
	PollInterval    time.Duration
	QueuePollFactor int
	BridgeAddr      string
	DataDir         string
	LogFile         string
	LogLevel        string
	MetricsAddr     string
}

const (
	defaultConfigPath      = "~/.config/flyover/config.toml"
	defaultDataDir         = "~/.local/share/flyover"
	defaultAPIBaseURL      = "https://api.spotify.com/v1"
	defaultAccountsURL     = "https://accounts.spotify.com"
	defaultRedirectPort    = 8080
	defaultPollInterval    = time.Second
	defaultQueuePollFactor = 5
	defaultBridgeAddr      = "127.0.0.1:8974"
	defaultLogLevel        = "info"
	logFileName            = "flyover.log"
	dotEnvFile             = ".env"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir := mustExpand(defaultDataDir)
	return Config{
		APIBaseURL:      defaultAPIBaseURL,
		AccountsURL:     defaultAccountsURL,
		RedirectPort:    defaultRedirectPort,
		PollInterval:    defaultPollInterval,
		QueuePollFactor: defaultQueuePollFactor,
		BridgeAddr:      defaultBridgeAddr,
		DataDir:         dataDir,
		LogFile:         filepath.Join(dataDir, logFileName),
		LogLevel:        defaultLogLevel,
	}
}

// Load locates and parses the flyover config, falling back to defaults when
// missing, then applies .env and environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := loadFile(resolved, &cfg); err != nil {
		return Config{}, err
	}

	loadDotEnv()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// QueuePollInterval is the slow loop cadence.
func (c Config) QueuePollInterval() time.Duration {
	factor := c.QueuePollFactor
	if factor <= 0 {
		factor = defaultQueuePollFactor
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return interval * time.Duration(factor)
}

// RedirectURL is the loopback OAuth callback address.
func (c Config) RedirectURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", c.RedirectPort)
}

func loadFile(resolved string, cfg *Config) error {
	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ClientID        string `toml:"client_id"`
		APIBaseURL      string `toml:"api_base_url"`
		AccountsURL     string `toml:"accounts_url"`
		RedirectPort    int    `toml:"redirect_port"`
		PollIntervalMS  int    `toml:"poll_interval_ms"`
		QueuePollFactor int    `toml:"queue_poll_factor"`
		BridgeAddr      string `toml:"bridge_addr"`
		DataDir         string `toml:"data_dir"`
		LogFile         string `toml:"log_file"`
		LogLevel        string `toml:"log_level"`
		MetricsAddr     string `toml:"metrics_addr"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	cfg.ClientID = strings.TrimSpace(raw.ClientID)
	setString(&cfg.APIBaseURL, raw.APIBaseURL)
	setString(&cfg.AccountsURL, raw.AccountsURL)
	setString(&cfg.BridgeAddr, raw.BridgeAddr)
	setString(&cfg.LogLevel, raw.LogLevel)
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	if raw.RedirectPort > 0 {
		cfg.RedirectPort = raw.RedirectPort
	}
	if raw.PollIntervalMS > 0 {
		cfg.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if raw.QueuePollFactor > 0 {
		cfg.QueuePollFactor = raw.QueuePollFactor
	}
	if dir := strings.TrimSpace(raw.DataDir); dir != "" {
		cfg.DataDir = mustExpand(dir)
		cfg.LogFile = filepath.Join(cfg.DataDir, logFileName)
	}
	if logFile := strings.TrimSpace(raw.LogFile); logFile != "" {
		cfg.LogFile = mustExpand(logFile)
	}
	return nil
}

func loadDotEnv() {
	if _, err := os.Stat(dotEnvFile); err != nil {
		return
	}
	// Existing environment variables take precedence over the file.
	_ = godotenv.Load(dotEnvFile)
}

func applyEnv(cfg *Config) error {
	if v := firstEnv("FLYOVER_CLIENT_ID", "SPOTIFY_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	setString(&cfg.APIBaseURL, os.Getenv("FLYOVER_API_BASE_URL"))
	setString(&cfg.AccountsURL, os.Getenv("FLYOVER_ACCOUNTS_URL"))
	setString(&cfg.BridgeAddr, os.Getenv("FLYOVER_BRIDGE_ADDR"))
	setString(&cfg.LogLevel, os.Getenv("FLYOVER_LOG_LEVEL"))
	if v, ok := os.LookupEnv("FLYOVER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("FLYOVER_REDIRECT_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("parse FLYOVER_REDIRECT_PORT %q: invalid port", v)
		}
		cfg.RedirectPort = port
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
