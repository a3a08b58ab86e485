// Package config provides configuration management for the cre8rflow agent.
// Configuration is loaded from a .env file, environment variables and an
// optional CUE overlay file, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".cre8rflow"

	// Environment variable names
	EnvPort       = "CRE8R_PORT"
	EnvLogLevel   = "CRE8R_LOG_LEVEL"
	EnvDataDir    = "CRE8R_DATA_DIR"
	EnvLogFile    = "CRE8R_LOG_FILE"
	EnvHeadless   = "CRE8R_HEADLESS"
	EnvConfigFile = "CRE8R_CONFIG_FILE"
	EnvEnvFile    = "CRE8R_ENV_FILE"

	// Planner / summarizer LLM
	EnvLLMAPIKey    = "CRE8R_LLM_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvLLMModel     = "CRE8R_LLM_MODEL"
	EnvLLMBaseURL   = "CRE8R_LLM_BASE_URL"

	// Speech / search services
	EnvServicesURL   = "CRE8R_SERVICES_URL"
	EnvServicesToken = "CRE8R_SERVICES_TOKEN"

	// Session behaviour
	EnvThoughtMode    = "CRE8R_THOUGHT_MODE"
	EnvThoughtTimeout = "CRE8R_THOUGHT_TIMEOUT_MS"
	EnvStepPacing     = "CRE8R_STEP_PACING_MS"
	EnvLanguage       = "CRE8R_LANGUAGE"

	EnvFFmpegPath = "CRE8R_FFMPEG"
	EnvProxyURL   = "CRE8R_PROXY"

	// Database filename
	DBFilename = "cre8rflow.db"

	DefaultLLMModel       = "gemini-2.0-flash"
	DefaultLLMBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultThoughtMode    = ThoughtSoft
	DefaultThoughtTimeout = 4000 // milliseconds
	DefaultStepPacing     = 350  // milliseconds
	DefaultLanguage       = "en"
	DefaultFFmpegPath     = "ffmpeg"

	DefaultTimeoutDoctor  = 10  // seconds
	DefaultTimeoutExtract = 120 // seconds
	DefaultTimeoutService = 90  // seconds
)

// Thought narration modes.
const (
	ThoughtOff    = "off"
	ThoughtSoft   = "soft"
	ThoughtStrict = "strict"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	Headless() bool
	LLMAPIKey() string
	LLMModel() string
	LLMBaseURL() string
	ServicesURL() string
	ServicesToken() string
	ThoughtMode() string
	ThoughtTimeout() time.Duration
	StepPacing() time.Duration
	Language() string
	FFmpegPath() string
	ProxyURL() string
	TimeoutDoctor() time.Duration
	TimeoutExtract() time.Duration
	TimeoutService() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	logFile  string
	dataDir  string
	headless bool

	llmAPIKey  string
	llmModel   string
	llmBaseURL string

	servicesURL   string
	servicesToken string

	thoughtMode    string
	thoughtTimeout time.Duration
	stepPacing     time.Duration
	language       string

	ffmpegPath string
	proxyURL   string
}

// New creates a new EnvConfig with defaults, a .env file, environment variable
// overrides and finally the CUE overlay named by CRE8R_CONFIG_FILE.
func New() (*EnvConfig, error) {
	envFile := os.Getenv(EnvEnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables already present in the process.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		overlay, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		overlay.apply(cfg)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *EnvConfig {
	return &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		llmModel:       DefaultLLMModel,
		llmBaseURL:     DefaultLLMBaseURL,
		thoughtMode:    DefaultThoughtMode,
		thoughtTimeout: DefaultThoughtTimeout * time.Millisecond,
		stepPacing:     DefaultStepPacing * time.Millisecond,
		language:       DefaultLanguage,
		ffmpegPath:     DefaultFFmpegPath,
	}
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if lf := os.Getenv(EnvLogFile); lf != "" {
		c.logFile = lf
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}

	if key := os.Getenv(EnvLLMAPIKey); key != "" {
		c.llmAPIKey = key
	} else if key := os.Getenv(EnvGeminiAPIKey); key != "" {
		c.llmAPIKey = key
	}
	if m := os.Getenv(EnvLLMModel); m != "" {
		c.llmModel = m
	}
	if u := os.Getenv(EnvLLMBaseURL); u != "" {
		c.llmBaseURL = strings.TrimRight(u, "/")
	}

	if u := os.Getenv(EnvServicesURL); u != "" {
		c.servicesURL = strings.TrimRight(u, "/")
	}
	if tok := os.Getenv(EnvServicesToken); tok != "" {
		c.servicesToken = tok
	}

	if m := os.Getenv(EnvThoughtMode); m != "" {
		c.thoughtMode = strings.ToLower(m)
	}
	if ms := os.Getenv(EnvThoughtTimeout); ms != "" {
		d, err := parseMillis(EnvThoughtTimeout, ms)
		if err != nil {
			return err
		}
		c.thoughtTimeout = d
	}
	if ms := os.Getenv(EnvStepPacing); ms != "" {
		d, err := parseMillis(EnvStepPacing, ms)
		if err != nil {
			return err
		}
		c.stepPacing = d
	}
	if lang := os.Getenv(EnvLanguage); lang != "" {
		c.language = lang
	}

	if ff := os.Getenv(EnvFFmpegPath); ff != "" {
		c.ffmpegPath = ff
	}
	if p := os.Getenv(EnvProxyURL); p != "" {
		c.proxyURL = p
	}
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	switch c.thoughtMode {
	case ThoughtOff, ThoughtSoft, ThoughtStrict:
	default:
		return fmt.Errorf("invalid %s: %q (want off, soft or strict)", EnvThoughtMode, c.thoughtMode)
	}
	return nil
}

func parseMillis(name, value string) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", name)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFile returns an optional path that receives a copy of every log record.
func (c *EnvConfig) LogFile() string {
	return c.logFile
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir holds extracted audio windows.
func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) LLMAPIKey() string {
	return c.llmAPIKey
}

func (c *EnvConfig) LLMModel() string {
	return c.llmModel
}

func (c *EnvConfig) LLMBaseURL() string {
	return c.llmBaseURL
}

func (c *EnvConfig) ServicesURL() string {
	return c.servicesURL
}

func (c *EnvConfig) ServicesToken() string {
	return c.servicesToken
}

// ServicesEnabled reports whether the remote speech/search services are configured.
func (c *EnvConfig) ServicesEnabled() bool {
	return c.servicesURL != ""
}

func (c *EnvConfig) ThoughtMode() string {
	return c.thoughtMode
}

func (c *EnvConfig) ThoughtTimeout() time.Duration {
	return c.thoughtTimeout
}

func (c *EnvConfig) StepPacing() time.Duration {
	return c.stepPacing
}

// Language is the default transcription language.
func (c *EnvConfig) Language() string {
	return c.language
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) ProxyURL() string {
	return c.proxyURL
}

func (c *EnvConfig) TimeoutDoctor() time.Duration {
	return time.Duration(DefaultTimeoutDoctor) * time.Second
}

func (c *EnvConfig) TimeoutExtract() time.Duration {
	return time.Duration(DefaultTimeoutExtract) * time.Second
}

func (c *EnvConfig) TimeoutService() time.Duration {
	return time.Duration(DefaultTimeoutService) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.4.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
