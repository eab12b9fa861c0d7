package config

import (
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/playtest/errors"
	"gopkg.in/yaml.v3"
)

// ProviderKind selects the decision provider variant for a run.
type ProviderKind string

const (
	KindBridge          ProviderKind = "bridge"
	KindFastDirect      ProviderKind = "fast"
	KindHighDirect      ProviderKind = "high"
	KindReasoningDirect ProviderKind = "reasoning"
)

// Valid reports whether k names a known provider variant.
func (k ProviderKind) Valid() bool {
	switch k {
	case KindBridge, KindFastDirect, KindHighDirect, KindReasoningDirect:
		return true
	}
	return false
}

// DefaultTimeout is the request timeout for a kind when none is configured.
func (k ProviderKind) DefaultTimeout() time.Duration {
	switch k {
	case KindBridge:
		return 120 * time.Second
	case KindReasoningDirect:
		return 180 * time.Second
	default:
		return 60 * time.Second
	}
}

// Provider is selected once per run and never changes during it.
type Provider struct {
	Kind           ProviderKind `yaml:"kind"`
	Endpoint       string       `yaml:"endpoint"`
	Credential     string       `yaml:"credential"`
	TimeoutSeconds float64      `yaml:"timeout_seconds"`
	Model          string       `yaml:"model"`
}

// Timeout returns the configured request timeout or the kind's default.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds > 0 {
		return seconds(p.TimeoutSeconds)
	}
	return p.Kind.DefaultTimeout()
}

type Run struct {
	GameDescription    string  `yaml:"game_description"`
	ActionDelaySeconds float64 `yaml:"action_delay_seconds"`
	// Report enables Markdown/HTML/JSON export when the run ends.
	Report       bool   `yaml:"report"`
	ReportDir    string `yaml:"report_dir"`
	SaveCaptures bool   `yaml:"save_captures"`
	SessionName  string `yaml:"session_name"`
	// MaxSteps stops the run after that many successful steps; 0 means no limit.
	MaxSteps int `yaml:"max_steps"`
}

// ActionDelay is the default pause between steps.
func (r Run) ActionDelay() time.Duration {
	return seconds(r.ActionDelaySeconds)
}

// seconds converts s to a Duration, saturating instead of overflowing. NaN
// and negative values are zero.
func seconds(s float64) time.Duration {
	switch {
	case math.IsNaN(s) || s <= 0:
		return 0
	case s >= float64(math.MaxInt64)/float64(time.Second):
		return math.MaxInt64
	}
	return time.Duration(s * float64(time.Second))
}

type Capture struct {
	Dir       string `yaml:"dir"`
	Pattern   string `yaml:"pattern"`
	Loop      bool   `yaml:"loop"`
	MaxWidth  int    `yaml:"max_width"`
	MaxHeight int    `yaml:"max_height"`
}

type MCPServer struct {
	Name    string                 `yaml:"name"`
	Command string                 `yaml:"command"`
	Args    []string               `yaml:"args"`
	Tool    string                 `yaml:"tool"`
	Input   map[string]interface{} `yaml:"input"`
}

type Context struct {
	// Static is used verbatim as the current-state text when no MCP server
	// is configured.
	Static string     `yaml:"static"`
	MCP    *MCPServer `yaml:"mcp"`
	// Command is run once per step; its standard output is the state text.
	Command []string `yaml:"command"`
}

type Executor struct {
	// Kind is "log" (dry run) or "websocket".
	Kind         string `yaml:"kind"`
	URL          string `yaml:"url"`
	Origin       string `yaml:"origin"`
	ScreenWidth  int    `yaml:"screen_width"`
	ScreenHeight int    `yaml:"screen_height"`
	// TimeoutSeconds bounds how long a single action may take to complete.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Bridge struct {
	Listen string `yaml:"listen"`
	// Backend is "mock", "openai", "bedrock" or "command".
	Backend string `yaml:"backend"`
	// Command is the decision program run by the command backend. It is
	// called with the screenshot path and the context text appended.
	Command []string `yaml:"command"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// MemoryTurns bounds the conversational memory kept between /reset calls.
	MemoryTurns int `yaml:"memory_turns"`
	// DebugFrame, when set, receives a copy of the last frame sent to /ask.
	DebugFrame string `yaml:"debug_frame"`
}

type Config struct {
	Provider Provider `yaml:"provider"`
	Run      Run      `yaml:"run"`
	Capture  Capture  `yaml:"capture"`
	Context  Context  `yaml:"context"`
	Executor Executor `yaml:"executor"`
	Logging  Logging  `yaml:"logging"`
	Bridge   Bridge   `yaml:"bridge"`
}

const dirName = ".playtest"

// Default returns a configuration that runs against a local bridge and logs
// actions instead of executing them.
func Default() *Config {
	cfg := &Config{}
	cfg.Provider.Kind = KindBridge
	cfg.Run.Report = true
	cfg.Run.SaveCaptures = true
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, dirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, dirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// Load reads a single configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config '%s'", path)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, so a later
	// file refines an earlier one key by key.
	return yaml.Unmarshal(data, cfg)
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Provider.Kind == KindBridge && c.Provider.Endpoint == "" {
		c.Provider.Endpoint = "http://127.0.0.1:8000"
	}
	if c.Run.GameDescription == "" {
		c.Run.GameDescription = "Describe your game objectives and controls here."
	}
	if c.Run.ActionDelaySeconds <= 0 {
		c.Run.ActionDelaySeconds = 1.0
	}
	if c.Run.ReportDir == "" {
		c.Run.ReportDir = filepath.Join(dirName, "reports")
	}
	if c.Executor.Kind == "" {
		c.Executor.Kind = "log"
	}
	if c.Executor.Origin == "" {
		c.Executor.Origin = "top-left"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Bridge.Listen == "" {
		c.Bridge.Listen = "127.0.0.1:8000"
	}
	if c.Bridge.Backend == "" {
		c.Bridge.Backend = "mock"
	}
	if c.Bridge.MemoryTurns <= 0 {
		c.Bridge.MemoryTurns = 10
	}
}

// Validate checks the parts of the configuration a run depends on. Failures
// are provider errors: the run must not start.
func (c *Config) Validate() error {
	if !c.Provider.Kind.Valid() {
		return errors.E(errors.KindProvider, "unknown provider kind '%s'", c.Provider.Kind)
	}
	if c.Provider.Kind == KindBridge && c.Provider.Endpoint == "" {
		return errors.E(errors.KindProvider, "bridge provider requires an endpoint")
	}
	if c.Provider.TimeoutSeconds < 0 {
		return errors.E(errors.KindProvider, "timeout_seconds must not be negative")
	}
	switch c.Executor.Kind {
	case "log":
	case "websocket":
		if c.Executor.URL == "" {
			return errors.E(errors.KindProvider, "websocket executor requires a url")
		}
	default:
		return errors.E(errors.KindProvider, "unknown executor kind '%s'", c.Executor.Kind)
	}
	switch c.Executor.Origin {
	case "top-left", "bottom-left":
	default:
		return errors.E(errors.KindProvider, "executor origin must be 'top-left' or 'bottom-left', got '%s'", c.Executor.Origin)
	}
	if mcp := c.Context.MCP; mcp != nil && (mcp.Command == "" || mcp.Tool == "") {
		return errors.E(errors.KindProvider, "context mcp server requires a command and a tool")
	}
	if c.Context.MCP != nil && len(c.Context.Command) > 0 {
		return errors.E(errors.KindProvider, "context accepts either an mcp server or a command, not both")
	}
	return nil
}
