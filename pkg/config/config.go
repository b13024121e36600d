package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig                `json:"app" yaml:"app"`
	Memory      MemoryConfig             `json:"memory" yaml:"memory"`
	Sandbox     SandboxConfig            `json:"sandbox" yaml:"sandbox"`
	Tests       TestsConfig              `json:"tests" yaml:"tests"`
	Scanner     ScannerConfig            `json:"scanner" yaml:"scanner"`
	Coordinator CoordinatorConfig        `json:"coordinator" yaml:"coordinator"`
	Policy      PolicyConfig             `json:"policy" yaml:"policy"`
	Gateways    map[string]GatewayConfig `json:"gateways" yaml:"gateways"`
	Logging     LoggingConfig            `json:"logging" yaml:"logging"`
	Metrics     MetricsConfig            `json:"metrics" yaml:"metrics"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
}

// MemoryConfig locates the sqlite database shared by the goal and memory stores.
type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type SandboxConfig struct {
	// Roots default to the workspace.
	Roots           []string `json:"roots" yaml:"roots"`
	BlockedCommands []string `json:"blocked_commands" yaml:"blocked_commands"`
	CommandTimeout  Duration `json:"command_timeout" yaml:"command_timeout"`
}

type TestsConfig struct {
	Command     []string `json:"command" yaml:"command"`
	PatternFlag string   `json:"pattern_flag" yaml:"pattern_flag"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
}

type ScannerConfig struct {
	Root               string   `json:"root" yaml:"root"`
	Include            []string `json:"include" yaml:"include"`
	Exclude            []string `json:"exclude" yaml:"exclude"`
	MaxFindings        int      `json:"max_findings" yaml:"max_findings"`
	LoadEnabled        bool     `json:"load_enabled" yaml:"load_enabled"`
	LoadThreshold      float64  `json:"load_threshold" yaml:"load_threshold"`
	LoadSampleInterval Duration `json:"load_sample_interval" yaml:"load_sample_interval"`
	KnowledgeLimit     int      `json:"knowledge_limit" yaml:"knowledge_limit"`
	DiagnosticCommand  string   `json:"diagnostic_command" yaml:"diagnostic_command"`
	MaxSearchResults   int      `json:"max_search_results" yaml:"max_search_results"`
}

type CoordinatorConfig struct {
	Interval Duration `json:"interval" yaml:"interval"`
}

type PolicyConfig struct {
	DeniedActions  []string `json:"denied_actions" yaml:"denied_actions"`
	DeniedPatterns []string `json:"denied_patterns" yaml:"denied_patterns"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	// ChatID receives goal notifications (a Telegram chat or Discord channel).
	ChatID string `json:"chat_id" yaml:"chat_id"`
	// AllowedChats may issue commands in addition to ChatID.
	AllowedChats []string `json:"allowed_chats" yaml:"allowed_chats"`
}

// CommandChats lists every chat allowed to issue commands.
func (g GatewayConfig) CommandChats() []string {
	chats := make([]string, 0, len(g.AllowedChats)+1)
	if g.ChatID != "" {
		chats = append(chats, g.ChatID)
	}
	return append(chats, g.AllowedChats...)
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// Duration is a time.Duration read from "90s"-style strings or a number of seconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(x * float64(time.Second))
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Default returns the configuration used when a file leaves a field unset.
func Default() *Config {
	return &Config{
		App:    AppConfig{Name: "autogoal", Workspace: "."},
		Memory: MemoryConfig{Type: "sqlite", Path: "autogoal.db"},
		Sandbox: SandboxConfig{
			BlockedCommands: []string{"rm", "sudo", "su", "shutdown", "reboot", "mkfs", "dd", "git push"},
			CommandTimeout:  Duration(60 * time.Second),
		},
		Tests: TestsConfig{
			Command:     []string{"go", "test", "./..."},
			PatternFlag: "-run",
			Timeout:     Duration(120 * time.Second),
		},
		Scanner: ScannerConfig{
			Include:            []string{"**.py", "**.go"},
			MaxFindings:        10,
			LoadEnabled:        true,
			LoadThreshold:      85,
			LoadSampleInterval: Duration(time.Second),
			KnowledgeLimit:     50,
			DiagnosticCommand:  "uptime",
			MaxSearchResults:   50,
		},
		Coordinator: CoordinatorConfig{Interval: Duration(60 * time.Second)},
		Policy: PolicyConfig{
			DeniedPatterns: []string{`rm\s+-rf`, `mkfs`, `shutdown`, `reboot`},
		},
		Gateways: map[string]GatewayConfig{},
		Logging:  LoggingConfig{Level: "info", Format: "auto"},
		Metrics:  MetricsConfig{Addr: ":9090"},
	}
}

// LoadConfig reads path over the defaults. Files ending in .yaml or .yml are
// YAML, anything else JSON. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		cfg.derive()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	cfg.derive()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// derive fills fields whose defaults depend on other fields.
func (c *Config) derive() {
	if c.App.Workspace == "" {
		c.App.Workspace = "."
	}
	if len(c.Sandbox.Roots) == 0 {
		c.Sandbox.Roots = []string{c.App.Workspace}
	}
	if c.Scanner.Root == "" {
		c.Scanner.Root = c.Sandbox.Roots[0]
	}
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Memory.Path) == "" {
		errs = append(errs, errors.New("memory.path is required"))
	}
	if c.Memory.Type != "" && c.Memory.Type != "sqlite" {
		errs = append(errs, fmt.Errorf("memory.type %q is not supported", c.Memory.Type))
	}
	if len(c.Sandbox.Roots) == 0 {
		errs = append(errs, errors.New("sandbox.roots must not be empty"))
	}
	if c.Sandbox.CommandTimeout <= 0 {
		errs = append(errs, errors.New("sandbox.command_timeout must be positive"))
	}
	if len(c.Tests.Command) == 0 {
		errs = append(errs, errors.New("tests.command is required"))
	}
	if c.Tests.Timeout <= 0 {
		errs = append(errs, errors.New("tests.timeout must be positive"))
	}
	if c.Scanner.Root != "" && len(c.Sandbox.Roots) > 0 && !underAny(c.Scanner.Root, c.Sandbox.Roots) {
		errs = append(errs, fmt.Errorf("scanner.root %q must lie under a sandbox root", c.Scanner.Root))
	}
	if c.Scanner.MaxFindings < 0 {
		errs = append(errs, errors.New("scanner.max_findings must not be negative"))
	}
	if c.Scanner.LoadThreshold <= 0 || c.Scanner.LoadThreshold > 100 {
		errs = append(errs, fmt.Errorf("scanner.load_threshold %.1f is outside (0, 100]", c.Scanner.LoadThreshold))
	}
	if c.Coordinator.Interval <= 0 {
		errs = append(errs, errors.New("coordinator.interval must be positive"))
	}
	for _, p := range c.Policy.DeniedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("policy.denied_patterns: %w", err))
		}
	}
	for name, g := range c.Gateways {
		if g.Enabled && g.Token == "" {
			errs = append(errs, fmt.Errorf("gateways.%s is enabled without a token", name))
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "json", "console", "auto":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json, console or auto", c.Logging.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}

// underAny compares lexically; symlinks are resolved later by the sandbox.
func underAny(path string, roots []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == r || strings.HasPrefix(abs, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
