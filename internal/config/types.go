package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
)

const (
	// DefaultFileName is the config file looked up inside the base directory.
	DefaultFileName = "servectl.yaml"

	DefaultName       = "server"
	DefaultPort       = 8080
	DefaultKeepAlive  = 60 * time.Second
	DefaultMatch      = "uvicorn app.main:app"
	DefaultLogPath    = "logs/server.log"
	DefaultBaseDirEnv = "BASE_DIR"
	DefaultSignal     = "TERM"
)

// DefaultCommand is the dependency-managed run invocation of the server.
var DefaultCommand = []string{"poetry", "run", "uvicorn", "app.main:app"}

// Signals lists the signal names accepted by the terminator.
var Signals = []string{"TERM", "INT", "KILL", "HUP", "QUIT"}

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a duration ("90s") or a bare number of seconds ("90"),
// accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := parseSeconds(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Set assigns an explicit value.
func (d *Duration) Set(v time.Duration) {
	d.Duration = v
	d.explicit = true
}

// Config mirrors the servectl.yaml document and carries the resolved launch
// contract once ApplyDefaults and Resolve have run.
type Config struct {
	Version string     `yaml:"version"`
	Server  ServerSpec `yaml:"server"`
	Match   string     `yaml:"match"`
	Signal  string     `yaml:"signal"`
	Log     LogSpec    `yaml:"log"`

	// BaseDir is the working root for the server and relative paths.
	BaseDir string `yaml:"-"`
	// Source is the file the config was read from, empty for built-in defaults.
	Source string `yaml:"-"`
}

// ServerSpec describes how the server process is invoked.
type ServerSpec struct {
	Name        string            `yaml:"name"`
	Command     []string          `yaml:"command"`
	Reload      *bool             `yaml:"reload"`
	KeepAlive   Duration          `yaml:"keepAlive"`
	Port        int               `yaml:"port"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	BaseDirEnv  string            `yaml:"baseDirEnv"`
}

// LogSpec configures where the server output is appended.
type LogSpec struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{Version: "0.1"}
	_ = cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with the built-in launch contract.
func (c *Config) ApplyDefaults() error {
	if c.Server.Name == "" {
		c.Server.Name = DefaultName
	}
	if len(c.Server.Command) == 0 {
		c.Server.Command = append([]string(nil), DefaultCommand...)
	}
	if c.Server.Reload == nil {
		reload := true
		c.Server.Reload = &reload
	}
	if !c.Server.KeepAlive.IsSet() {
		c.Server.KeepAlive.Set(DefaultKeepAlive)
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.BaseDirEnv == "" {
		c.Server.BaseDirEnv = DefaultBaseDirEnv
	}
	if c.Match == "" {
		c.Match = DefaultMatch
	}
	if c.Signal == "" {
		c.Signal = DefaultSignal
	}
	if c.Log.Path == "" {
		c.Log.Path = DefaultLogPath
	}
	return nil
}

// Validate enforces document invariants.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%s: is required", fieldPath("version"))
	}
	if len(c.Server.Command) == 0 || strings.TrimSpace(c.Server.Command[0]) == "" {
		return fmt.Errorf("%s: must name an executable", fieldPath("server", "command"))
	}
	if err := validatePort(c.Server.Port); err != nil {
		return fmt.Errorf("%s: %w", fieldPath("server", "port"), err)
	}
	if c.Server.KeepAlive.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("server", "keepAlive"))
	}
	if c.Server.KeepAlive.Duration%time.Second != 0 {
		return fmt.Errorf("%s: must be a whole number of seconds", fieldPath("server", "keepAlive"))
	}
	if !envNamePattern.MatchString(c.Server.BaseDirEnv) {
		return fmt.Errorf("%s: %q is not a valid environment variable name", fieldPath("server", "baseDirEnv"), c.Server.BaseDirEnv)
	}
	for key := range c.Server.Env {
		if !envNamePattern.MatchString(key) {
			return fmt.Errorf("%s: %q is not a valid environment variable name", fieldPath("server", "env"), key)
		}
	}
	if strings.TrimSpace(c.Match) == "" {
		return fmt.Errorf("%s: must not be blank", fieldPath("match"))
	}
	if !knownSignal(c.Signal) {
		return fmt.Errorf("%s: unsupported signal %q (expected one of %s)", fieldPath("signal"), c.Signal, strings.Join(Signals, ", "))
	}
	if strings.TrimSpace(c.Log.Path) == "" {
		return fmt.Errorf("%s: is required", fieldPath("log", "path"))
	}
	return nil
}

// Resolve anchors relative paths at baseDir.
func (c *Config) Resolve(baseDir string) error {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolve base directory: %w", err)
	}
	c.BaseDir = abs
	c.Log.Path = resolvePath(abs, c.Log.Path)
	if c.Server.EnvFromFile != "" {
		c.Server.EnvFromFile = resolvePath(abs, c.Server.EnvFromFile)
	}
	return nil
}

// ReloadEnabled reports whether the server should watch for code changes.
func (c *Config) ReloadEnabled() bool {
	return c.Server.Reload == nil || *c.Server.Reload
}

// Argv returns the full command line used to start the server.
func (c *Config) Argv() []string {
	argv := append([]string(nil), c.Server.Command...)
	if c.ReloadEnabled() {
		argv = append(argv, "--reload")
	}
	if c.Server.KeepAlive.Duration > 0 {
		argv = append(argv, "--timeout-keep-alive", strconv.Itoa(int(c.Server.KeepAlive.Duration/time.Second)))
	}
	argv = append(argv, "--port", strconv.Itoa(c.Server.Port))
	return append(argv, c.Server.Args...)
}

func validatePort(port int) error {
	_, err := ParsePort(strconv.Itoa(port))
	return err
}

// ParsePort parses a listening port as a container port spec would be parsed,
// rejecting the zero port.
func ParsePort(value string) (int, error) {
	port, err := nat.ParsePort(strings.TrimSpace(value))
	if err != nil || port == 0 {
		return 0, fmt.Errorf("invalid port %q: must be in range 1-65535", value)
	}
	return port, nil
}

func knownSignal(name string) bool {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	for _, candidate := range Signals {
		if candidate == name {
			return true
		}
	}
	return false
}

func resolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
