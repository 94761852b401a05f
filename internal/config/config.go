// Package config builds the wrapper configuration from defaults, an optional
// YAML file, CCWRAP_* environment variables and (for ccwrapctl) command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/psantana5/ccwrap/internal/logging"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CCWRAP"

// EnvConfigFile names an explicit config file.
const EnvConfigFile = "CCWRAP_CONFIG"

// Keys shared by viper, the config file and the CLI flags.
const (
	KeyCompiler    = "compiler"
	KeyPolicyFlags = "policy_flags"
	KeyEnv         = "env"
	KeyPathPrepend = "path_prepend"
	KeyInheritEnv  = "inherit_env"
	KeyTimeout     = "timeout"
	KeyBanners     = "banners"
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
	KeyLogFile     = "log_file"
	KeyJournal     = "journal"
)

// DefaultPolicyFlags are prepended to every compiler invocation.
var DefaultPolicyFlags = []string{"-masm=att", "-v"}

// Config is the effective wrapper configuration.
type Config struct {
	Compiler    string        `yaml:"compiler" json:"compiler"`
	PolicyFlags []string      `yaml:"policy_flags" json:"policy_flags"`
	Env         []string      `yaml:"env,omitempty" json:"env,omitempty"` // KEY=VALUE
	PathPrepend []string      `yaml:"path_prepend,omitempty" json:"path_prepend,omitempty"`
	InheritEnv  bool          `yaml:"inherit_env" json:"inherit_env"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"` // 0 = wait forever
	Banners     bool          `yaml:"banners" json:"banners"`
	LogLevel    string        `yaml:"log_level" json:"log_level"`
	LogFormat   string        `yaml:"log_format" json:"log_format"`
	LogFile     string        `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	Journal     string        `yaml:"journal,omitempty" json:"journal,omitempty"`

	// Source is the config file that was read, if any.
	Source string `yaml:"-" json:"source,omitempty"`
}

// DefaultCompilerPath returns the platform default compiler location.
func DefaultCompilerPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Tools\clang-cl.exe`
	}
	return "/usr/bin/clang-cl"
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Compiler:    DefaultCompilerPath(),
		PolicyFlags: append([]string(nil), DefaultPolicyFlags...),
		InheritEnv:  true,
		Banners:     true,
		LogLevel:    "warn",
		LogFormat:   string(logging.FormatText),
	}
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault(KeyCompiler, d.Compiler)
	v.SetDefault(KeyPolicyFlags, d.PolicyFlags)
	v.SetDefault(KeyEnv, []string{})
	v.SetDefault(KeyPathPrepend, []string{})
	v.SetDefault(KeyInheritEnv, d.InheritEnv)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyBanners, d.Banners)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyJournal, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Options controls where Load looks for a config file.
type Options struct {
	// File is an explicit config file. It must exist.
	File string
	// Candidates are tried in order when File is empty; the first existing one wins.
	Candidates []string
	// Flags are bound over every other source when set.
	Flags *pflag.FlagSet
}

// DefaultCandidates lists ccwrap.yaml next to the executable, then $HOME/.ccwrap/config.yaml.
func DefaultCandidates() []string {
	var out []string
	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), "ccwrap.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".ccwrap", "config.yaml"))
	}
	return out
}

// Load resolves the effective configuration.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	file := opts.File
	if file == "" {
		file = os.Getenv(EnvConfigFile)
	}
	explicit := file != ""
	if !explicit {
		file = firstExisting(opts.Candidates)
	}

	if file != "" {
		v.SetConfigFile(file)
		if filepath.Ext(file) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !explicit && (errors.As(err, &notFound) || os.IsNotExist(err)) {
				file = ""
			} else {
				return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
			}
		}
	}

	applyListEnv(v, opts.Flags)

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Compiler:    v.GetString(KeyCompiler),
		PolicyFlags: v.GetStringSlice(KeyPolicyFlags),
		Env:         v.GetStringSlice(KeyEnv),
		PathPrepend: v.GetStringSlice(KeyPathPrepend),
		InheritEnv:  v.GetBool(KeyInheritEnv),
		Timeout:     v.GetDuration(KeyTimeout),
		Banners:     v.GetBool(KeyBanners),
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   v.GetString(KeyLogFormat),
		LogFile:     v.GetString(KeyLogFile),
		Journal:     v.GetString(KeyJournal),
		Source:      file,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// listEnv are list keys whose values routinely contain spaces, so viper's
// whitespace split does not apply to their environment variables.
// CCWRAP_PATH_PREPEND uses the platform path list separator and CCWRAP_ENV
// takes one KEY=VALUE per line.
var listEnv = map[string]struct {
	flag  string
	split func(string) []string
}{
	KeyPathPrepend: {"path-prepend", splitPathList},
	KeyEnv:         {"env", splitLines},
}

func applyListEnv(v *viper.Viper, fs *pflag.FlagSet) {
	for key, le := range listEnv {
		raw := os.Getenv(EnvPrefix + "_" + strings.ToUpper(key))
		if raw == "" {
			continue
		}
		if fs != nil {
			if f := fs.Lookup(le.flag); f != nil && f.Changed {
				continue
			}
		}
		v.Set(key, le.split(raw))
	}
}

func splitPathList(s string) []string {
	var out []string
	for _, dir := range filepath.SplitList(s) {
		if dir != "" {
			out = append(out, dir)
		}
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// flagKeys maps ccwrapctl flag names to config keys.
var flagKeys = map[string]string{
	"compiler":     KeyCompiler,
	"policy-flag":  KeyPolicyFlags,
	"env":          KeyEnv,
	"path-prepend": KeyPathPrepend,
	"timeout":      KeyTimeout,
	"journal":      KeyJournal,
	"log-level":    KeyLogLevel,
	"log-format":   KeyLogFormat,
	"log-file":     KeyLogFile,
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	// --quiet is the inverse of banners.
	if f := fs.Lookup("quiet"); f != nil && f.Changed {
		v.Set(KeyBanners, f.Value.String() != "true")
	}
	return nil
}

// Validate checks the configuration for values the wrapper cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Compiler) == "" {
		return fmt.Errorf("compiler path must not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", c.Timeout)
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("unknown log format %q (want text, json or logfmt)", c.LogFormat)
	}
	for _, kv := range c.Env {
		if _, _, err := SplitEnv(kv); err != nil {
			return err
		}
	}
	return nil
}

// SplitEnv splits a KEY=VALUE override.
func SplitEnv(kv string) (key, value string, err error) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("invalid env override %q (want KEY=VALUE)", kv)
	}
	return key, value, nil
}

// Logger builds the operational logger described by the configuration.
func (c *Config) Logger() (*logging.Logger, error) {
	level := logging.ParseLevel(c.LogLevel)
	format := logging.Format(strings.ToLower(c.LogFormat))
	if c.LogFile != "" {
		return logging.NewFileLogger(c.LogFile, level, format, logging.DefaultMaxFileSize)
	}
	return logging.NewLogger(os.Stderr, level, format), nil
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
