package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/ipc"
	"github.com/backkem/hace/pkg/provider"
	"github.com/backkem/hace/pkg/transport"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configName      = "hace-digestd"
	envPrefix       = "HACE"
	defaultLogLevel = "info"
)

var errInvalidConfig = errors.New("hace-digestd: invalid config")

// Config holds the daemon and client settings.
type Config struct {
	// Listen is the UDP address served by "serve".
	Listen string `mapstructure:"listen"`

	// Server is the daemon address used by "sum" and "hmac". Empty runs
	// an in-process daemon.
	Server string `mapstructure:"server"`

	MaxSessions     int           `mapstructure:"max-sessions"`
	MaxTransfer     int           `mapstructure:"max-transfer"`
	MaxPolls        int           `mapstructure:"max-polls"`
	CompletionPolls int           `mapstructure:"completion-polls"`
	Timeout         time.Duration `mapstructure:"timeout"`

	Algorithm string `mapstructure:"algorithm"`

	// Key is the hex-encoded HMAC key.
	Key string `mapstructure:"key"`

	LogLevel string `mapstructure:"log-level"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Listen:          fmt.Sprintf(":%d", transport.DefaultPort),
		MaxSessions:     provider.MaxSessions,
		MaxTransfer:     ipc.DefaultMaxTransfer,
		MaxPolls:        digest.DefaultMaxPolls,
		CompletionPolls: hace.DefaultCompletionPolls,
		Timeout:         ipc.DefaultTimeout,
		Algorithm:       "sha256",
		LogLevel:        defaultLogLevel,
	}
}

// Validate checks the settings that are not validated by the packages
// they are passed to.
func (c Config) Validate() error {
	if c.MaxSessions < 1 || c.MaxSessions > provider.MaxSessions {
		return fmt.Errorf("%w: max-sessions %d not in 1..%d", errInvalidConfig, c.MaxSessions, provider.MaxSessions)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := parseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if _, err := hex.DecodeString(c.Key); err != nil {
		return fmt.Errorf("%w: key: %v", errInvalidConfig, err)
	}
	return nil
}

// options carries the loaded configuration from the root command to the
// subcommands.
type options struct {
	v   *viper.Viper
	cfg Config
}

func newOptions(v *viper.Viper) *options {
	d := DefaultConfig()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("server", d.Server)
	v.SetDefault("max-sessions", d.MaxSessions)
	v.SetDefault("max-transfer", d.MaxTransfer)
	v.SetDefault("max-polls", d.MaxPolls)
	v.SetDefault("completion-polls", d.CompletionPolls)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("algorithm", d.Algorithm)
	v.SetDefault("key", d.Key)
	v.SetDefault("log-level", d.LogLevel)
	return &options{v: v, cfg: d}
}

// load merges flags, environment and config file into o.cfg.
func (o *options) load(cmd *cobra.Command) error {
	v := o.v
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hace")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// loggerFactory returns a factory writing to w at the configured level.
func (o *options) loggerFactory(w io.Writer) logging.LoggerFactory {
	level, _ := parseLogLevel(o.cfg.LogLevel)
	lf := logging.NewDefaultLoggerFactory()
	lf.Writer = w
	lf.DefaultLogLevel = level
	return lf
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "", "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("%w: log level %q", errInvalidConfig, s)
	}
}

// parseAlgorithm accepts names like "sha256", "SHA-256" and "sha512/256".
func parseAlgorithm(s string) (hace.Algorithm, error) {
	name := strings.NewReplacer("-", "", "_", "", "/", "").Replace(strings.ToLower(s))
	switch name {
	case "sha1":
		return hace.AlgorithmSHA1, nil
	case "sha224":
		return hace.AlgorithmSHA224, nil
	case "sha256":
		return hace.AlgorithmSHA256, nil
	case "sha384":
		return hace.AlgorithmSHA384, nil
	case "sha512":
		return hace.AlgorithmSHA512, nil
	case "sha512224":
		return hace.AlgorithmSHA512_224, nil
	case "sha512256":
		return hace.AlgorithmSHA512_256, nil
	default:
		return hace.AlgorithmUnknown, fmt.Errorf("%w: algorithm %q", errInvalidConfig, s)
	}
}
