// Package config loads the moderator's settings. Values are layered: built-in
// defaults, then an optional YAML file, then environment variables. The CLI
// applies its flags on top before calling Validate.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/autovoice/chat"
	"github.com/onnwee/autovoice/promote"
)

const (
	NetworkIRC    = "irc"
	NetworkTwitch = "twitch"
)

// ErrMissingCooldown is returned when no promote-after option is set.
var ErrMissingCooldown = errors.New("missing configuration for auto-promotion (eg --promote-after-minutes 5)")

type Config struct {
	Network  string `yaml:"network"  envconfig:"AUTOVOICE_NETWORK"`
	Server   string `yaml:"server"   envconfig:"IRC_SERVER"`
	TLS      bool   `yaml:"tls"      envconfig:"IRC_TLS"`
	Nickname string `yaml:"nickname" envconfig:"IRC_NICKNAME"`
	Password string `yaml:"password" envconfig:"IRC_USER_PASSWORD"`
	Channel  string `yaml:"channel"  envconfig:"IRC_CHANNEL"`

	// Exactly one of these is set.
	PromoteAfterSeconds *uint64 `yaml:"promoteAfterSeconds" envconfig:"PROMOTE_AFTER_SECONDS"`
	PromoteAfterMinutes *uint64 `yaml:"promoteAfterMinutes" envconfig:"PROMOTE_AFTER_MINUTES"`
	PromoteAfterHours   *uint64 `yaml:"promoteAfterHours"   envconfig:"PROMOTE_AFTER_HOURS"`

	CheckInterval time.Duration `yaml:"checkInterval" envconfig:"CHECK_INTERVAL"`
	JitterMin     time.Duration `yaml:"jitterMin"     envconfig:"JITTER_MIN"`
	JitterMax     time.Duration `yaml:"jitterMax"     envconfig:"JITTER_MAX"`

	HTTPAddr     string `yaml:"httpAddr"     envconfig:"HTTP_ADDR"`
	OTLPEndpoint string `yaml:"otlpEndpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `yaml:"logLevel"     envconfig:"LOG_LEVEL"`
	LogFormat    string `yaml:"logFormat"    envconfig:"LOG_FORMAT"`

	Twitch TwitchConfig `yaml:"twitch" envconfig:"TWITCH"`
}

// TwitchConfig holds Helix credentials. Only used when Network is "twitch".
type TwitchConfig struct {
	ClientID     string `yaml:"clientId"     envconfig:"CLIENT_ID"`
	ClientSecret string `yaml:"clientSecret" envconfig:"CLIENT_SECRET"`
	OAuthToken   string `yaml:"oauthToken"   envconfig:"OAUTH_TOKEN"`
	RefreshToken string `yaml:"refreshToken" envconfig:"REFRESH_TOKEN"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Network:       NetworkIRC,
		TLS:           true,
		CheckInterval: promote.DefaultInterval,
		JitterMin:     promote.DefaultJitter.Min,
		JitterMax:     promote.DefaultJitter.Max,
		HTTPAddr:      ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load applies the YAML file at path (if any) and then the environment on top
// of Defaults. Environment variables that are unset leave earlier values alone.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return cfg, nil
}

// Cooldown resolves the promote-after options into a single duration.
func (c *Config) Cooldown() (time.Duration, error) {
	type option struct {
		flag  string
		value *uint64
		unit  time.Duration
	}
	var set []option
	for _, o := range []option{
		{"promote-after-seconds", c.PromoteAfterSeconds, time.Second},
		{"promote-after-minutes", c.PromoteAfterMinutes, time.Minute},
		{"promote-after-hours", c.PromoteAfterHours, time.Hour},
	} {
		if o.value != nil {
			set = append(set, o)
		}
	}
	switch len(set) {
	case 0:
		return 0, ErrMissingCooldown
	case 1:
	default:
		names := make([]string, len(set))
		for i, o := range set {
			names[i] = "--" + o.flag
		}
		return 0, fmt.Errorf("only one of %s may be set", strings.Join(names, ", "))
	}
	o := set[0]
	if *o.value > uint64(math.MaxInt64/int64(o.unit)) {
		return 0, fmt.Errorf("--%s %d is out of range", o.flag, *o.value)
	}
	return time.Duration(*o.value) * o.unit, nil
}

// IRCChannel returns the channel with its '#' prefix.
func (c *Config) IRCChannel() string {
	return chat.NormalizeChannel(strings.TrimSpace(c.Channel))
}

// Settings returns the effective non-secret settings as display strings.
func (c *Config) Settings() map[string]string {
	out := map[string]string{
		"network":        c.Network,
		"nickname":       c.Nickname,
		"channel":        c.IRCChannel(),
		"check_interval": c.CheckInterval.String(),
		"jitter":         fmt.Sprintf("[%s, %s)", c.JitterMin, c.JitterMax),
		"log_level":      c.LogLevel,
		"log_format":     c.LogFormat,
	}
	if c.Network == NetworkIRC {
		out["server"] = c.Server
		out["tls"] = strconv.FormatBool(c.TLS)
	}
	if d, err := c.Cooldown(); err == nil {
		out["cooldown"] = d.String()
	}
	return out
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.Network {
	case NetworkIRC:
		if c.Server == "" {
			return errors.New("missing irc server (--server or IRC_SERVER)")
		}
	case NetworkTwitch:
		if c.Twitch.ClientID == "" {
			return errors.New("missing twitch client id (TWITCH_CLIENT_ID)")
		}
		hasRefresh := c.Twitch.ClientSecret != "" && c.Twitch.RefreshToken != ""
		if c.Twitch.OAuthToken == "" && !hasRefresh {
			return errors.New("missing twitch credentials: require TWITCH_OAUTH_TOKEN or TWITCH_CLIENT_SECRET and TWITCH_REFRESH_TOKEN")
		}
	default:
		return fmt.Errorf("unknown network %q (want %q or %q)", c.Network, NetworkIRC, NetworkTwitch)
	}
	if c.Nickname == "" {
		return errors.New("missing nickname (--nickname or IRC_NICKNAME)")
	}
	if strings.TrimSpace(c.Channel) == "" {
		return errors.New("missing channel (--channel or IRC_CHANNEL)")
	}
	if _, err := c.Cooldown(); err != nil {
		return err
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	if c.JitterMin < 0 || c.JitterMax < c.JitterMin {
		return fmt.Errorf("invalid jitter range [%s, %s)", c.JitterMin, c.JitterMax)
	}
	return nil
}
