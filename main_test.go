package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/autovoice/config"
	"github.com/onnwee/autovoice/telemetry"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  slog.Level
		known bool
	}{
		{"", slog.LevelInfo, true},
		{"info", slog.LevelInfo, true},
		{"DEBUG", slog.LevelDebug, true},
		{"trace", telemetry.LevelTrace, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, known := parseLevel(tt.in)
		assert.Equal(t, tt.want, got, "parseLevel(%q)", tt.in)
		assert.Equal(t, tt.known, known, "parseLevel(%q) known", tt.in)
	}
}

func TestNewLoggerVerbosity(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		verbosity int
		debug     bool
		trace     bool
	}{
		{name: "info", level: "info"},
		{name: "-v", level: "info", verbosity: 1, debug: true},
		{name: "-vv", level: "info", verbosity: 2, debug: true, trace: true},
		{name: "configured debug", level: "debug", debug: true},
		{name: "-v keeps lower configured level", level: "trace", verbosity: 1, debug: true, trace: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.level, "text", tt.verbosity, &buf)
			logger.Debug("debug line")
			logger.Log(t.Context(), telemetry.LevelTrace, "trace line")

			out := buf.String()
			assert.Equal(t, tt.debug, strings.Contains(out, "debug line"), out)
			assert.Equal(t, tt.trace, strings.Contains(out, "trace line"), out)
			if tt.trace {
				assert.Contains(t, out, "level=TRACE")
			}
		})
	}
}

func TestNewLoggerJSONAndUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("shouting", "JSON", 0, &buf)
	logger.Info("hello")
	out := buf.String()
	assert.Contains(t, out, `"msg":"unknown LOG_LEVEL, using info"`)
	assert.Contains(t, out, `"msg":"hello"`)
}

func TestFlagsOverrideConfig(t *testing.T) {
	opts := &cliOptions{cfg: config.Defaults()}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.register(fs)
	require.NoError(t, fs.Parse([]string{
		"--server", "irc.flag.net",
		"--tls=false",
		"--promote-after-hours", "2",
		"-vv",
	}))

	minutes := uint64(5)
	cfg := config.Defaults()
	cfg.Server = "irc.file.net"
	cfg.Nickname = "fromfile"
	cfg.Channel = "#file"
	cfg.PromoteAfterMinutes = &minutes
	opts.apply(fs, cfg)

	assert.Equal(t, "irc.flag.net", cfg.Server)
	assert.False(t, cfg.TLS)
	assert.Equal(t, "fromfile", cfg.Nickname, "unset flag must not clobber config")
	assert.Equal(t, "#file", cfg.Channel)
	assert.Nil(t, cfg.PromoteAfterMinutes, "flag cooldown replaces config cooldown")
	require.NotNil(t, cfg.PromoteAfterHours)
	assert.Equal(t, uint64(2), *cfg.PromoteAfterHours)
	assert.Equal(t, 2, opts.verbosity)

	cooldown, err := cfg.Cooldown()
	require.NoError(t, err)
	assert.Equal(t, "2h0m0s", cooldown.String())
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "autovoice dev\n", out.String())
}

func TestCompletionCommand(t *testing.T) {
	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"completion", "bash"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "autovoice")
}

func TestCooldownFlagsMutuallyExclusive(t *testing.T) {
	cmd := rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--promote-after-seconds", "1", "--promote-after-minutes", "1"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promote-after-minutes")
}

func TestRootRejectsIncompleteConfig(t *testing.T) {
	t.Setenv("IRC_SERVER", "")
	t.Setenv("LOG_LEVEL", "error")
	cmd := rootCommand()
	cmd.SetArgs([]string{"--nickname", "bot", "--channel", "mod", "--promote-after-minutes", "5"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing irc server")
}
