package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	envVarListenAddr      = "SCREENHEAD_ARENA_LISTEN_ADDR"
	envVarMode            = "SCREENHEAD_ARENA_MODE"
	envVarLogFormat       = "SCREENHEAD_ARENA_LOG_FORMAT"
	envVarLogLevel        = "SCREENHEAD_ARENA_LOG_LEVEL"
	envVarShutdownTimeout = "SCREENHEAD_ARENA_SHUTDOWN_TIMEOUT"
	envVarConfigFile      = "SCREENHEAD_ARENA_CONFIG"

	// Lobby limits.
	envVarMaxPeers       = "SCREENHEAD_ARENA_MAX_PEERS"
	envVarMaxLobbies     = "SCREENHEAD_ARENA_MAX_LOBBIES"
	envVarNoLobbyTimeout = "SCREENHEAD_ARENA_NO_LOBBY_TIMEOUT"

	// WebSocket hardening.
	envVarPingInterval         = "SCREENHEAD_ARENA_PING_INTERVAL"
	envVarWSIdleTimeout        = "SCREENHEAD_ARENA_WS_IDLE_TIMEOUT"
	envVarMaxMessageBytes      = "SCREENHEAD_ARENA_MAX_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "SCREENHEAD_ARENA_MAX_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr           = "127.0.0.1:9080"
	DefaultShutdown             = 15 * time.Second
	DefaultMode            Mode = ModeDev
	DefaultMaxPeers             = 512
	DefaultMaxLobbies           = 256
	DefaultNoLobbyTimeout       = 1 * time.Second

	DefaultPingInterval               = 10 * time.Second
	DefaultWSIdleTimeout              = 60 * time.Second
	DefaultMaxMessageBytes      int64 = 64 * 1024
	DefaultMaxMessagesPerSecond       = 50
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// Lobby limits. Zero disables the cap or timeout.
	MaxPeers       int
	MaxLobbies     int
	NoLobbyTimeout time.Duration

	PingInterval         time.Duration
	WSIdleTimeout        time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// duration lets TOML carry durations as strings ("1s", "500ms").
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// fileConfig mirrors the optional TOML config file. Every field is a pointer
// so unset keys fall through to the built-in defaults.
type fileConfig struct {
	ListenAddr      *string   `toml:"listen_addr"`
	Mode            *string   `toml:"mode"`
	LogFormat       *string   `toml:"log_format"`
	LogLevel        *string   `toml:"log_level"`
	ShutdownTimeout *duration `toml:"shutdown_timeout"`

	MaxPeers       *int      `toml:"max_peers"`
	MaxLobbies     *int      `toml:"max_lobbies"`
	NoLobbyTimeout *duration `toml:"no_lobby_timeout"`

	PingInterval         *duration `toml:"ping_interval"`
	WSIdleTimeout        *duration `toml:"ws_idle_timeout"`
	MaxMessageBytes      *int64    `toml:"max_message_bytes"`
	MaxMessagesPerSecond *int      `toml:"max_messages_per_second"`
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

// load layers configuration sources: built-in defaults, then the TOML file,
// then environment variables, then flags. Later sources win.
func load(lookup func(string) (string, bool), args []string) (Config, error) {
	configPath := configFilePath(lookup, args)

	var file fileConfig
	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, &file); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	listenAddr := DefaultListenAddr
	if file.ListenAddr != nil {
		listenAddr = *file.ListenAddr
	}
	listenAddr = envOrDefault(lookup, envVarListenAddr, listenAddr)

	modeDefault := string(DefaultMode)
	if file.Mode != nil {
		modeDefault = *file.Mode
	}
	modeDefault = envOrDefault(lookup, envVarMode, modeDefault)

	logFormatFromFile := ""
	if file.LogFormat != nil {
		logFormatFromFile = *file.LogFormat
	}
	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := logFormatFromFile
	if envLogFormatSet {
		logFormatDefault = envLogFormat
	}
	logFormatConfigured := envLogFormatSet || logFormatFromFile != ""
	if !logFormatConfigured {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	logLevelFromFile := ""
	if file.LogLevel != nil {
		logLevelFromFile = *file.LogLevel
	}
	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := logLevelFromFile
	if envLogLevelSet {
		logLevelDefault = envLogLevel
	}
	logLevelConfigured := envLogLevelSet || logLevelFromFile != ""
	if !logLevelConfigured {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	shutdownTimeout := DefaultShutdown
	if file.ShutdownTimeout != nil {
		shutdownTimeout = time.Duration(*file.ShutdownTimeout)
	}
	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, shutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	maxPeers := DefaultMaxPeers
	if file.MaxPeers != nil {
		maxPeers = *file.MaxPeers
	}
	maxPeers, err = envIntOrDefault(lookup, envVarMaxPeers, maxPeers)
	if err != nil {
		return Config{}, err
	}

	maxLobbies := DefaultMaxLobbies
	if file.MaxLobbies != nil {
		maxLobbies = *file.MaxLobbies
	}
	maxLobbies, err = envIntOrDefault(lookup, envVarMaxLobbies, maxLobbies)
	if err != nil {
		return Config{}, err
	}

	noLobbyTimeout := DefaultNoLobbyTimeout
	if file.NoLobbyTimeout != nil {
		noLobbyTimeout = time.Duration(*file.NoLobbyTimeout)
	}
	noLobbyTimeout, err = envDurationOrDefault(lookup, envVarNoLobbyTimeout, noLobbyTimeout)
	if err != nil {
		return Config{}, err
	}

	pingInterval := DefaultPingInterval
	if file.PingInterval != nil {
		pingInterval = time.Duration(*file.PingInterval)
	}
	pingInterval, err = envDurationOrDefault(lookup, envVarPingInterval, pingInterval)
	if err != nil {
		return Config{}, err
	}

	wsIdleTimeout := DefaultWSIdleTimeout
	if file.WSIdleTimeout != nil {
		wsIdleTimeout = time.Duration(*file.WSIdleTimeout)
	}
	wsIdleTimeout, err = envDurationOrDefault(lookup, envVarWSIdleTimeout, wsIdleTimeout)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if file.MaxMessageBytes != nil {
		maxMessageBytes = *file.MaxMessageBytes
	}
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}

	maxMessagesPerSecond := DefaultMaxMessagesPerSecond
	if file.MaxMessagesPerSecond != nil {
		maxMessagesPerSecond = *file.MaxMessagesPerSecond
	}
	maxMessagesPerSecond, err = envIntOrDefault(lookup, envVarMaxMessagesPerSecond, maxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("screenhead-arena-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		configPathFlag string
		modeStr        string
		logFormatStr   string
		logLevelStr    string
	)

	fs.StringVar(&configPathFlag, "config", configPath, "Path to a TOML config file (env "+envVarConfigFile+")")
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod (env "+envVarMode+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json (env "+envVarLogFormat+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error (env "+envVarLogLevel+")")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")
	fs.IntVar(&maxPeers, "max-peers", maxPeers, "Maximum concurrent connections (0 = unlimited; env "+envVarMaxPeers+")")
	fs.IntVar(&maxLobbies, "max-lobbies", maxLobbies, "Maximum concurrent lobbies (0 = unlimited; env "+envVarMaxLobbies+")")
	fs.DurationVar(&noLobbyTimeout, "no-lobby-timeout", noLobbyTimeout, "Disconnect connections that neither host nor join within this duration (0 = disabled; env "+envVarNoLobbyTimeout+")")
	fs.DurationVar(&pingInterval, "ping-interval", pingInterval, "WebSocket ping interval (must be < --ws-idle-timeout; env "+envVarPingInterval+")")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close idle WebSocket connections after this duration (env "+envVarWSIdleTimeout+")")
	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-messages-per-second", maxMessagesPerSecond, "Max inbound WebSocket messages per second per connection (env "+envVarMaxMessagesPerSecond+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !logFormatConfigured && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !logLevelConfigured && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if maxPeers < 0 {
		return Config{}, fmt.Errorf("%s/--max-peers must be >= 0", envVarMaxPeers)
	}
	if maxLobbies < 0 {
		return Config{}, fmt.Errorf("%s/--max-lobbies must be >= 0", envVarMaxLobbies)
	}
	if noLobbyTimeout < 0 {
		return Config{}, fmt.Errorf("%s/--no-lobby-timeout must be >= 0", envVarNoLobbyTimeout)
	}
	if pingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ping-interval must be > 0", envVarPingInterval)
	}
	if wsIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-idle-timeout must be > 0", envVarWSIdleTimeout)
	}
	if pingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s/--ping-interval must be < %s/--ws-idle-timeout", envVarPingInterval, envVarWSIdleTimeout)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-message-bytes must be > 0", envVarMaxMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-messages-per-second must be > 0", envVarMaxMessagesPerSecond)
	}

	return Config{
		ListenAddr:      listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,

		MaxPeers:       maxPeers,
		MaxLobbies:     maxLobbies,
		NoLobbyTimeout: noLobbyTimeout,

		PingInterval:         pingInterval,
		WSIdleTimeout:        wsIdleTimeout,
		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
	}, nil
}

// configFilePath resolves the config file before flag parsing so file values
// can act as flag defaults. The -config flag is scanned by hand for the same
// reason.
func configFilePath(lookup func(string) (string, bool), args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-config" || arg == "--config" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if v, ok := strings.CutPrefix(arg, "-config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if v, ok := lookup(envVarConfigFile); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return ""
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", s)
	}
}

func parseLogFormat(s string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(s))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", s)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (expected debug, info, warn, or error)", s)
	}
}

func defaultLogFormatForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return "info"
	}
	return "debug"
}
