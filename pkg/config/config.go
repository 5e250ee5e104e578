// Package config loads relay settings from the environment and command-line
// flags. Flags override environment variables, which override defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
)

const (
	envVarAppEnv               = "APP_ENV"
	envVarHTTPAddr             = "HTTP_ADDR"
	envVarLogLevel             = "LOG_LEVEL"
	envVarLogFormat            = "LOG_FORMAT"
	envVarRoomCodes            = "ROOM_CODES"
	envVarExcludeSender        = "EXCLUDE_SENDER"
	envVarCORSAllow            = "CORS_ALLOW"
	envVarICEServers           = "ICE_SERVERS"
	envVarICEUsername          = "ICE_USERNAME"
	envVarICECredential        = "ICE_CREDENTIAL"
	envVarMaxMessageBytes      = "MAX_MESSAGE_BYTES"
	envVarSendBuffer           = "SEND_BUFFER"
	envVarWriteWait            = "WRITE_WAIT"
	envVarPongWait             = "PONG_WAIT"
	envVarMaxMessagesPerSecond = "MAX_MESSAGES_PER_SECOND"
	envVarShutdownTimeout      = "SHUTDOWN_TIMEOUT"

	DefaultHTTPAddr        = ":8080"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultICEServer       = "stun:stun.l.google.com:19302"
	DefaultMaxMessageBytes = int64(64 * 1024)
	DefaultSendBuffer      = 256
	DefaultWriteWait       = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Env       string
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// RoomCodes restricts which room codes may be joined. Empty allows any
	// non-empty code.
	RoomCodes []string

	// ExcludeSender stops the relay from echoing a message back to its
	// sender. The default echoes, matching what existing clients expect.
	ExcludeSender bool

	CORSAllow []string

	ICEServers    []string
	ICEUsername   string
	ICECredential string

	MaxMessageBytes      int64
	SendBuffer           int
	WriteWait            time.Duration
	PongWait             time.Duration
	MaxMessagesPerSecond float64

	ShutdownTimeout time.Duration
}

// FromEnv returns defaults overridden by environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:           getEnv(envVarAppEnv, "dev"),
		HTTPAddr:      getEnv(envVarHTTPAddr, DefaultHTTPAddr),
		LogLevel:      getEnv(envVarLogLevel, DefaultLogLevel),
		LogFormat:     getEnv(envVarLogFormat, DefaultLogFormat),
		RoomCodes:     splitCSV(os.Getenv(envVarRoomCodes)),
		CORSAllow:     splitCSV(getEnv(envVarCORSAllow, "*")),
		ICEServers:    splitCSV(getEnv(envVarICEServers, DefaultICEServer)),
		ICEUsername:   os.Getenv(envVarICEUsername),
		ICECredential: os.Getenv(envVarICECredential),
	}

	var errs []error
	var err error
	if cfg.ExcludeSender, err = envBool(envVarExcludeSender, false); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxMessageBytes, err = envInt64(envVarMaxMessageBytes, DefaultMaxMessageBytes); err != nil {
		errs = append(errs, err)
	}
	sendBuffer, err := envInt64(envVarSendBuffer, DefaultSendBuffer)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SendBuffer = int(sendBuffer)
	if cfg.WriteWait, err = envDuration(envVarWriteWait, DefaultWriteWait); err != nil {
		errs = append(errs, err)
	}
	if cfg.PongWait, err = envDuration(envVarPongWait, DefaultPongWait); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = envDuration(envVarShutdownTimeout, DefaultShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxMessagesPerSecond, err = envFloat(envVarMaxMessagesPerSecond, 0); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

// BindFlags registers a flag for every setting, using the current values in
// cfg as defaults.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Env, "env", cfg.Env, "runtime environment (dev or prod)")
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text or json)")
	fs.StringSliceVar(&cfg.RoomCodes, "room-codes", cfg.RoomCodes, "allowed room codes; empty allows any")
	fs.BoolVar(&cfg.ExcludeSender, "exclude-sender", cfg.ExcludeSender, "do not echo messages back to their sender")
	fs.StringSliceVar(&cfg.CORSAllow, "cors-allow", cfg.CORSAllow, "allowed CORS origins")
	fs.StringSliceVar(&cfg.ICEServers, "ice-servers", cfg.ICEServers, "STUN/TURN URLs advertised to clients")
	fs.StringVar(&cfg.ICEUsername, "ice-username", cfg.ICEUsername, "username for TURN servers")
	fs.StringVar(&cfg.ICECredential, "ice-credential", cfg.ICECredential, "credential for TURN servers")
	fs.Int64Var(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "largest inbound message accepted")
	fs.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "outbound messages queued per connection")
	fs.DurationVar(&cfg.WriteWait, "write-wait", cfg.WriteWait, "time allowed to write a message to a peer")
	fs.DurationVar(&cfg.PongWait, "pong-wait", cfg.PongWait, "time allowed between pongs from a peer")
	fs.Float64Var(&cfg.MaxMessagesPerSecond, "max-messages-per-second", cfg.MaxMessagesPerSecond, "per-connection inbound message rate; 0 disables")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown deadline")
}

// Validate checks values that flags and env parsing cannot.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q (expected text or json)", c.LogFormat))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send buffer must be positive, got %d", c.SendBuffer))
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		errs = append(errs, errors.New("write and pong waits must be positive"))
	}
	if c.MaxMessagesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("max messages per second must not be negative, got %v", c.MaxMessagesPerSecond))
	}
	for _, raw := range c.ICEServers {
		if _, err := stun.ParseURI(raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid ICE server %q: %w", raw, err))
		}
	}
	return errors.Join(errs...)
}

// PeerConnectionICEServers converts the configured URLs into the form
// browsers pass to RTCPeerConnection. Credentials are attached to TURN URLs
// only.
func (c Config) PeerConnectionICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, raw := range c.ICEServers {
		server := webrtc.ICEServer{URLs: []string{raw}}
		if isTURN(raw) && c.ICEUsername != "" {
			server.Username = c.ICEUsername
			server.Credential = c.ICECredential
		}
		servers = append(servers, server)
	}
	return servers
}

func isTURN(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "turn:") || strings.HasPrefix(lower, "turns:")
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return b, nil
}

func envInt64(k string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return i, nil
}

func envFloat(k string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return f, nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return d, nil
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
