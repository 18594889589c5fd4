package config

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBroadcastIntervalMS = 20
	MinBroadcastIntervalMS     = 5
	DefaultTCPPort             = 12345
	MinTCPPort                 = 1024
	MaxTCPPort                 = 65535
	DefaultSHMName             = "FlightReaderData"
	DefaultIngestAddr          = "127.0.0.1:12346"
	DefaultLogLevel            = "info"
	DefaultLogMaxSizeMB        = 10
	DefaultLogMaxBackups       = 3
	DefaultWebSocketPath       = "/telemetry"

	EnvBroadcastMS = "FLIGHTREADER_BROADCAST_MS"
	EnvTCPPort     = "FLIGHTREADER_TCP_PORT"
)

type UDPConfig struct {
	Server string `toml:"server"`
	Port   int    `toml:"port"`
}

type WebSocketConfig struct {
	Port int    `toml:"port"`
	Path string `toml:"path"`
}

type Config struct {
	BroadcastIntervalMS int    `toml:"broadcast_interval_ms"`
	TCPPort             int    `toml:"tcp_port"`
	SHMName             string `toml:"shm_name"`
	SHMDir              string `toml:"shm_dir"`
	IngestAddr          string `toml:"ingest_addr"`

	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`

	UDP       UDPConfig       `toml:"udp"`
	WebSocket WebSocketConfig `toml:"websocket"`
}

func Default() Config {
	return Config{
		BroadcastIntervalMS: DefaultBroadcastIntervalMS,
		TCPPort:             DefaultTCPPort,
		SHMName:             DefaultSHMName,
		IngestAddr:          DefaultIngestAddr,
		LogLevel:            DefaultLogLevel,
		LogMaxSizeMB:        DefaultLogMaxSizeMB,
		LogMaxBackups:       DefaultLogMaxBackups,
		WebSocket: WebSocketConfig{
			Path: DefaultWebSocketPath,
		},
	}
}

// Load decodes a TOML document on top of the defaults, applies environment
// overrides and validates the result.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, errors.Wrap(err, "unable to read config reader")
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, errors.Wrap(err, "unable to decode configuration")
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.Validate()
	return cfg, nil
}

// LoadFile loads path. A missing file is not an error and yields the
// defaults with environment overrides applied.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Info("no config file, using defaults")
		cfg := Default()
		cfg.applyEnv(os.LookupEnv)
		cfg.Validate()
		return cfg, nil
	}
	if err != nil {
		return Default(), errors.Wrapf(err, "unable to open config file %s", path)
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBroadcastMS); ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			log.WithField("value", v).Warnf("ignoring invalid %s", EnvBroadcastMS)
		} else {
			c.BroadcastIntervalMS = ms
		}
	}
	if v, ok := lookup(EnvTCPPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			// an unparsable port falls back to the default like an out of range one
			port = 0
		}
		c.TCPPort = port
	}
}

// Validate clamps the broadcast interval to its floor and replaces an out of
// range TCP port with the default.
func (c *Config) Validate() {
	if c.BroadcastIntervalMS < MinBroadcastIntervalMS {
		log.WithField("broadcast_interval_ms", c.BroadcastIntervalMS).
			Warnf("broadcast interval below floor, using %d", MinBroadcastIntervalMS)
		c.BroadcastIntervalMS = MinBroadcastIntervalMS
	}
	if c.TCPPort < MinTCPPort || c.TCPPort > MaxTCPPort {
		log.WithField("tcp_port", c.TCPPort).
			Warnf("tcp port out of range, using %d", DefaultTCPPort)
		c.TCPPort = DefaultTCPPort
	}
	if c.SHMName == "" {
		c.SHMName = DefaultSHMName
	}
	if c.WebSocket.Path == "" {
		c.WebSocket.Path = DefaultWebSocketPath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMS) * time.Millisecond
}
