// Package config loads the runtime's TOML configuration surface: the
// server bind address and credential policy, and the client's dial
// target, timing, and reconnection posture. It only fills fields the
// file actually sets, leaving everything else at its DefaultConfig
// value.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/polycall-go/polycall/internal/protocol/session"
	"github.com/polycall-go/polycall/internal/transport"
)

// ServerConfig is the file-driven shape of a polycalld instance.
type ServerConfig struct {
	Host        string
	Port        int
	AuthToken   string
	Session     session.Config
	MetricsAddr string
}

// ClientConfig is the file-driven shape of a polycallctl connection.
type ClientConfig struct {
	Address            string
	AuthToken          string
	MaxConnectAttempts int
	Session            session.Config
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:    transport.DefaultHost,
		Port:    transport.DefaultPort,
		Session: session.DefaultConfig(),
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Session: session.DefaultConfig(),
	}
}

type fileConfig struct {
	Host                string  `toml:"host"`
	Port                int     `toml:"port"`
	Address             string  `toml:"address"`
	AuthToken           string  `toml:"auth_token"`
	MetricsAddr         string  `toml:"metrics_addr"`
	MaxMessageSize      uint32  `toml:"max_message_size"`
	ResponseTimeoutMS   int64   `toml:"response_timeout_ms"`
	HeartbeatIntervalMS int64   `toml:"heartbeat_interval_ms"`
	HandshakeTimeoutMS  int64   `toml:"handshake_timeout_ms"`
	Reconnect           bool    `toml:"reconnect"`
	MaxRetries          int     `toml:"max_retries"`
	MaxConnectAttempts  int     `toml:"max_connect_attempts"`
	BackoffInitialMS    int64   `toml:"backoff_initial_ms"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	BackoffMaxMS        int64   `toml:"backoff_max_ms"`
	BackoffJitter       bool    `toml:"backoff_jitter"`
}

// LoadServerConfig reads path and overlays it onto DefaultServerConfig.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("host") {
		if h := strings.TrimSpace(raw.Host); h != "" {
			cfg.Host = h
		}
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	applySessionOverrides(&cfg.Session, meta, raw)

	return cfg, nil
}

// LoadClientConfig reads path and overlays it onto DefaultClientConfig.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	applySessionOverrides(&cfg.Session, meta, raw)

	return cfg, nil
}

func applySessionOverrides(s *session.Config, meta toml.MetaData, raw fileConfig) {
	if meta.IsDefined("max_message_size") {
		s.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("response_timeout_ms") {
		s.ResponseTimeout = time.Duration(raw.ResponseTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("heartbeat_interval_ms") {
		s.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("handshake_timeout_ms") {
		s.HandshakeTimeout = time.Duration(raw.HandshakeTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("reconnect") {
		s.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("max_retries") {
		s.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("backoff_initial_ms") {
		s.Backoff.InitialDelay = time.Duration(raw.BackoffInitialMS) * time.Millisecond
	}
	if meta.IsDefined("backoff_multiplier") {
		s.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_max_ms") {
		s.Backoff.MaxDelay = time.Duration(raw.BackoffMaxMS) * time.Millisecond
	}
	if meta.IsDefined("backoff_jitter") {
		s.Backoff.Jitter = raw.BackoffJitter
	}
}
