package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/polycall-go/polycall/internal/auth"
	"github.com/polycall-go/polycall/internal/config"
	"github.com/polycall-go/polycall/internal/logging"
	"github.com/polycall-go/polycall/internal/protocol"
	"github.com/polycall-go/polycall/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to a polycalld TOML config file")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.DefaultServerConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadServerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "polycalld: %v\n", err)
			os.Exit(1)
		}
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "polycalld: %v\n", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	logging.L().Error().Err(http.ListenAndServe(addr, mux)).Msg("polycalld: metrics server exited")
}

func run(cfg config.ServerConfig) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := transport.Listen(addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()
	logging.L().Info().Str("addr", ln.Addr().String()).Msg("polycalld: listening")

	validator := auth.StaticToken{Token: cfg.AuthToken}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConnection(conn, cfg, validator)
	}
}

func serveConnection(conn transport.Stream, cfg config.ServerConfig, validator auth.Validator) {
	defer conn.Close()

	ctx, err := protocol.NewContext(conn, cfg.Session, protocol.Callbacks{
		OnAuthRequest: protocol.TokenAuth(validator),
		OnCommand:     echoCommand,
		OnStateChange: func(c *protocol.Context, from, to string) {
			logging.L().Debug().Str("from", from).Str("to", to).Msg("polycalld: state transition")
		},
	})
	if err != nil {
		logging.L().Error().Err(err).Msg("polycalld: wire connection")
		return
	}

	buf := make([]byte, cfg.Session.MaxMessageSize+16)
	for {
		_ = ctx.SetReadDeadline(time.Now().Add(cfg.Session.HeartbeatInterval * 3))
		n, err := ctx.ReadTransport(buf)
		if err != nil {
			logging.L().Debug().Err(err).Msg("polycalld: connection closed")
			return
		}
		if err := ctx.Feed(buf[:n]); err != nil {
			logging.L().Warn().Err(err).Msg("polycalld: feed error")
			return
		}
	}
}

func echoCommand(c *protocol.Context, payload []byte) ([]byte, error) {
	return payload, nil
}
