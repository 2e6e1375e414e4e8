package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/polycall-go/polycall/internal/client"
	"github.com/polycall-go/polycall/internal/config"
	"github.com/polycall-go/polycall/internal/logging"
	"github.com/polycall-go/polycall/internal/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to a polycallctl TOML config file")
	address := flag.String("address", "", "server address, overrides config")
	token := flag.String("token", "", "auth token, overrides config")
	command := flag.String("command", "", "command payload to send and wait for a response")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.DefaultClientConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadClientConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "polycallctl: %v\n", err)
			os.Exit(1)
		}
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *token != "" {
		cfg.AuthToken = *token
	}
	if cfg.Address == "" {
		fmt.Fprintln(os.Stderr, "polycallctl: address is required (-address or config)")
		os.Exit(1)
	}

	if err := run(cfg, *command); err != nil {
		fmt.Fprintf(os.Stderr, "polycallctl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.ClientConfig, command string) error {
	c := client.New(client.Config{
		Address:            cfg.Address,
		Session:            cfg.Session,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		Credentials:        protocol.EncodeAuthToken(cfg.AuthToken),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- c.Run(runCtx) }()

	if command != "" {
		entry, _, err := c.SendCommand([]byte(command))
		if err != nil {
			cancel()
			return fmt.Errorf("send command: %w", err)
		}
		payload, err := entry.Wait()
		if err != nil {
			cancel()
			return fmt.Errorf("await response: %w", err)
		}
		fmt.Println(string(payload))
	} else {
		time.Sleep(cfg.Session.HandshakeTimeout)
	}

	c.Shutdown()
	cancel()
	<-runErrCh
	return nil
}
