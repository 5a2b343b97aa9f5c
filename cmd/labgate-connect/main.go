// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/exerlab/labgate/lib/cli"
	"github.com/exerlab/labgate/lib/config"
	"github.com/exerlab/labgate/lib/netutil"
	"github.com/exerlab/labgate/lib/process"
	"github.com/exerlab/labgate/lib/proxy"
	"github.com/exerlab/labgate/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var brokerAddr string
	var instanceID uint64
	var probe bool

	flagSet := pflag.NewFlagSet("labgate-connect", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to labgate.yaml (default: $LABGATE_CONFIG)")
	flagSet.StringVar(&brokerAddr, "broker", "", "broker address (default: from config)")
	flagSet.Uint64Var(&instanceID, "instance-id", 0, "lab instance to connect from (required)")
	flagSet.BoolVar(&probe, "probe", false, "perform the handshake only, without relaying data")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("labgate-connect")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 2 {
		printHelp(flagSet)
		return fmt.Errorf("expected <dst-ip> <dst-port> arguments, got %d", len(args))
	}
	dstIP, dstPort := args[0], args[1]

	if !flagSet.Changed("instance-id") {
		return fmt.Errorf("--instance-id is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if brokerAddr == "" {
		brokerAddr = cfg.Broker.Address
	}
	logger := cli.NewCommandLogger(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &proxy.Client{
		Address: brokerAddr,
		Timeout: cfg.HandshakeTimeout(),
		Logger:  logger,
	}

	start := time.Now()
	conn, err := client.Connect(ctx, instanceID, dstIP, dstPort)
	if err != nil {
		logger.Error("broker handshake failed",
			"broker", brokerAddr,
			"instance_id", instanceID,
			"dst_ip", dstIP,
			"dst_port", dstPort,
			"error", err)
		return &cli.ExitError{Code: 1}
	}

	if probe {
		conn.Close()
		logger.Info("broker accepted the connection request",
			"broker", brokerAddr,
			"instance_id", instanceID,
			"dst_ip", dstIP,
			"dst_port", dstPort,
			"handshake_ms", time.Since(start).Milliseconds())
		return nil
	}

	return bridgeStdio(conn)
}

// bridgeStdio relays the proxied connection to stdin/stdout until the
// remote side closes or stdin reaches EOF.
func bridgeStdio(conn net.Conn) error {
	defer conn.Close()

	go func() {
		io.Copy(conn, os.Stdin)
		// Propagate stdin EOF as a TCP half-close so the remote peer
		// sees the end of the request stream.
		if halfCloser, ok := conn.(interface{ CloseWrite() error }); ok {
			halfCloser.CloseWrite()
		}
	}()

	if _, err := io.Copy(os.Stdout, conn); err != nil && !netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("relaying proxied connection: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Open a proxied connection through the broker and relay it to stdio.

The handshake identifies the connection with --instance-id, the same
instance number a session grant would carry. On success, stdin is sent
to the destination and the destination's bytes are written to stdout,
netcat style. Stdin EOF half-closes the connection.

Usage:
  labgate-connect [flags] <dst-ip> <dst-port>

Examples:
  # Tunnel a psql session into a lab database
  labgate-connect --instance-id 4242 10.9.0.4 5432

  # Health-check the broker without moving data
  labgate-connect --instance-id 4242 --probe 10.9.0.4 5432

  # Use a non-default broker
  labgate-connect --instance-id 4242 --broker ssh-proxy:8001 10.9.0.4 22

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
