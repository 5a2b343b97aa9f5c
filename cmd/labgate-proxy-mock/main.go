// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/exerlab/labgate/lib/cli"
	"github.com/exerlab/labgate/lib/netutil"
	"github.com/exerlab/labgate/lib/process"
	"github.com/exerlab/labgate/lib/proxy"
	"github.com/exerlab/labgate/lib/version"
)

// Server modes. Relay mirrors the production broker; the rest force
// specific client-side failure paths.
const (
	modeRelay   = "relay"
	modeEcho    = "echo"
	modeReject  = "reject"
	modeSilent  = "silent"
	modeGarbage = "garbage"
)

// requestReadTimeout bounds how long a client may take to deliver its
// request frame. Matches the production server's per-handshake budget.
const requestReadTimeout = 30 * time.Second

// garbageResponseType is deliberately outside the known response range.
const garbageResponseType byte = 77

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var listenAddr string
	var mode string

	flagSet := pflag.NewFlagSet("labgate-proxy-mock", pflag.ContinueOnError)
	flagSet.StringVar(&listenAddr, "listen", "127.0.0.1:8001", "address to listen on")
	flagSet.StringVar(&mode, "mode", modeRelay, "relay, echo, reject, silent, or garbage")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("labgate-proxy-mock")
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

	switch mode {
	case modeRelay, modeEcho, modeReject, modeSilent, modeGarbage:
	default:
		return fmt.Errorf("unknown mode %q (want relay, echo, reject, silent, or garbage)", mode)
	}

	logger := cli.NewCommandLogger(slog.LevelDebug)

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	defer listener.Close()
	logger.Info("mock broker listening", "address", listener.Addr().String(), "mode", mode)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go handleConn(conn, mode, logger)
	}
}

// handleConn serves one broker handshake. The request frame is validated
// the way the production server validates it; what happens afterwards
// depends on the mode.
func handleConn(conn net.Conn, mode string, logger *slog.Logger) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	header, err := proxy.ReadHeader(conn)
	if err != nil {
		logger.Warn("dropping connection", "error", err)
		return
	}
	if header.Type != proxy.MessageTypeProxyRequest {
		logger.Warn("dropping connection", "error",
			fmt.Sprintf("unexpected request type %d", header.Type))
		proxy.WriteResponse(conn, proxy.MessageTypeFailed)
		return
	}
	body, err := proxy.ReadBody(conn, header.BodyLength)
	if err != nil {
		logger.Warn("dropping connection", "error", err)
		return
	}
	request, err := proxy.DecodeRequest(body)
	if err != nil {
		logger.Warn("refusing malformed request", "error", err)
		proxy.WriteResponse(conn, proxy.MessageTypeFailed)
		return
	}

	logger.Info("proxy request",
		"instance_id", request.InstanceID,
		"dst_ip", request.DstIP,
		"dst_port", request.DstPort,
		"mode", mode)

	// The request frame is in; the rest of the connection has no
	// protocol-imposed deadline.
	conn.SetReadDeadline(time.Time{})

	switch mode {
	case modeReject:
		proxy.WriteResponse(conn, proxy.MessageTypeFailed)

	case modeSilent:
		// Hold the connection open without answering until the client
		// gives up and closes its end.
		io.Copy(io.Discard, conn)

	case modeGarbage:
		proxy.WriteResponse(conn, garbageResponseType)

	case modeEcho:
		if err := proxy.WriteResponse(conn, proxy.MessageTypeSuccess); err != nil {
			logger.Warn("write response", "error", err)
			return
		}
		io.Copy(conn, conn)

	case modeRelay:
		upstream, err := net.DialTimeout("tcp",
			net.JoinHostPort(request.DstIP, request.DstPort), requestReadTimeout)
		if err != nil {
			logger.Warn("dial destination failed",
				"dst_ip", request.DstIP,
				"dst_port", request.DstPort,
				"error", err)
			proxy.WriteResponse(conn, proxy.MessageTypeFailed)
			return
		}
		defer upstream.Close()

		if err := proxy.WriteResponse(conn, proxy.MessageTypeSuccess); err != nil {
			logger.Warn("write response", "error", err)
			return
		}
		if err := netutil.Bridge(conn, upstream); err != nil {
			logger.Warn("relay ended with error", "error", err)
		}
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Mock connection broker for development and testing.

Accepts broker handshakes and validates the request frame like the real
server. The --mode flag picks what happens next: relay to the requested
destination (default), echo the stream back, reject, stay silent, or
answer with an unknown response type.

Usage:
  labgate-proxy-mock [flags]

Examples:
  # Relay to real destinations, like the production broker
  labgate-proxy-mock --listen 127.0.0.1:8001

  # Force the rejection path in a client under test
  labgate-proxy-mock --listen 127.0.0.1:8001 --mode reject

  # Exercise client handshake timeouts
  labgate-proxy-mock --listen 127.0.0.1:8001 --mode silent

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
