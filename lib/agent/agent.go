// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the SSH gateway agent: the logic behind the
// two entry points the patched sshd calls into. Authenticate resolves
// and caches the session's grant right after a public key is verified;
// ProxyConnect opens proxied TCP connections against that grant for the
// rest of the session.
//
// The agent fails closed. A session whose grant could not be resolved
// keeps its shell but every proxied connection is refused before any
// network I/O happens.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/exerlab/labgate/lib/audit"
	"github.com/exerlab/labgate/lib/config"
	"github.com/exerlab/labgate/lib/control"
	"github.com/exerlab/labgate/lib/grant"
	"github.com/exerlab/labgate/lib/proxy"
)

// ErrNoGrant is returned by ProxyConnect when the session has no cached
// grant: authentication never ran, or the control plane could not
// resolve the key.
var ErrNoGrant = errors.New("no session grant")

// ErrForwardingDenied is returned by ProxyConnect when the session's
// grant forbids TCP forwarding.
var ErrForwardingDenied = errors.New("session grant does not allow tcp forwarding")

// Agent holds the session state and the clients for the two platform
// services. One Agent serves one sshd session process.
type Agent struct {
	logger *slog.Logger
	cache  *grant.Cache
	ctrl   *control.Client
	broker *proxy.Client
	spool  *audit.Spool // nil when auditing is disabled
}

// Options configures New. Zero-value fields fall back to defaults.
type Options struct {
	// Config provides service addresses and timeouts. Nil means
	// config.Default().
	Config *config.Config

	// Logger receives the agent's diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// New creates an Agent from the given options.
func New(options Options) *Agent {
	cfg := options.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var spool *audit.Spool
	if cfg.Audit.SpoolPath != "" {
		spool = audit.NewSpool(cfg.Audit.SpoolPath)
	}
	return &Agent{
		logger: logger,
		cache:  &grant.Cache{},
		ctrl:   control.New(cfg.ControlPlane.BaseURL, cfg.ControlTimeout()),
		broker: &proxy.Client{
			Address: cfg.Broker.Address,
			Timeout: cfg.HandshakeTimeout(),
			Logger:  logger,
		},
		spool: spool,
	}
}

// Authenticate resolves the session grant for a completed public-key
// authentication and caches it for the lifetime of the process.
//
// It never returns an error: the session already exists by the time
// sshd calls this, so there is nothing to abort. A lookup that fails
// for any reason leaves the session without a grant, and every later
// ProxyConnect refuses before touching the network. Detail goes to the
// log and the audit spool only.
//
// Calling Authenticate twice in one process is a host integration bug
// and panics once the second grant is stored.
func (a *Agent) Authenticate(ctx context.Context, username, pubkey string) {
	start := time.Now()
	if username == "" || pubkey == "" {
		a.logger.Error("grant lookup skipped",
			"reason", "empty username or public key")
		a.audit(audit.Event{
			Kind:       audit.KindAuth,
			Outcome:    audit.OutcomeError,
			Username:   username,
			DurationMS: time.Since(start).Milliseconds(),
			Error:      "empty username or public key",
		})
		return
	}

	fingerprint := keyFingerprint(pubkey)
	g, err := a.ctrl.SSHAuthenticated(ctx, username, pubkey)
	if err != nil {
		a.logger.Error("grant lookup failed, session left without grant",
			"username", username,
			"fingerprint", fingerprint,
			"error", err)
		a.audit(audit.Event{
			Kind:        audit.KindAuth,
			Outcome:     audit.OutcomeError,
			Username:    username,
			Fingerprint: fingerprint,
			DurationMS:  time.Since(start).Milliseconds(),
			Error:       err.Error(),
		})
		return
	}

	a.cache.Set(g)
	a.logger.Info("session grant cached",
		"username", username,
		"fingerprint", fingerprint,
		"instance_id", g.InstanceID,
		"is_admin", bool(g.IsAdmin),
		"is_grading_assistant", bool(g.IsGradingAssistant),
		"tcp_forwarding_allowed", bool(g.TCPForwardingAllowed))
	a.audit(audit.Event{
		Kind:        audit.KindAuth,
		Outcome:     audit.OutcomeOK,
		Username:    username,
		Fingerprint: fingerprint,
		InstanceID:  g.InstanceID,
		DurationMS:  time.Since(start).Milliseconds(),
	})
}

// ProxyConnect opens a proxied TCP connection to dstIP:dstPort through
// the connection broker on behalf of the session's grant. The returned
// connection belongs to the caller.
//
// Sessions without a grant, and grants without the forwarding flag,
// are refused before any network I/O.
func (a *Agent) ProxyConnect(ctx context.Context, dstIP, dstPort string) (net.Conn, error) {
	start := time.Now()

	g, ok := a.cache.Get()
	if !ok {
		a.logger.Warn("proxied connection refused",
			"reason", "no session grant",
			"dst_ip", dstIP,
			"dst_port", dstPort)
		a.auditConnect(g, dstIP, dstPort, start, audit.OutcomeDenied, ErrNoGrant)
		return nil, ErrNoGrant
	}
	if !g.TCPForwardingAllowed {
		a.logger.Warn("proxied connection refused",
			"reason", "grant does not allow tcp forwarding",
			"instance_id", g.InstanceID,
			"dst_ip", dstIP,
			"dst_port", dstPort)
		a.auditConnect(g, dstIP, dstPort, start, audit.OutcomeDenied, ErrForwardingDenied)
		return nil, ErrForwardingDenied
	}
	if err := validateDestination(dstIP, dstPort); err != nil {
		a.logger.Warn("proxied connection refused",
			"reason", "invalid destination",
			"instance_id", g.InstanceID,
			"dst_ip", dstIP,
			"dst_port", dstPort,
			"error", err)
		a.auditConnect(g, dstIP, dstPort, start, audit.OutcomeError, err)
		return nil, err
	}

	conn, err := a.broker.Connect(ctx, g.InstanceID, dstIP, dstPort)
	if err != nil {
		outcome := audit.OutcomeError
		if errors.Is(err, proxy.ErrRejected) {
			outcome = audit.OutcomeDenied
		}
		a.logger.Error("proxied connection failed",
			"instance_id", g.InstanceID,
			"dst_ip", dstIP,
			"dst_port", dstPort,
			"error", err)
		a.auditConnect(g, dstIP, dstPort, start, outcome, err)
		return nil, err
	}

	a.logger.Info("proxied connection established",
		"instance_id", g.InstanceID,
		"dst_ip", dstIP,
		"dst_port", dstPort,
		"duration_ms", time.Since(start).Milliseconds())
	a.auditConnect(g, dstIP, dstPort, start, audit.OutcomeOK, nil)
	return conn, nil
}

// validateDestination rejects destinations the broker would choke on
// before a connection is spent on them.
func validateDestination(dstIP, dstPort string) error {
	if dstIP == "" {
		return errors.New("destination address is empty")
	}
	port, err := strconv.ParseUint(dstPort, 10, 16)
	if err != nil {
		return fmt.Errorf("destination port %q is not a port number", dstPort)
	}
	if port == 0 {
		return errors.New("destination port 0 is not connectable")
	}
	return nil
}

// keyFingerprint returns the SHA256 fingerprint of an authorized_keys
// format public key. Diagnostics only: the control plane matches the
// raw key string, and an unparseable key simply has no fingerprint.
func keyFingerprint(pubkey string) string {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkey))
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(key)
}

// audit appends an event to the spool when auditing is enabled. Append
// failures are logged and swallowed: auditing never blocks a session.
func (a *Agent) audit(event audit.Event) {
	if a.spool == nil {
		return
	}
	event.Time = time.Now().UnixMilli()
	if err := a.spool.Append(event); err != nil {
		a.logger.Warn("audit append failed", "error", err)
	}
}

func (a *Agent) auditConnect(g grant.Grant, dstIP, dstPort string, start time.Time, outcome string, err error) {
	event := audit.Event{
		Kind:       audit.KindConnect,
		Outcome:    outcome,
		InstanceID: g.InstanceID,
		DstIP:      dstIP,
		DstPort:    dstPort,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	a.audit(event)
}
