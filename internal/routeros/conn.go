package routeros

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"isp-saas.com/routersync/pkg/logger"
)

// DialConfig carries everything needed to open one API session. Built from
// the active connection profile row at each use site; the manager itself
// holds no global configuration.
type DialConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	// Timeout bounds the dial and the login exchange. Zero means 10s.
	Timeout time.Duration
}

func (c DialConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Manager owns the single shared API session. The device is not assumed to
// handle pipelined requests, so every exchange holds the session mutex.
type Manager struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
	wr   *bufio.Writer

	log          *logger.Logger
	probeTimeout time.Duration

	// Best-effort bookkeeping hooks; failures in these never propagate.
	onConnect    func()
	onDisconnect func()
}

func NewManager(log *logger.Logger, probeTimeout time.Duration) *Manager {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Manager{log: log, probeTimeout: probeTimeout}
}

// SetHooks registers callbacks fired after a successful connect and after a
// disconnect, used to touch the profile's last-connected timestamps.
func (m *Manager) SetHooks(onConnect, onDisconnect func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = onConnect
	m.onDisconnect = onDisconnect
}

// Connect dials the device and logs in. Any previously open session is
// closed first. Dial failures map to ErrConnection, credential rejection to
// ErrAuth, an undecodable handshake to ErrProtocol.
func (m *Manager) Connect(cfg DialConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if cfg.UseTLS {
		conn, err = tls.DialWithDialer(&dialer, "tcp", cfg.addr(), &tls.Config{
			InsecureSkipVerify: true,
		})
	} else {
		conn, err = dialer.Dial("tcp", cfg.addr())
	}
	if err != nil {
		return fmt.Errorf("dial %s: %v: %w", cfg.addr(), err, ErrConnection)
	}

	m.conn = conn
	m.rd = bufio.NewReader(conn)
	m.wr = bufio.NewWriter(conn)

	rep, err := m.exchangeLocked([]string{
		"/login",
		"=name=" + cfg.Username,
		"=password=" + cfg.Password,
	}, timeout)
	if err != nil {
		m.teardownLocked()
		return fmt.Errorf("login: %w", err)
	}
	if rep.trap != nil {
		m.teardownLocked()
		return fmt.Errorf("login: %s: %w", rep.trap.Message, ErrAuth)
	}

	m.log.Info("Router session established", "addr", cfg.addr(), "tls", cfg.UseTLS)
	if m.onConnect != nil {
		m.onConnect()
	}
	return nil
}

// Disconnect closes the session. Safe to call repeatedly.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	m.teardownLocked()
	m.log.Info("Router session closed")
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
	return nil
}

// IsHealthy reports whether an open session answers a lightweight probe
// within the probe timeout. It never blocks longer than that bound.
func (m *Manager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return false
	}
	rep, err := m.runLocked([]string{"/system/identity/print"}, m.probeTimeout)
	return err == nil && rep.trap == nil
}

// run performs one request/reply exchange under the session mutex. Transport
// failures and timeouts tear the session down so the next call reconnects.
func (m *Manager) run(words []string, timeout time.Duration) (*reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runLocked(words, timeout)
}

func (m *Manager) runLocked(words []string, timeout time.Duration) (*reply, error) {
	if m.conn == nil {
		return nil, fmt.Errorf("no open session: %w", ErrConnection)
	}
	return m.exchangeLocked(words, timeout)
}

func (m *Manager) exchangeLocked(words []string, timeout time.Duration) (*reply, error) {
	m.conn.SetDeadline(time.Now().Add(timeout))
	defer m.conn.SetDeadline(time.Time{})

	if err := writeSentence(m.wr, words); err != nil {
		m.teardownLocked()
		return nil, classify(err)
	}
	rep, err := readReply(m.rd)
	if err != nil {
		m.teardownLocked()
		return nil, classify(err)
	}
	return rep, nil
}

func (m *Manager) teardownLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.rd = nil
		m.wr = nil
	}
}

// Probe opens a throwaway session against cfg and closes it again. Used by
// the operator-facing connection test; errors carry the full taxonomy.
func Probe(cfg DialConfig, log *logger.Logger) error {
	m := NewManager(log, 0)
	if err := m.Connect(cfg); err != nil {
		return err
	}
	return m.Disconnect()
}
