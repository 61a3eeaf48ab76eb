// Package venueio holds the WebSocket plumbing shared by both venues'
// streaming monitors: a reconnecting connection manager with exponential
// backoff, subscription replay, and ping/pong liveness. Shared so the
// CLOB-style venue and the on-chain venue's monitors use one
// implementation instead of forking it per venue. Backoff runs 1s
// doubling to a 60s cap with unbounded retries; a live arbitrage
// engine never gives up on a feed.
package venueio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"deltaneutral/pkg/utils"
)

// ReconnectConfig tunes a ConnManager's retry and liveness behavior.
type ReconnectConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// DefaultReconnectConfig: 1s doubling to a 60s cap.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:   time.Second,
		MaxDelay:       60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   15 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// State is the connection lifecycle enum.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnManager owns one WebSocket connection to a venue feed, reconnecting
// with exponential backoff on any read/dial error and replaying
// subscriptions once reconnected. It never gives up: the shutdown latch
// (Close) is the only way out of the retry cycle.
type ConnManager struct {
	venue  string
	url    string
	config ReconnectConfig
	log    *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32
	retryCount int32

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex

	reconnectCounter func() // invoked once per reconnect attempt, for telemetry
}

// New creates a ConnManager for venue's feed at url.
func New(venue, url string, config ReconnectConfig, log *utils.Logger) *ConnManager {
	return &ConnManager{
		venue:     venue,
		url:       url,
		config:    config,
		log:       log,
		closeChan: make(chan struct{}),
	}
}

func (m *ConnManager) SetOnMessage(h func([]byte))    { m.callbackMu.Lock(); m.onMessage = h; m.callbackMu.Unlock() }
func (m *ConnManager) SetOnConnect(h func())          { m.callbackMu.Lock(); m.onConnect = h; m.callbackMu.Unlock() }
func (m *ConnManager) SetOnDisconnect(h func(error))  { m.callbackMu.Lock(); m.onDisconnect = h; m.callbackMu.Unlock() }
func (m *ConnManager) SetReconnectCounter(f func())   { m.reconnectCounter = f }

// AddSubscription records sub so it is replayed after every reconnect.
func (m *ConnManager) AddSubscription(sub interface{}) {
	m.subscriptionsMu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.subscriptionsMu.Unlock()
}

func (m *ConnManager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

func (m *ConnManager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect dials the feed once, then starts the read and ping pumps.
// Reconnection after a later drop is automatic; callers invoke Connect
// exactly once at startup.
func (m *ConnManager) Connect(ctx context.Context) error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("venueio: manager for %s is closed", m.venue)
	default:
	}

	atomic.StoreInt32(&m.state, int32(StateConnecting))
	if err := m.dial(ctx); err != nil {
		atomic.StoreInt32(&m.state, int32(StateDisconnected))
		return err
	}

	atomic.StoreInt32(&m.state, int32(StateConnected))
	atomic.StoreInt32(&m.retryCount, 0)
	m.fireConnect()

	go m.readPump()
	go m.pingPump()
	return nil
}

func (m *ConnManager) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.config.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		return fmt.Errorf("venueio: dial %s: %w", m.venue, err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if err := m.resubscribe(); err != nil {
		if m.log != nil {
			m.log.Sugar().Warnw("resubscribe after dial failed", "venue", m.venue, "error", err)
		}
	}
	return nil
}

func (m *ConnManager) resubscribe() error {
	m.subscriptionsMu.RLock()
	subs := make([]interface{}, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.subscriptionsMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("venueio: no connection")
	}
	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("venueio: resubscribe: %w", err)
		}
	}
	return nil
}

func (m *ConnManager) readPump() {
	defer m.handleDisconnect(nil)
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (m *ConnManager) pingPump() {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil || m.State() != StateConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(m.config.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *ConnManager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.State()
	if state == StateReconnecting || state == StateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(StateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	m.callbackMu.RLock()
	onDisconnect := m.onDisconnect
	m.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}
	if m.log != nil {
		m.log.Sugar().Warnw("websocket disconnected", "venue", m.venue, "error", err)
	}

	go m.reconnectLoop()
}

// reconnectLoop retries forever with exponential backoff capped at
// config.MaxDelay; retries are unbounded, only the shutdown latch
// stops the loop".
func (m *ConnManager) reconnectLoop() {
	delay := m.config.InitialDelay
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		atomic.AddInt32(&m.retryCount, 1)
		if m.reconnectCounter != nil {
			m.reconnectCounter()
		}

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(context.Background()); err != nil {
			if m.log != nil {
				m.log.Sugar().Warnw("reconnect failed", "venue", m.venue, "delay", delay, "error", err)
			}
			delay *= 2
			if delay > m.config.MaxDelay {
				delay = m.config.MaxDelay
			}
			continue
		}

		attempts := m.RetryCount()
		atomic.StoreInt32(&m.state, int32(StateConnected))
		atomic.StoreInt32(&m.retryCount, 0)
		m.fireConnect()
		if m.log != nil {
			m.log.Sugar().Infow("ws_reconnect", "venue", m.venue, "attempts", attempts)
		}
		go m.readPump()
		go m.pingPump()
		return
	}
}

func (m *ConnManager) fireConnect() {
	m.callbackMu.RLock()
	onConnect := m.onConnect
	m.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}
}

// Send writes msg as JSON on the current connection. Returns an error if
// not currently connected; callers should not buffer writes themselves,
// one writer at a time.
func (m *ConnManager) Send(msg interface{}) error {
	if m.State() != StateConnected {
		return fmt.Errorf("venueio: %s not connected (state=%s)", m.venue, m.State())
	}
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("venueio: %s no connection", m.venue)
	}
	return conn.WriteJSON(msg)
}

// Close tears down the connection and stops all retry activity.
func (m *ConnManager) Close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(StateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

func (m *ConnManager) RetryCount() int {
	return int(atomic.LoadInt32(&m.retryCount))
}
