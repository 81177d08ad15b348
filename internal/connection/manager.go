package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns one streaming session: a single WebSocket connection plus the
// immutable subscription list replayed on every reconnect. The session state
// machine (Connecting → Subscribed → Streaming → Reconnecting → …, terminal
// Stopped) is transitioned only by the session goroutine.
type Manager struct {
	cfg    ManagerConfig
	subs   []Subscription
	logger *slog.Logger

	out  chan RawMessage
	dead chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	state State
	err   error

	cmdID int64
}

// NewManager creates a stream session Manager for a fixed subscription set.
func NewManager(cfg ManagerConfig, subs []Subscription, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	// Defensive copy: the list must not change under the session.
	owned := make([]Subscription, len(subs))
	copy(owned, subs)

	return &Manager{
		cfg:    cfg,
		subs:   owned,
		logger: logger,
		out:    make(chan RawMessage, cfg.BufferSize),
		dead:   make(chan struct{}),
		state:  StateConnecting,
	}
}

// Start launches the session goroutine.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.subs) == 0 {
		return fmt.Errorf("no subscriptions")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("stream session started",
		"subscriptions", len(m.subs),
		"url", m.cfg.WSURL,
	)

	return nil
}

// Stop terminates the session. It is the only non-error terminal transition;
// the output channel is closed once the session goroutine exits.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("stream session stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("stream session stop timed out")
		return ctx.Err()
	}
}

// Messages returns the channel of raw feed messages.
func (m *Manager) Messages() <-chan RawMessage {
	return m.out
}

// Done is closed when the session goroutine exits, whether by Stop or by a
// terminal failure (see Err).
func (m *Manager) Done() <-chan struct{} {
	return m.dead
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the terminal session error, if any. Non-nil only after the
// output channel has closed; a clean Stop leaves it nil.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Subscriptions returns a copy of the session's subscription list.
func (m *Manager) Subscriptions() []Subscription {
	out := make([]Subscription, len(m.subs))
	copy(out, m.subs)
	return out
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("session state", "from", prev, "to", s)
	}
}

// run is the session loop. On any transport failure it closes the stale
// connection, waits an exponential backoff, redials, and re-issues every
// subscription from scratch.
func (m *Manager) run() {
	defer m.wg.Done()
	defer close(m.dead)
	defer close(m.out)
	defer m.setState(StateStopped)

	backoff := m.cfg.ReconnectBaseDelay
	failures := 0

	for {
		m.setState(StateConnecting)

		client := NewClient(ClientConfig{
			URL:          m.cfg.WSURL + "/ws",
			PingInterval: m.cfg.PingInterval,
			ReadTimeout:  m.cfg.ReadTimeout,
			WriteTimeout: 5 * time.Second,
			BufferSize:   m.cfg.BufferSize,
		}, m.logger)

		err := client.Connect(m.ctx)
		if err == nil {
			err = m.subscribeAll(client)
			if err == nil {
				m.setState(StateStreaming)
				start := time.Now()

				err = m.stream(client)

				// A sustained healthy period resets the backoff and the
				// failure count.
				if time.Since(start) >= m.cfg.StableResetAfter {
					backoff = m.cfg.ReconnectBaseDelay
					failures = 0
				}
			}
		}

		client.Close()

		if m.ctx.Err() != nil {
			return
		}

		failures++
		if m.cfg.MaxReconnects > 0 && failures > m.cfg.MaxReconnects {
			m.logger.Error("reconnect attempts exhausted, session dead",
				"failures", failures,
				"error", err,
			)
			m.mu.Lock()
			m.err = ErrReconnectExhausted
			m.mu.Unlock()
			return
		}

		m.setState(StateReconnecting)
		m.logger.Warn("session disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > m.cfg.ReconnectMaxDelay {
			backoff = m.cfg.ReconnectMaxDelay
		}
	}
}

// subscribeAll issues one SUBSCRIBE frame covering every stream and waits
// for the server's ack. Data frames that arrive before the ack are forwarded,
// not discarded.
func (m *Manager) subscribeAll(client *Client) error {
	m.setState(StateSubscribed)

	m.cmdID++
	id := m.cmdID

	params := make([]string, len(m.subs))
	for i, s := range m.subs {
		params[i] = s.StreamName()
	}

	data, err := json.Marshal(command{Method: "SUBSCRIBE", Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := client.Send(data); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	timeout := time.NewTimer(m.cfg.SubscribeTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-timeout.C:
			return ErrTimeout
		case err := <-client.Errors():
			m.drainBuffered(client)
			return err
		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}

			resp, isAck := parseAck(msg.Data)
			if !isAck {
				m.forward(msg)
				continue
			}
			if *resp.ID != id {
				continue
			}
			if resp.Error != nil {
				return fmt.Errorf("subscribe rejected: %d %s", resp.Error.Code, resp.Error.Msg)
			}

			m.logger.Debug("subscribed", "streams", len(params), "id", id)
			return nil
		}
	}
}

// stream pumps data frames downstream until the transport fails or the
// session is cancelled. Frames the read loop dequeued before a failure are
// flushed downstream before the error is acted on.
func (m *Manager) stream(client *Client) error {
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case err := <-client.Errors():
			m.drainBuffered(client)
			return err
		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}
			if _, isAck := parseAck(msg.Data); isAck {
				continue
			}
			if !m.forward(msg) {
				return m.ctx.Err()
			}
		}
	}
}

// drainBuffered forwards every frame already taken off the transport. The
// read loop stops after reporting an error, so the buffer only shrinks here.
func (m *Manager) drainBuffered(client *Client) {
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			if _, isAck := parseAck(msg.Data); isAck {
				continue
			}
			if !m.forward(msg) {
				return
			}
		default:
			return
		}
	}
}

// forward delivers a dequeued message downstream. The send blocks: a message
// taken off the transport is never dropped.
func (m *Manager) forward(msg TimestampedMessage) bool {
	select {
	case m.out <- RawMessage{Data: msg.Data, ReceivedAt: msg.ReceivedAt}:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// parseAck reports whether data is a command ack ("id" present).
func parseAck(data []byte) (ack, bool) {
	var resp ack
	if err := json.Unmarshal(data, &resp); err != nil {
		return ack{}, false
	}
	if resp.ID == nil {
		return ack{}, false
	}
	return resp, true
}
