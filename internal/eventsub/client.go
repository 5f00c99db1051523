// Package eventsub maintains a long-lived Twitch EventSub WebSocket session:
// welcome handshake, keepalive watchdog, replay defense, and seamless
// migration to a new endpoint when the server asks for one.
package eventsub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/user/twitch-sentry/internal/clock"
)

const (
	// DefaultURL is the production EventSub WebSocket endpoint.
	DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

	defaultKeepalive = 600 * time.Second
	minKeepalive     = 10 * time.Second
	maxKeepalive     = 600 * time.Second

	// keepaliveGrace is added on top of the advertised keepalive interval
	// before the watchdog declares the connection dead.
	keepaliveGrace = 3 * time.Second

	// maxMessageAge is the replay-defense horizon: anything older fails
	// the session.
	maxMessageAge = 10 * time.Minute

	// dedupWindow is how long a message ID suppresses redelivery.
	dedupWindow = 10 * time.Minute
)

// DisconnectReason says why the session ended.
type DisconnectReason int

const (
	// KeepaliveTimeout means no traffic arrived within keepalive + grace.
	KeepaliveTimeout DisconnectReason = iota
	// RemoteDisconnected means the peer closed the connection.
	RemoteDisconnected
)

func (r DisconnectReason) String() string {
	switch r {
	case KeepaliveTimeout:
		return "keepalive timeout"
	case RemoteDisconnected:
		return "remote disconnected"
	}
	return "unknown"
}

// ProtocolError reports a non-recoverable violation of the EventSub
// protocol: a stale message, a duplicate welcome, traffic before the
// welcome, a malformed reconnect, or a non-text frame.
type ProtocolError struct {
	reason string
}

func (e *ProtocolError) Error() string {
	return "eventsub: protocol violation: " + e.reason
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{reason: fmt.Sprintf(format, args...)}
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the WebSocket endpoint.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithKeepaliveTimeout requests a specific keepalive interval in seconds.
// The value must lie in [10, 600]; it is appended to the connection URL and
// sizes the watchdog until the welcome reports the server's value.
func WithKeepaliveTimeout(seconds int) Option {
	return func(c *Client) { c.keepaliveOverride = seconds }
}

// WithDialer overrides how sockets are opened.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithParser overrides the message parser.
func WithParser(p Parser) Option {
	return func(c *Client) { c.parser = p }
}

// WithClock overrides the liveness clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clk = clk }
}

// WithConnectedHandler sets the handler invoked once per initial welcome.
// Changeovers do not re-invoke it; the session is logically continuous.
func WithConnectedHandler(fn func(session Session)) Option {
	return func(c *Client) { c.onConnected = fn }
}

// WithNotificationHandler sets the handler for notification messages.
func WithNotificationHandler(fn func(msg Message)) Option {
	return func(c *Client) { c.onNotification = fn }
}

// WithRevocationHandler sets the handler for revocation messages.
func WithRevocationHandler(fn func(msg Message)) Option {
	return func(c *Client) { c.onRevocation = fn }
}

// WithConnectionLostHandler sets the handler invoked when the session ends
// on a transport loss. It is the last event a session emits.
func WithConnectionLostHandler(fn func(reason DisconnectReason)) Option {
	return func(c *Client) { c.onConnectionLost = fn }
}

// WithUnknownMessageTypeHandler sets the diagnostic handler for message
// types the parser does not recognize.
func WithUnknownMessageTypeHandler(fn func(name string)) Option {
	return func(c *Client) { c.onUnknownMessageType = fn }
}

// WithUnknownSubscriptionTypeHandler sets the diagnostic handler for
// unregistered notification subscription types.
func WithUnknownSubscriptionTypeHandler(fn func(name string)) Option {
	return func(c *Client) { c.onUnknownSubscriptionType = fn }
}

// WithParseFailureHandler sets the diagnostic handler for messages that
// failed to decode.
func WithParseFailureHandler(fn func(reason string)) Option {
	return func(c *Client) { c.onParseFailure = fn }
}

// Client runs one EventSub session at a time. All handlers are invoked
// synchronously from the session loop; a panicking handler propagates.
// Client is not safe for concurrent Connect calls.
type Client struct {
	url               string
	keepaliveOverride int
	dialer            Dialer
	parser            Parser
	clk               clock.Clock

	onConnected               func(Session)
	onNotification            func(Message)
	onRevocation              func(Message)
	onConnectionLost          func(DisconnectReason)
	onUnknownMessageType      func(string)
	onUnknownSubscriptionType func(string)
	onParseFailure            func(string)

	// Session state, owned exclusively by the run loop.
	conn        Socket
	keepalive   time.Duration
	lastMessage time.Time
	welcomed    bool
	seen        *TTLSet
}

// NewClient creates a client. Without options it targets the production
// endpoint with the gorilla-backed dialer, the default parser and the
// system clock.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url:    DefaultURL,
		dialer: NewDialer(),
		parser: NewMessageParser(),
		clk:    clock.System(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the endpoint and runs the session loop until the session
// ends. It returns nil after ConnectionLost fired, the context error on
// cancellation, and a fault (typically a *ProtocolError) otherwise. The
// client never reconnects by itself; retry policy belongs to the caller.
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.connectURL()
	if err != nil {
		return err
	}

	sock, err := c.dialer.Dial(ctx, u)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	c.conn = sock
	c.keepalive = c.initialKeepalive()
	c.lastMessage = c.clk.Now()
	c.welcomed = false
	c.seen = NewTTLSet(dedupWindow, c.clk)

	return c.run(ctx)
}

func (c *Client) connectURL() (string, error) {
	if c.keepaliveOverride == 0 {
		return c.url, nil
	}
	if c.keepaliveOverride < 10 || c.keepaliveOverride > 600 {
		return "", fmt.Errorf("keepalive timeout %d outside [10, 600]", c.keepaliveOverride)
	}
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint URL: %w", err)
	}
	q := u.Query()
	q.Set("keepalive_timeout_seconds", strconv.Itoa(c.keepaliveOverride))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) initialKeepalive() time.Duration {
	if c.keepaliveOverride != 0 {
		return time.Duration(c.keepaliveOverride) * time.Second
	}
	return defaultKeepalive
}

// readOutcome is one reader result: a parsed message, a peer close, or a
// transport error.
type readOutcome struct {
	result ParseResult
	closed bool
	err    error
}

type changeoverOutcome struct {
	changeover *Changeover
	err        error
}

// run is the session loop. It multiplexes the current socket's reader, the
// keepalive watchdog and a pending changeover, and owns all session state.
func (c *Client) run(ctx context.Context) error {
	reads, stopReads := c.readInto(ctx, c.conn)
	defer func() { stopReads() }()

	var (
		pending       chan changeoverOutcome
		cancelPending context.CancelFunc
	)
	defer func() {
		if cancelPending != nil {
			cancelPending()
		}
		if pending != nil {
			select {
			case out := <-pending:
				if out.changeover != nil {
					_ = out.changeover.Socket.Close()
				}
			default:
			}
		}
	}()
	// Whatever exit path is taken, the current socket must not leak.
	defer func() {
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
	}()

	timer := c.clk.NewTimer(c.watchdogDelay())
	defer timer.Stop()

	for {
		// Re-arm the watchdog every iteration: lastMessage and keepalive
		// may both have moved, in either direction.
		if !timer.Stop() {
			select {
			case <-timer.C():
			default:
			}
		}
		timer.Reset(c.watchdogDelay())

		select {
		case <-ctx.Done():
			// Caller-initiated teardown: no ConnectionLost.
			return ctx.Err()

		case out := <-pending:
			cancelPending()
			cancelPending = nil
			pending = nil
			if out.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return out.err
			}
			old := c.conn
			stopReads()
			c.conn = out.changeover.Socket
			c.applyChangeoverWelcome(out.changeover.Welcome)
			reads, stopReads = c.readInto(ctx, c.conn)
			_ = old.WriteClose(closeNormalClosure)
			_ = old.Close()

		case out := <-reads:
			switch {
			case out.err != nil:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var pe *ProtocolError
				if errors.As(out.err, &pe) {
					return out.err
				}
				c.reset()
				c.emitConnectionLost(RemoteDisconnected)
				return nil

			case out.closed:
				c.reset()
				c.emitConnectionLost(RemoteDisconnected)
				return nil

			default:
				reconnectURL, err := c.handleParsed(out.result)
				if err != nil {
					return err
				}
				if reconnectURL != "" {
					// A newer reconnect supersedes any changeover still
					// in flight.
					if cancelPending != nil {
						cancelPending()
						select {
						case stale := <-pending:
							if stale.changeover != nil {
								_ = stale.changeover.Socket.Close()
							}
						default:
						}
					}
					coCtx, cancel := context.WithCancel(ctx)
					cancelPending = cancel
					ch := make(chan changeoverOutcome, 1)
					pending = ch
					go func() {
						co, err := performChangeover(coCtx, c.dialer, c.parser, reconnectURL)
						if err == nil && coCtx.Err() != nil {
							_ = co.Socket.Close()
							co, err = nil, coCtx.Err()
						}
						ch <- changeoverOutcome{changeover: co, err: err}
					}()
				}
			}

		case <-timer.C():
			c.reset()
			c.emitConnectionLost(KeepaliveTimeout)
			return nil
		}
	}
}

// readInto feeds reassembled and parsed messages from sock into a channel
// until the socket fails, the peer closes, or stop is called. After stop is
// called no further outcome is delivered, so messages still in flight on a
// replaced socket are never consumed.
func (c *Client) readInto(ctx context.Context, sock Socket) (<-chan readOutcome, func()) {
	ch := make(chan readOutcome)
	quit := make(chan struct{})

	go func() {
		for {
			text, ok, err := readTextMessage(ctx, sock)
			var out readOutcome
			switch {
			case err != nil:
				out = readOutcome{err: err}
			case !ok:
				out = readOutcome{closed: true}
			default:
				out = readOutcome{result: c.parser.Parse(text)}
			}

			select {
			case ch <- out:
			case <-quit:
				return
			}
			if out.err != nil || out.closed {
				return
			}
		}
	}()

	var once sync.Once
	return ch, func() { once.Do(func() { close(quit) }) }
}

// handleParsed applies one ParseResult. It returns a reconnect URL when a
// changeover must be armed, and an error when the session must fail.
func (c *Client) handleParsed(result ParseResult) (reconnectURL string, err error) {
	switch r := result.(type) {
	case InvalidMessage:
		c.emitParseFailure(r.Reason)
		return "", nil
	case UnknownMessageType:
		c.emitUnknownMessageType(r.Name)
		return "", nil
	case UnknownSubscriptionType:
		c.emitUnknownSubscriptionType(r.Name)
		return "", nil
	case ParsedMessage:
		return c.handleMessage(r.Message)
	}
	return "", fmt.Errorf("unhandled parse result %T", result)
}

func (c *Client) handleMessage(msg Message) (reconnectURL string, err error) {
	meta := msg.Metadata

	if meta.MessageTimestamp.Before(c.clk.Now().Add(-maxMessageAge)) {
		return "", protocolErrorf("message %s timestamped %s exceeds the %v age limit",
			meta.MessageID, meta.MessageTimestamp.Format(time.RFC3339), maxMessageAge)
	}
	if !c.seen.Add(meta.MessageID) {
		// Redelivery inside the dedup window: drop without touching the
		// watchdog.
		return "", nil
	}
	c.lastMessage = meta.MessageTimestamp

	switch meta.MessageType {
	case MessageTypeWelcome:
		if c.welcomed {
			return "", protocolErrorf("received a second welcome in one session")
		}
		c.welcomed = true
		c.keepalive = clampKeepalive(time.Duration(msg.Session.KeepaliveTimeoutSeconds) * time.Second)
		c.emitConnected(*msg.Session)
		return "", nil
	}

	if !c.welcomed {
		return "", protocolErrorf("received %s before the welcome", meta.MessageType)
	}

	switch meta.MessageType {
	case MessageTypeNotification:
		c.emitNotification(msg)
	case MessageTypeRevocation:
		c.emitRevocation(msg)
	case MessageTypeReconnect:
		if msg.Session == nil || msg.Session.ReconnectURL == "" {
			return "", protocolErrorf("session_reconnect without a reconnect_url")
		}
		return msg.Session.ReconnectURL, nil
	case MessageTypeKeepalive:
		// Nothing beyond the watchdog update above.
	default:
		return "", protocolErrorf("no handling for message type %s", meta.MessageType)
	}
	return "", nil
}

// applyChangeoverWelcome installs the new socket's session parameters. The
// dedup set survives: it is the same logical session.
func (c *Client) applyChangeoverWelcome(welcome Message) {
	c.keepalive = clampKeepalive(time.Duration(welcome.Session.KeepaliveTimeoutSeconds) * time.Second)
	c.lastMessage = welcome.Metadata.MessageTimestamp
}

func (c *Client) watchdogDelay() time.Duration {
	deadline := c.lastMessage.Add(c.keepalive + keepaliveGrace)
	return deadline.Sub(c.clk.Now())
}

// reset aborts and disposes the current socket and discards all per-session
// state, so a later Connect starts from scratch.
func (c *Client) reset() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.seen = nil
	c.welcomed = false
}

func clampKeepalive(d time.Duration) time.Duration {
	if d < minKeepalive {
		return minKeepalive
	}
	if d > maxKeepalive {
		return maxKeepalive
	}
	return d
}

func (c *Client) emitConnected(session Session) {
	if c.onConnected != nil {
		c.onConnected(session)
	}
}

func (c *Client) emitNotification(msg Message) {
	if c.onNotification != nil {
		c.onNotification(msg)
	}
}

func (c *Client) emitRevocation(msg Message) {
	if c.onRevocation != nil {
		c.onRevocation(msg)
	}
}

func (c *Client) emitConnectionLost(reason DisconnectReason) {
	if c.onConnectionLost != nil {
		c.onConnectionLost(reason)
	}
}

func (c *Client) emitUnknownMessageType(name string) {
	if c.onUnknownMessageType != nil {
		c.onUnknownMessageType(name)
	}
}

func (c *Client) emitUnknownSubscriptionType(name string) {
	if c.onUnknownSubscriptionType != nil {
		c.onUnknownSubscriptionType(name)
	}
}

func (c *Client) emitParseFailure(reason string) {
	if c.onParseFailure != nil {
		c.onParseFailure(reason)
	}
}
