package ami

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for the manager connection.
const (
	// defaultConnectTimeout bounds dial plus login.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the idle period after which a keepalive Ping
	// is sent. A read timeout on its own is not an error.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// defaultCommandTimeout is used for actions sent without a timeout.
	defaultCommandTimeout = 10 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 3 * time.Second

	// defaultMaxReconnectInterval caps the exponential backoff.
	defaultMaxReconnectInterval = 2 * time.Minute

	// backoffFactor multiplies the delay after each failed attempt.
	backoffFactor = 1.5

	// bannerPrefix starts the greeting line of an Asterisk manager port.
	bannerPrefix = "Asterisk Call Manager"
)

// Config holds manager connection settings.
type Config struct {
	// Address is host:port of the manager interface, e.g. "pbx.local:5038".
	Address string

	Username string
	Secret   string

	// Events is the event mask requested at login. Default: "on".
	Events string

	ConnectTimeout       time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	CommandTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.Events == "" {
		cfg.Events = "on"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = defaultMaxReconnectInterval
	}
}

// Stats holds operational counters.
type Stats struct {
	FramesRx        uint64
	FramesTx        uint64
	EventsRx        uint64
	Malformed       uint64
	Unmatched       uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	Pending         int
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
	Banner          string
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Request describes an outbound action.
type Request struct {
	// Frame is the action frame without ActionID; Send assigns one.
	Frame Frame

	// Prefix names the action in its ActionID. Defaults to the Action field.
	Prefix string

	// Completion decides which frame ends the response. Default SingleResponse.
	Completion Completion

	// Timeout overrides Config.CommandTimeout.
	Timeout time.Duration

	// Claims names events that belong to this action although they carry
	// no ActionID, such as the Parkinglot entries of Parkinglots.
	Claims []string
}

// Sender is the outbound surface used by the proxy engine.
type Sender interface {
	Send(ctx context.Context, req Request, cb Callback) (string, error)
	IsConnected() bool
}

// Ensure Client implements Sender.
var _ Sender = (*Client)(nil)

// Client owns the single manager connection.
//
// Inbound frames are read by one goroutine and handled in arrival order:
// frames carrying a pending ActionID go to the correlator, events go to
// the OnEvent handler. Handlers therefore run on the read loop and must
// not block.
//
// Auto-Reconnection:
//   - A read error or a Shutdown event fails every pending action with
//     ErrConnectionLost and starts reconnection.
//   - Backoff starts at ReconnectInterval and grows by 1.5 up to
//     MaxReconnectInterval. Every attempt replays Login.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg        Config
	correlator *Correlator

	conn    net.Conn
	reader  *Reader
	connMu  sync.RWMutex
	writeMu sync.Mutex

	connected      bool
	reconnecting   atomic.Bool
	reconnectCount atomic.Int32
	banner         atomic.Value

	onEvent        func(Frame)
	onConnected    func()
	onDisconnected func(error)
	callbackMu     sync.RWMutex

	done    *closeOnce
	wg      sync.WaitGroup
	started atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex

	framesRx        atomic.Uint64
	framesTx        atomic.Uint64
	eventsRx        atomic.Uint64
	malformed       atomic.Uint64
	unmatched       atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
	keepaliveBusy   atomic.Bool
}

// NewClient returns an unconnected client. Register handlers before
// calling Connect or Start so no frame is missed.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:        cfg,
		correlator: NewCorrelator(),
		done:       newCloseOnce(),
	}
	c.banner.Store("")
	return c
}

// Correlator exposes the action correlator for diagnostics.
func (c *Client) Correlator() *Correlator { return c.correlator }

// Connect dials the manager port, logs in and starts the read loop.
// It fails if the first attempt fails; use Start to keep retrying.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: already started", ErrConnectionFailed)
	}
	if err := c.establish(ctx); err != nil {
		c.started.Store(false)
		return err
	}
	if !c.finalizeConnection(false) {
		c.closeOldConnection()
		return ErrClosed
	}

	c.wg.Add(1)
	go c.receiveLoop()
	return nil
}

// Start connects like Connect but, when the first attempt fails, keeps
// retrying in the background with the reconnect backoff.
func (c *Client) Start(ctx context.Context) error {
	err := c.Connect(ctx)
	if err == nil || errors.Is(err, ErrClosed) {
		return err
	}
	c.logWarn("initial connection failed, retrying in background", "error", err)
	c.started.Store(true)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if !c.reconnect() {
			return
		}
		c.wg.Add(1)
		go c.receiveLoop()
	}()
	return nil
}

// establish dials, reads the banner and performs Login on the calling
// goroutine. Frames read while waiting for the login response are routed
// normally.
func (c *Client) establish(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, c.cfg.Address, err)
	}

	reader := NewReader(conn)
	c.connMu.Lock()
	// Close may have run while dialing; it only closes the installed conn.
	if c.isClosed() {
		c.connMu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.reader = reader
	c.connMu.Unlock()

	if err := c.login(ctx, conn, reader); err != nil {
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.reader = nil
		c.connMu.Unlock()
		return err
	}
	return nil
}

func (c *Client) login(ctx context.Context, conn net.Conn, reader *Reader) error {
	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrConnectionFailed, err)
	}

	banner, err := reader.ReadLine()
	if err != nil {
		return fmt.Errorf("%w: read banner: %w", ErrConnectionFailed, err)
	}
	if !strings.HasPrefix(banner, bannerPrefix) {
		return fmt.Errorf("%w: unexpected banner %q", ErrConnectionFailed, banner)
	}
	c.banner.Store(banner)

	results := make(chan Result, 1)
	id := c.correlator.Issue("login", SingleResponse, c.cfg.ConnectTimeout, func(r Result) {
		results <- r
	})
	frame := NewFrame(
		FieldAction, "Login",
		FieldActionID, id,
		"Username", c.cfg.Username,
		"Secret", c.cfg.Secret,
		"Events", c.cfg.Events,
	)
	if err := c.writeFrame(conn, frame); err != nil {
		c.correlator.Cancel(id)
		return fmt.Errorf("%w: write login: %w", ErrConnectionFailed, err)
	}

	for {
		select {
		case r := <-results:
			if r.Err != nil {
				if IsProtocolError(r.Err) {
					return fmt.Errorf("%w: %w", ErrLoginFailed, r.Err)
				}
				return fmt.Errorf("%w: %w", ErrConnectionFailed, r.Err)
			}
			return nil
		case <-ctx.Done():
			c.correlator.Cancel(id)
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		default:
		}

		f, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				c.malformed.Add(1)
				continue
			}
			c.correlator.Cancel(id)
			select {
			case r := <-results:
				if r.Err != nil {
					return fmt.Errorf("%w: %w", ErrLoginFailed, r.Err)
				}
				return nil
			default:
			}
			return fmt.Errorf("%w: awaiting login response: %w", ErrConnectionFailed, err)
		}
		c.route(f)
	}
}

func (c *Client) finalizeConnection(reconnected bool) bool {
	c.connMu.Lock()
	if c.isClosed() {
		c.connMu.Unlock()
		return false
	}
	c.connected = true
	c.connMu.Unlock()

	c.reconnectCount.Store(0)
	c.lastActivity.Store(time.Now().Unix())
	if reconnected {
		c.reconnectsTotal.Add(1)
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
	} else {
		c.logInfo("connected to manager interface", "address", c.cfg.Address, "banner", c.Banner())
	}

	c.callbackMu.RLock()
	cb := c.onConnected
	c.callbackMu.RUnlock()
	if cb != nil {
		c.safeCall("on connected", cb)
	}
	return true
}

// receiveLoop reads frames until Close. It is the only goroutine that
// reads from the connection.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		if c.isClosed() {
			return
		}

		c.connMu.RLock()
		conn, reader := c.conn, c.reader
		c.connMu.RUnlock()
		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			c.logError("set read deadline failed", "error", err)
		}

		f, err := reader.ReadFrame()
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return
				}
				if !c.reconnect() {
					return
				}
			}
			continue
		}
		c.route(f)
	}
}

// handleReadError returns true when the connection is unusable.
func (c *Client) handleReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	if errors.Is(err, ErrMalformedFrame) {
		c.malformed.Add(1)
		c.logWarn("dropping malformed frame", "error", err)
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.keepalive()
		return false
	}

	c.logError("read failed", "error", err)
	c.errorsTotal.Add(1)
	c.handleDisconnect(err)
	return true
}

// route classifies one inbound frame.
func (c *Client) route(f Frame) {
	c.framesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	if c.correlator.Deliver(f) {
		return
	}

	if f.IsResponse() {
		c.unmatched.Add(1)
		c.logWarn("discarding response with no pending action", "action_id", f.ActionID(), "response", f.Response())
		return
	}

	if !f.Has(FieldEvent) {
		c.logWarn("discarding frame that is neither response nor event", "frame", f.String())
		return
	}

	if f.ActionID() != "" {
		// A list entry whose action already resolved or timed out.
		c.unmatched.Add(1)
		c.logDebug("discarding late list event", "event", f.Event(), "action_id", f.ActionID())
		return
	}

	c.eventsRx.Add(1)

	if f.IsNamed("Shutdown") {
		c.logWarn("PBX announced shutdown", "shutdown", f.Get("Shutdown"), "restart", f.Get("Restart"))
		c.dropConnection()
	}

	c.callbackMu.RLock()
	handler := c.onEvent
	c.callbackMu.RUnlock()
	if handler != nil {
		c.safeCall("event handler", func() { handler(f) })
	}
}

// keepalive pings an idle connection. A Ping that times out drops the
// connection so the read loop reconnects.
func (c *Client) keepalive() {
	if !c.IsConnected() || !c.keepaliveBusy.CompareAndSwap(false, true) {
		return
	}
	_, err := c.Send(context.Background(), Request{
		Frame:   NewFrame(FieldAction, "Ping"),
		Prefix:  "keepalive",
		Timeout: c.cfg.WriteTimeout,
	}, func(r Result) {
		c.keepaliveBusy.Store(false)
		if errors.Is(r.Err, ErrTimeout) {
			c.logWarn("keepalive ping timed out, dropping connection")
			c.dropConnection()
		}
	})
	if err != nil {
		c.keepaliveBusy.Store(false)
	}
}

// dropConnection closes the socket; the read loop notices and reconnects.
func (c *Client) dropConnection() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) handleDisconnect(cause error) {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	failed := c.correlator.FailAll(fmt.Errorf("%w: %w", ErrConnectionLost, cause))
	if !wasConnected {
		return
	}
	c.logInfo("connection lost, will attempt reconnection", "failed_actions", failed)

	c.callbackMu.RLock()
	cb := c.onDisconnected
	c.callbackMu.RUnlock()
	if cb != nil {
		c.safeCall("on disconnected", func() { cb(cause) })
	}
}

// reconnect loops until a session is re-established or the client is
// closed. It returns false on shutdown.
func (c *Client) reconnect() bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	backoff := c.cfg.ReconnectInterval
	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		if err := c.establish(context.Background()); err != nil {
			if errors.Is(err, ErrClosed) {
				return false
			}
			backoff = c.handleReconnectFailure(err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		if !c.finalizeConnection(true) {
			c.closeOldConnection()
			return false
		}
		return true
	}
}

func (c *Client) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

func (c *Client) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	c.connMu.Unlock()
}

func (c *Client) handleReconnectFailure(err error, backoff time.Duration) time.Duration {
	c.logError("reconnect failed", "error", err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0
	case <-time.After(backoff):
	}

	next := time.Duration(float64(backoff) * backoffFactor)
	if next > c.cfg.MaxReconnectInterval {
		next = c.cfg.MaxReconnectInterval
	}
	return next
}

// Send issues an action. The returned identifier is the ActionID on the
// wire. On a nil error cb is invoked exactly once with the outcome; on a
// non-nil error cb is never invoked.
func (c *Client) Send(ctx context.Context, req Request, cb Callback) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	if !c.IsConnected() {
		return "", ErrNotConnected
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("ami: send: %w", ctx.Err())
	default:
	}

	frame := req.Frame.Clone()
	prefix := req.Prefix
	if prefix == "" {
		prefix = frame.Get(FieldAction)
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.CommandTimeout
	}

	if err := validate(frame); err != nil {
		return "", err
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	id := c.correlator.Issue(prefix, req.Completion, timeout, cb)
	if len(req.Claims) > 0 {
		c.correlator.Claim(id, req.Claims...)
	}
	frame.Set(FieldActionID, id)

	if err := c.writeFrame(conn, frame); err != nil {
		c.correlator.Cancel(id)
		c.errorsTotal.Add(1)
		return "", fmt.Errorf("ami: write %s: %w", prefix, err)
	}
	return id, nil
}

func (c *Client) writeFrame(conn net.Conn, f Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return err
	}
	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// Close logs off, stops the read loop and fails pending actions.
func (c *Client) Close() error {
	if c.isClosed() {
		return nil
	}

	if c.IsConnected() {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn != nil {
			//nolint:errcheck // Best-effort logoff on shutdown
			c.writeFrame(conn, NewFrame(FieldAction, "Logoff", FieldActionID, c.correlator.NextID("logoff")))
		}
	}

	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.correlator.FailAll(ErrClosed)

	c.logInfo("connection closed")
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// SetOnEvent sets the handler for unsolicited events. It runs on the read
// loop in wire order.
func (c *Client) SetOnEvent(handler func(Frame)) {
	c.callbackMu.Lock()
	c.onEvent = handler
	c.callbackMu.Unlock()
}

// SetOnConnected sets a callback invoked after every successful login.
func (c *Client) SetOnConnected(cb func()) {
	c.callbackMu.Lock()
	c.onConnected = cb
	c.callbackMu.Unlock()
}

// SetOnDisconnected sets a callback invoked when an established session drops.
func (c *Client) SetOnDisconnected(cb func(error)) {
	c.callbackMu.Lock()
	c.onDisconnected = cb
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for the client and its correlator.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
	c.correlator.SetLogger(logger)
}

// IsConnected reports whether a logged-in session is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Banner returns the greeting line of the current session.
func (c *Client) Banner() string {
	s, _ := c.banner.Load().(string)
	return s
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		FramesRx:        c.framesRx.Load(),
		FramesTx:        c.framesTx.Load(),
		EventsRx:        c.eventsRx.Load(),
		Malformed:       c.malformed.Load(),
		Unmatched:       c.unmatched.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		Pending:         c.correlator.Pending(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
		Banner:          c.Banner(),
	}
}

// HealthCheck sends a Ping and waits for the answer.
func (c *Client) HealthCheck(ctx context.Context) error {
	results := make(chan Result, 1)
	_, err := c.Send(ctx, Request{
		Frame:  NewFrame(FieldAction, "Ping"),
		Prefix: "health",
	}, func(r Result) { results <- r })
	if err != nil {
		return err
	}
	select {
	case r := <-results:
		return r.Err
	case <-ctx.Done():
		return fmt.Errorf("ami health check: %w", ctx.Err())
	}
}

func (c *Client) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logError(what+" panic recovered", "panic", r)
		}
	}()
	fn()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
