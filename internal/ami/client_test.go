package ami

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// mockPBX simulates an Asterisk manager port. It answers Login and Ping
// and records every action it receives.
type mockPBX struct {
	listener net.Listener
	secret   string

	mu       sync.Mutex
	conns    []net.Conn
	actions  []Frame
	logins   int
	handlers map[string]func(net.Conn, Frame)
	done     chan struct{}
}

func newMockPBX(t *testing.T) *mockPBX {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	s := &mockPBX{
		listener: listener,
		secret:   "s3cret",
		handlers: make(map[string]func(net.Conn, Frame)),
		done:     make(chan struct{}),
	}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *mockPBX) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *mockPBX) serve(conn net.Conn) {
	defer conn.Close()
	conn.Write([]byte("Asterisk Call Manager/1.1\r\n"))

	r := NewReader(conn)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.actions = append(s.actions, f)
		h := s.handlers[f.Get("Action")]
		s.mu.Unlock()

		switch f.Get("Action") {
		case "Login":
			s.mu.Lock()
			s.logins++
			s.mu.Unlock()
			if f.Get("Secret") != s.secret {
				s.write(conn, NewFrame("Response", "Error", "ActionID", f.ActionID(), "Message", "Authentication failed"))
				continue
			}
			s.write(conn, NewFrame("Response", "Success", "ActionID", f.ActionID(), "Message", "Authentication accepted"))
		case "Ping":
			s.write(conn, NewFrame("Response", "Success", "ActionID", f.ActionID(), "Ping", "Pong"))
		default:
			if h != nil {
				h(conn, f)
			}
		}
	}
}

func (s *mockPBX) write(conn net.Conn, f Frame) {
	data, _ := Encode(f)
	conn.Write(data)
}

func (s *mockPBX) handle(action string, h func(net.Conn, Frame)) {
	s.mu.Lock()
	s.handlers[action] = h
	s.mu.Unlock()
}

// push writes f on the most recent connection.
func (s *mockPBX) push(t *testing.T, f Frame) {
	t.Helper()
	conn := s.lastConn()
	if conn == nil {
		t.Fatal("No connection to push frame")
	}
	s.write(conn, f)
}

func (s *mockPBX) lastConn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *mockPBX) loginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *mockPBX) Address() string { return s.listener.Addr().String() }

func (s *mockPBX) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
}

func testConfig(addr string) Config {
	return Config{
		Address:           addr,
		Username:          "proxy",
		Secret:            "s3cret",
		ConnectTimeout:    2 * time.Second,
		ReadTimeout:       time.Second,
		CommandTimeout:    time.Second,
		ReconnectInterval: 50 * time.Millisecond,
	}
}

func TestClientDefaults(t *testing.T) {
	c := NewClient(Config{Address: "127.0.0.1:5038"})
	if c.cfg.Events != "on" {
		t.Errorf("Events = %q, want on", c.cfg.Events)
	}
	if c.cfg.ReconnectInterval != defaultReconnectInterval {
		t.Errorf("ReconnectInterval = %v, want %v", c.cfg.ReconnectInterval, defaultReconnectInterval)
	}
	if c.cfg.MaxReconnectInterval != defaultMaxReconnectInterval {
		t.Errorf("MaxReconnectInterval = %v, want %v", c.cfg.MaxReconnectInterval, defaultMaxReconnectInterval)
	}
}

func TestClientSendNotConnected(t *testing.T) {
	c := NewClient(Config{Address: "127.0.0.1:5038"})

	_, err := c.Send(context.Background(), Request{Frame: NewFrame("Action", "Ping")}, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestClientConnectAndPing(t *testing.T) {
	pbx := newMockPBX(t)

	c := NewClient(testConfig(pbx.Address()))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if got := c.Banner(); got != "Asterisk Call Manager/1.1" {
		t.Errorf("Banner() = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	stats := c.Stats()
	if stats.FramesTx < 2 {
		t.Errorf("FramesTx = %d, want >= 2", stats.FramesTx)
	}
	if stats.Pending != 0 {
		t.Errorf("Pending = %d, want 0", stats.Pending)
	}
}

func TestClientLoginRejected(t *testing.T) {
	pbx := newMockPBX(t)

	cfg := testConfig(pbx.Address())
	cfg.Secret = "wrong"
	c := NewClient(cfg)

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("Connect() = %v, want ErrLoginFailed", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after failed login")
	}
}

func TestClientConnectFailure(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	cfg.ConnectTimeout = 500 * time.Millisecond

	c := NewClient(cfg)
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() = %v, want ErrConnectionFailed", err)
	}
}

func TestClientEventsInOrder(t *testing.T) {
	pbx := newMockPBX(t)

	c := NewClient(testConfig(pbx.Address()))
	got := make(chan string, 3)
	c.SetOnEvent(func(f Frame) { got <- f.Get("Seq") })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	for _, seq := range []string{"1", "2", "3"} {
		pbx.push(t, NewFrame("Event", "Newstate", "Seq", seq))
	}

	for _, want := range []string{"1", "2", "3"} {
		select {
		case seq := <-got:
			if seq != want {
				t.Errorf("event Seq = %s, want %s", seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for event")
		}
	}
}

func TestClientListResponse(t *testing.T) {
	pbx := newMockPBX(t)
	pbx.handle("SIPpeers", func(conn net.Conn, f Frame) {
		id := f.ActionID()
		pbx.write(conn, NewFrame("Response", "Success", "ActionID", id, "EventList", "start"))
		pbx.write(conn, NewFrame("Event", "PeerEntry", "ActionID", id, "ObjectName", "200"))
		// An unsolicited event interleaved with the list.
		pbx.write(conn, NewFrame("Event", "PeerStatus", "Peer", "SIP/201"))
		pbx.write(conn, NewFrame("Event", "PeerlistComplete", "ActionID", id, "EventList", "Complete"))
	})

	c := NewClient(testConfig(pbx.Address()))
	unsolicited := make(chan Frame, 1)
	c.SetOnEvent(func(f Frame) { unsolicited <- f })
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	results := make(chan Result, 1)
	_, err := c.Send(context.Background(), Request{
		Frame:      NewFrame("Action", "SIPpeers"),
		Prefix:     "listSipPeers",
		Completion: ListComplete,
	}, func(r Result) { results <- r })
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case r := <-results:
		if r.Err != nil {
			t.Fatalf("Result.Err = %v", r.Err)
		}
		if n := len(r.Events("PeerEntry")); n != 1 {
			t.Errorf("PeerEntry = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for list result")
	}

	select {
	case f := <-unsolicited:
		if !f.IsNamed("PeerStatus") {
			t.Errorf("unsolicited event = %s", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interleaved event not delivered to handler")
	}
}

func TestClientTimeout(t *testing.T) {
	pbx := newMockPBX(t)

	c := NewClient(testConfig(pbx.Address()))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	results := make(chan Result, 1)
	// The mock never answers this action.
	_, err := c.Send(context.Background(), Request{
		Frame:   NewFrame("Action", "Status"),
		Timeout: 50 * time.Millisecond,
	}, func(r Result) { results <- r })
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case r := <-results:
		if !errors.Is(r.Err, ErrTimeout) {
			t.Errorf("Err = %v, want ErrTimeout", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout callback not invoked")
	}
}

func TestClientReconnectFailsPending(t *testing.T) {
	pbx := newMockPBX(t)

	c := NewClient(testConfig(pbx.Address()))
	disconnected := make(chan error, 1)
	reconnected := make(chan struct{}, 4)
	c.SetOnDisconnected(func(err error) { disconnected <- err })
	c.SetOnConnected(func() { reconnected <- struct{}{} })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()
	<-reconnected

	results := make(chan Result, 1)
	if _, err := c.Send(context.Background(), Request{
		Frame:   NewFrame("Action", "Status"),
		Timeout: 10 * time.Second,
	}, func(r Result) { results <- r }); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	pbx.lastConn().Close()

	select {
	case r := <-results:
		if !errors.Is(r.Err, ErrConnectionLost) {
			t.Errorf("Err = %v, want ErrConnectionLost", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending action not failed on disconnect")
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnected not invoked")
	}

	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not reconnect")
	}
	if n := pbx.loginCount(); n < 2 {
		t.Errorf("logins = %d, want >= 2", n)
	}
	if c.Stats().ReconnectsTotal != 1 {
		t.Errorf("ReconnectsTotal = %d, want 1", c.Stats().ReconnectsTotal)
	}
}

func TestClientCloseFailsPending(t *testing.T) {
	pbx := newMockPBX(t)

	c := NewClient(testConfig(pbx.Address()))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	results := make(chan Result, 1)
	if _, err := c.Send(context.Background(), Request{
		Frame:   NewFrame("Action", "Status"),
		Timeout: 10 * time.Second,
	}, func(r Result) { results <- r }); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	select {
	case r := <-results:
		if r.Err == nil {
			t.Error("pending action resolved without error on Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending action not resolved on Close")
	}

	if _, err := c.Send(context.Background(), Request{Frame: NewFrame("Action", "Ping")}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
}

func TestClientClaimedListEvents(t *testing.T) {
	pbx := newMockPBX(t)
	pbx.handle("Parkinglots", func(conn net.Conn, f Frame) {
		id := f.ActionID()
		pbx.write(conn, NewFrame("Response", "Success", "ActionID", id, "Message", "Parking lots will follow"))
		pbx.write(conn, NewFrame("Event", "Parkinglot", "Name", "default", "StartExten", "71", "StopExten", "72"))
		pbx.write(conn, NewFrame("Event", "ParkinglotsComplete", "ActionID", id))
	})

	c := NewClient(testConfig(pbx.Address()))
	unsolicited := make(chan Frame, 1)
	c.SetOnEvent(func(f Frame) { unsolicited <- f })
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	results := make(chan Result, 1)
	if _, err := c.Send(context.Background(), Request{
		Frame:      NewFrame("Action", "Parkinglots"),
		Prefix:     "listParkings",
		Completion: ListUntil("ParkinglotsComplete"),
		Claims:     []string{"Parkinglot"},
	}, func(r Result) { results <- r }); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case r := <-results:
		if r.Err != nil {
			t.Fatalf("Result.Err = %v", r.Err)
		}
		if n := len(r.Events("Parkinglot")); n != 1 {
			t.Errorf("Parkinglot events = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for list result")
	}

	select {
	case f := <-unsolicited:
		t.Errorf("claimed event reached the event handler: %s", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientEstablishAfterClose(t *testing.T) {
	pbx := newMockPBX(t)

	c := NewClient(testConfig(pbx.Address()))
	// Close lands while a reconnect attempt is still dialing.
	c.done.Close()

	if err := c.establish(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("establish() = %v, want ErrClosed", err)
	}
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn != nil {
		t.Error("connection installed after Close")
	}
	if c.finalizeConnection(true) {
		t.Error("finalizeConnection() = true after Close")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if c.reconnect() {
		t.Error("reconnect() = true after Close")
	}

	time.Sleep(50 * time.Millisecond)
	if n := pbx.loginCount(); n != 0 {
		t.Errorf("logins = %d, want 0", n)
	}
}
