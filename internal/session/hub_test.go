package session

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pixelcanvas/internal/domain"
)

func newTestClient(buffer int) (*Client, *fakeConn) {
	conn := newFakeConn()
	cfg := DefaultConfig()
	cfg.SendBuffer = buffer
	cfg.PingPeriod = 0
	return NewClient(conn, &domain.User{ID: 1, Username: "ana"}, cfg), conn
}

func drain(c *Client) []string {
	var out []string
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestHubAddRemove(t *testing.T) {
	h := NewHub()
	a, _ := newTestClient(4)
	b, _ := newTestClient(4)

	h.Add(a)
	h.Add(b)
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
	if a.ID == b.ID {
		t.Fatal("client ids must be unique")
	}

	if !h.Remove(a.ID) {
		t.Fatal("first Remove should report true")
	}
	if h.Remove(a.ID) {
		t.Fatal("second Remove should be a no-op")
	}
	if !a.Closed() {
		t.Fatal("removed client should be closed")
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
}

func TestHubBroadcastReachesEveryClient(t *testing.T) {
	h := NewHub()
	a, _ := newTestClient(4)
	b, _ := newTestClient(4)
	h.Add(a)
	h.Add(b)

	if evicted := h.Broadcast([]byte("3;ana,1,1,v,1,2,3")); evicted != 0 {
		t.Fatalf("evicted = %d, want 0", evicted)
	}
	for _, c := range []*Client{a, b} {
		got := drain(c)
		if len(got) != 1 || got[0] != "3;ana,1,1,v,1,2,3" {
			t.Fatalf("client got %v", got)
		}
	}
}

func TestHubBroadcastEvictsFailedClient(t *testing.T) {
	h := NewHub()
	slow, _ := newTestClient(1)
	healthy, _ := newTestClient(4)
	h.Add(slow)
	h.Add(healthy)

	if !slow.Enqueue([]byte("fill")) {
		t.Fatal("first enqueue should fit")
	}
	if evicted := h.Broadcast([]byte("msg")); evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
	if !slow.Closed() {
		t.Fatal("evicted client should be closed")
	}
	if got := drain(healthy); len(got) != 1 || got[0] != "msg" {
		t.Fatalf("healthy client got %v", got)
	}

	// Removing an evicted client from its own read loop is harmless.
	if h.Remove(slow.ID) {
		t.Fatal("evicted client should already be gone")
	}
}

func TestHubSendToOnlyTarget(t *testing.T) {
	h := NewHub()
	a, _ := newTestClient(4)
	b, _ := newTestClient(4)
	h.Add(a)
	h.Add(b)

	if !h.SendTo(a, []byte("5;nope")) {
		t.Fatal("SendTo failed")
	}
	if got := drain(a); len(got) != 1 {
		t.Fatalf("a got %v", got)
	}
	if got := drain(b); len(got) != 0 {
		t.Fatalf("b got %v", got)
	}

	a.Close()
	if h.SendTo(a, []byte("x")) {
		t.Fatal("SendTo a closed client should fail")
	}
	if h.Len() != 1 {
		t.Fatalf("failed SendTo should remove the client, Len = %d", h.Len())
	}
}

func TestHubRemoveFunc(t *testing.T) {
	h := NewHub()
	anon := NewClient(newFakeConn(), nil, DefaultConfig())
	named, _ := newTestClient(4)
	h.Add(anon)
	h.Add(named)

	if n := h.RemoveFunc(func(c *Client) bool { return c.Anonymous() }); n != 1 {
		t.Fatalf("RemoveFunc removed %d, want 1", n)
	}
	if got := h.Clients(); len(got) != 1 || got[0] != named {
		t.Fatalf("Clients = %v", got)
	}
	if n := h.CloseAll(); n != 1 || h.Len() != 0 {
		t.Fatalf("CloseAll removed %d, Len = %d", n, h.Len())
	}
}

func TestHubConcurrentMembershipAndBroadcast(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := newTestClient(64)
			h.Add(c)
			h.Broadcast([]byte("x"))
			h.Remove(c.ID)
			h.Remove(c.ID)
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Broadcast([]byte("y"))
		}()
	}
	wg.Wait()

	if h.Len() != 0 {
		t.Fatalf("Len = %d, want 0", h.Len())
	}
}

func TestWritePumpDeliversAndClosesOnClose(t *testing.T) {
	c, conn := newTestClient(4)
	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	c.Enqueue([]byte("one"))
	c.Enqueue([]byte("two"))
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop")
	}
	if got := conn.textFrames(); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("frames = %v", got)
	}
	if !conn.isClosed() {
		t.Fatal("connection should be closed")
	}
}

func TestWritePumpStopsOnWriteError(t *testing.T) {
	c, conn := newTestClient(4)
	conn.writeErr = errBrokenPipe
	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	c.Enqueue([]byte("lost"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop on error")
	}
	if !conn.isClosed() {
		t.Fatal("connection should be closed after a failed write")
	}
}

func TestReadPumpOrderAndPing(t *testing.T) {
	c, conn := newTestClient(4)
	conn.incoming <- frame{typ: websocket.TextMessage, data: []byte("first")}
	conn.incoming <- frame{typ: websocket.BinaryMessage, data: []byte{1}}
	conn.incoming <- frame{typ: websocket.PingMessage, data: []byte("hb")}
	conn.incoming <- frame{typ: websocket.TextMessage, data: []byte("second")}

	var got []string
	errc := make(chan error, 1)
	go func() {
		errc <- c.ReadPump(func(f []byte) {
			got = append(got, string(f))
			if len(got) == 2 {
				_ = conn.Close()
			}
		})
	}()

	select {
	case err := <-errc:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("ReadPump error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not return")
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("frames = %v", got)
	}
	if conn.readLimit != c.cfg.MaxMessageSize {
		t.Fatalf("read limit = %d", conn.readLimit)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.control) != 1 || conn.control[0].typ != websocket.PongMessage || string(conn.control[0].data) != "hb" {
		t.Fatalf("control frames = %+v", conn.control)
	}
}
