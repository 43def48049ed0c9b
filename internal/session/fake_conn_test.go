package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	typ  int
	data []byte
}

// fakeConn feeds scripted frames to ReadMessage and records writes.
type fakeConn struct {
	mu       sync.Mutex
	written  []frame
	control  []frame
	writeErr error
	closed   bool

	incoming chan frame
	done     chan struct{}
	once     sync.Once

	pingHandler func(string) error
	pongHandler func(string) error
	readLimit   int64
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan frame, 16),
		done:     make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.incoming:
		if fr.typ == websocket.PingMessage {
			f.mu.Lock()
			h := f.pingHandler
			f.mu.Unlock()
			if h != nil {
				if err := h(string(fr.data)); err != nil {
					return 0, nil, err
				}
			}
			return f.ReadMessage()
		}
		return fr.typ, fr.data, nil
	case <-f.done:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) WriteMessage(typ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return websocket.ErrCloseSent
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, frame{typ: typ, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) WriteControl(typ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return websocket.ErrCloseSent
	}
	f.control = append(f.control, frame{typ: typ, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(n int64)             { f.readLimit = n }

func (f *fakeConn) SetPingHandler(h func(string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingHandler = h
}

func (f *fakeConn) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongHandler = h
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) textFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fr := range f.written {
		if fr.typ == websocket.TextMessage {
			out = append(out, string(fr.data))
		}
	}
	return out
}

var errBrokenPipe = errors.New("broken pipe")
