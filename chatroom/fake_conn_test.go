package chatroom

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errBrokenPipe = errors.New("broken pipe")

type frame struct {
	messageType int
	data        []byte
}

// fakeConn stands in for *websocket.Conn. Frames queued with send are
// returned by ReadMessage; text frames written by the session land in
// written.
type fakeConn struct {
	inbound chan frame
	written chan []byte

	mu          sync.Mutex
	writeErr    error
	closeFrames []int
	pings       int
	closeOnce   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan frame, 64),
		written: make(chan []byte, 256),
	}
}

func (f *fakeConn) send(data string) {
	f.inbound <- frame{messageType: websocket.TextMessage, data: []byte(data)}
}

func (f *fakeConn) sendBinary(data []byte) {
	f.inbound <- frame{messageType: websocket.BinaryMessage, data: data}
}

// hangUp makes the next read report a normal close from the client.
func (f *fakeConn) hangUp() {
	f.closeOnce.Do(func() { close(f.inbound) })
}

func (f *fakeConn) failWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = errBrokenPipe
}

func (f *fakeConn) closeCodes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closeFrames...)
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	fr, ok := <-f.inbound
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return fr.messageType, fr.data, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	switch messageType {
	case websocket.TextMessage:
		f.written <- append([]byte(nil), data...)
	case websocket.PingMessage:
		f.pings++
	case websocket.CloseMessage:
		code := websocket.CloseNoStatusReceived
		if len(data) >= 2 {
			code = int(data[0])<<8 | int(data[1])
		}
		f.closeFrames = append(f.closeFrames, code)
	}
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
