package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snugbit/toygateway/pkg/frame"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsTransport adapts a gorilla/websocket connection to the Transport
// interface, encoding and decoding every message as one JSON frame (§4.1:
// one WebSocket text message per frame, no fragmentation).
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// ReadFrame reads the next WebSocket message and decodes it. A malformed
// message gets an error frame written straight back (§4.1: decode failures
// are answered, not fatal) and ReadFrame moves on to the next message
// without returning to the caller; only a transport-level read failure is
// returned as an error.
func (t *wsTransport) ReadFrame() (frame.Frame, error) {
	for {
		_, b, err := t.conn.ReadMessage()
		if err != nil {
			return frame.Frame{}, err
		}
		fr, err := frame.Decode(b)
		if err != nil {
			if werr := t.WriteFrame(frame.ErrorFrame(err.Error(), "")); werr != nil {
				return frame.Frame{}, werr
			}
			continue
		}
		return fr, nil
	}
}

// WriteFrame serializes the WebSocket write itself (gorilla/websocket
// forbids concurrent writers on one connection), independent of whatever
// locking the caller does above it.
func (t *wsTransport) WriteFrame(fr frame.Frame) error {
	b, err := frame.Encode(fr)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, b)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// WebSocketHandler builds the HTTP handler serving /ws/{device_id}/{toy_id}
// (§4.2): it upgrades the connection, parses identity from the path, and
// hands off to Manager.Accept/Run for the life of the connection.
func (m *Manager) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID, toyID, ok := parseWSPath(r.URL.Path)
		if !ok {
			http.Error(w, "expected path /ws/{device_id}/{toy_id}", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.logger.WarnPrintf("websocket upgrade failed for device %s: %v", deviceID, err)
			return
		}
		conn.SetReadDeadline(time.Time{})

		tx := newWSTransport(conn)
		s := m.Accept(deviceID, toyID, tx)
		m.Run(s)
	}
}

func parseWSPath(path string) (deviceID, toyID string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/ws/")
	if trimmed == path {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
