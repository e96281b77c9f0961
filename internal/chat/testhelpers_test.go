package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// testSocket is a real WebSocket pair: the server side wrapped in Conn the
// way production code sees it, and the raw client side for assertions.
type testSocket struct {
	server *Conn
	client *websocket.Conn
}

func (s *testSocket) readJSON(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, s.client.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, s.client.ReadJSON(v))
}

func (s *testSocket) close() {
	_ = s.server.Close()
	_ = s.client.Close()
}

// dialTestConn spins up a throwaway upgrade endpoint and returns both ends
// of a live connection.
func dialTestConn(t *testing.T) *testSocket {
	t.Helper()

	connCh := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- NewConn(ws)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	select {
	case server := <-connCh:
		sock := &testSocket{server: server, client: client}
		t.Cleanup(sock.close)
		return sock
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server connection")
		return nil
	}
}

// recordingSink captures AppendMessage calls and can inject failures.
type recordingSink struct {
	mu      sync.Mutex
	records []sinkRecord
	err     error
}

type sinkRecord struct {
	from, to int64
	content  string
	room     string
}

func (s *recordingSink) AppendMessage(_ context.Context, from, to int64, content, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, sinkRecord{from: from, to: to, content: content, room: room})
	return s.err
}

func (s *recordingSink) all() []sinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkRecord, len(s.records))
	copy(out, s.records)
	return out
}
