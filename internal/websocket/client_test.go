package websocket

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades incoming connections and echoes every text frame.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				data, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if op == ws.OpText {
					if err := wsutil.WriteServerText(conn, data); err != nil {
						return
					}
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientEcho(t *testing.T) {
	srv := echoServer(t)

	received := make(chan []byte, 8)
	client, err := Connect(context.Background(), ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: 2 * time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnText: func(data []byte) error {
			received <- append([]byte(nil), data...)
			return nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	client.WriteText([]byte(`{"hello":"world"}`))
	select {
	case data := <-received:
		assert.JSONEq(t, `{"hello":"world"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))
}

func TestClientOnCloseFiresOnceOnPeerDrop(t *testing.T) {
	var conns = make(chan net.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	closed := make(chan struct{}, 2)
	client, err := Connect(context.Background(), ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: 2 * time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnClose:     func() { closed <- struct{}{} },
	})
	require.NoError(t, err)

	conn := <-conns
	require.NoError(t, conn.Close())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close handler never fired")
	}
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel never closed")
	}

	// closing again after the drop must not fire the handler a second time
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = client.Close(ctx)
	select {
	case <-closed:
		t.Fatal("close handler fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientWriteAfterDoneIsNoop(t *testing.T) {
	srv := echoServer(t)

	client, err := Connect(context.Background(), ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: 2 * time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))

	// must not block or panic
	client.WriteText([]byte("late"))
}
