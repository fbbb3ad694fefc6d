// internal/control/server_test.go
package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSink struct {
	codes []string
	err   error
}

func (f *fakeSink) InputCode(_ context.Context, code string) error {
	f.codes = append(f.codes, code)
	return f.err
}

func newTestServer(t *testing.T, apiKey string, sink CodeSink) (*Server, *httptest.Server) {
	t.Helper()
	s := New(apiKey, sink, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(http.DefaultClient.CloseIdleConnections)
	return s, srv
}

func postControl(t *testing.T, url, apiKey, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/control", strings.NewReader(body))
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := make([]byte, 1024)
	n, _ := resp.Body.Read(buf)
	return resp, string(buf[:n])
}

func TestHandleControl(t *testing.T) {
	t.Run("routes the code to the sink", func(t *testing.T) {
		sink := &fakeSink{}
		_, srv := newTestServer(t, "secret", sink)

		resp, body := postControl(t, srv.URL, "secret", `{"action":"inputAuthCode","code":"482913"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"success":true`)
		assert.Equal(t, []string{"482913"}, sink.codes)
	})

	t.Run("sink errors surface in the response, not the status", func(t *testing.T) {
		sink := &fakeSink{err: errors.New("no second-factor page")}
		_, srv := newTestServer(t, "", sink)

		resp, body := postControl(t, srv.URL, "", `{"action":"inputAuthCode","code":"111222"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"success":false`)
		assert.Contains(t, body, "no second-factor page")
	})

	t.Run("rejects a missing api key", func(t *testing.T) {
		sink := &fakeSink{}
		_, srv := newTestServer(t, "secret", sink)

		resp, _ := postControl(t, srv.URL, "", `{"action":"inputAuthCode","code":"482913"}`)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, sink.codes)
	})

	t.Run("empty api key disables auth", func(t *testing.T) {
		sink := &fakeSink{}
		_, srv := newTestServer(t, "", sink)

		resp, _ := postControl(t, srv.URL, "", `{"action":"inputAuthCode","code":"482913"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"482913"}, sink.codes)
	})

	t.Run("empty code is rejected", func(t *testing.T) {
		sink := &fakeSink{}
		_, srv := newTestServer(t, "", sink)

		resp, _ := postControl(t, srv.URL, "", `{"action":"inputAuthCode"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, sink.codes)
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		_, srv := newTestServer(t, "", &fakeSink{})
		resp, _ := postControl(t, srv.URL, "", `{"action":"reboot"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		_, srv := newTestServer(t, "", &fakeSink{})
		resp, _ := postControl(t, srv.URL, "", `{{{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestWebsocketStream(t *testing.T) {
	s, srv := newTestServer(t, "secret", &fakeSink{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"X-API-Key": []string{"secret"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the subscription a moment to register before broadcasting.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subs) == 1
	}, time.Second, 5*time.Millisecond)

	sent := schemas.FlowStatus{
		FlowID:    "flow-1",
		Platform:  schemas.PlatformCoupang,
		State:     "second_factor",
		Detail:    "polling",
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	s.Broadcast(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got schemas.FlowStatus
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent.FlowID, got.FlowID)
	assert.Equal(t, sent.Platform, got.Platform)
	assert.Equal(t, sent.State, got.State)
}

func TestWebsocketAuth(t *testing.T) {
	_, srv := newTestServer(t, "secret", &fakeSink{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	if conn != nil {
		conn.Close()
	}
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	s := New("", &fakeSink{}, zap.NewNop())
	// Must not block or panic.
	s.Broadcast(schemas.FlowStatus{FlowID: "x", State: "idle"})
}

func TestListenAndServe(t *testing.T) {
	s := New("", &fakeSink{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
