package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Enqueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(":0", "", "", "secret123", "test", 10)
	ts := httptest.NewServer(srv.routes(ctx))
	defer ts.Close()

	payload := `{"update_id": 1, "message": {"message_id": 42}}`
	resp, err := http.Post(ts.URL+"/webhook/secret123", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case body := <-srv.Updates():
		assert.Equal(t, payload, string(body))
	default:
		t.Fatal("expected queued update")
	}
}

func TestServer_WrongSecret(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(":0", "", "", "secret123", "test", 10)
	ts := httptest.NewServer(srv.routes(ctx))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook/wrong", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	select {
	case <-srv.Updates():
		t.Fatal("nothing should be queued")
	default:
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(":0", "", "", "secret123", "test", 10)
	ts := httptest.NewServer(srv.routes(ctx))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/webhook/secret123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Ping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(":0", "", "", "secret123", "test", 10)
	ts := httptest.NewServer(srv.routes(ctx))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_DefaultQueueSize(t *testing.T) {
	srv := NewServer(":0", "", "", "s", "test", 0)
	assert.Equal(t, 100, srv.QueueSize)
	assert.Equal(t, 100, cap(srv.updates))
}
