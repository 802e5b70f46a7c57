package shard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkv/ringkv/internal/wire"
)

func newTestServer(t *testing.T) (*httptest.Server, *Shard) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	s, err := New("5001", path, WithFlushInterval(time.Hour))
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(s, nil))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return srv, s
}

func TestServerPutGetDel(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/put?key=foo&value=bar", nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var putBody wire.PutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&putBody))
	assert.Equal(t, wire.MsgPutOK, putBody.Message)
	resp.Body.Close()

	resp, err = client.Get(srv.URL + "/get?key=foo")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var getBody wire.GetResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&getBody))
	assert.Equal(t, "bar", getBody.Value)
	resp.Body.Close()

	req, _ = http.NewRequest("DEL", srv.URL+"/del?key=foo", nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = client.Get(srv.URL + "/get?key=foo")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServerGetMissingKeyIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/get?key=missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body wire.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, wire.MsgKeyNotFound, body.Error)
}

func TestServerBulkImport(t *testing.T) {
	srv, _ := newTestServer(t)

	client := wire.NewShardClient(srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.BulkImport(ctx, map[string]string{"a": "1", "b": "2"}))

	v, err := client.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestServerPutAfterDrainReturns503(t *testing.T) {
	srv, s := newTestServer(t)
	s.BeginDrain()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/put?key=foo&value=bar", nil)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
