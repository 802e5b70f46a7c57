package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkv/ringkv/internal/registry"
	"github.com/ringkv/ringkv/internal/ring"
	"github.com/ringkv/ringkv/internal/shardproc"
	"github.com/ringkv/ringkv/internal/wire"
)

// testCluster wires a Router + Controller over an InProcessSpawner, with
// shardIDs pre-added to the ring and registry by spawning real shard
// goroutines — mirroring the five-shard setup of scenario S1.
type testCluster struct {
	rt     *Router
	ctrl   *Controller
	server *httptest.Server
	spawn  *shardproc.InProcessSpawner
}

func newTestCluster(t *testing.T, shardIDs ...string) *testCluster {
	t.Helper()

	r := ring.New(100)
	reg := registry.New()
	rt := New(r, reg)
	spawn := &shardproc.InProcessSpawner{SnapshotDir: t.TempDir(), FlushInterval: time.Hour}
	ctrl := NewController(rt, spawn, nil)

	tc := &testCluster{rt: rt, ctrl: ctrl, spawn: spawn}
	tc.server = httptest.NewServer(NewHandler(rt, ctrl, nil))
	t.Cleanup(tc.server.Close)

	ctx := context.Background()
	for _, id := range shardIDs {
		h, err := spawn.Spawn(ctx, id)
		require.NoError(t, err)
		reg.Put(id, h.Endpoint)
		r.Add(id)
	}
	return tc
}

func (tc *testCluster) put(t *testing.T, key, value string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, tc.server.URL+"/put?key="+key+"&value="+value, nil)
	require.NoError(t, err)
	resp, err := tc.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (tc *testCluster) get(t *testing.T, key string) *http.Response {
	t.Helper()
	resp, err := tc.server.Client().Get(tc.server.URL + "/get?key=" + key)
	require.NoError(t, err)
	return resp
}

func (tc *testCluster) del(t *testing.T, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("DEL", tc.server.URL+"/del?key="+key, nil)
	require.NoError(t, err)
	resp, err := tc.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

// TestS1PutGetDeleteGet is scenario S1.
func TestS1PutGetDeleteGet(t *testing.T) {
	tc := newTestCluster(t, "5001", "5002", "5003", "5004", "5005")

	resp := tc.put(t, "foo", "bar")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var putBody wire.PutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&putBody))
	resp.Body.Close()
	assert.Equal(t, wire.MsgPutOK, putBody.Message)

	resp = tc.get(t, "foo")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var getBody wire.GetResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&getBody))
	resp.Body.Close()
	assert.Equal(t, "bar", getBody.Value)

	resp = tc.del(t, "foo")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = tc.get(t, "foo")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errBody wire.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	resp.Body.Close()
	assert.Equal(t, wire.MsgKeyNotFound, errBody.Error)
}

// TestS2GetNeverWritten is scenario S2.
func TestS2GetNeverWritten(t *testing.T) {
	tc := newTestCluster(t, "5001", "5002", "5003", "5004", "5005")

	resp := tc.get(t, "missing")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestS3EmptyRingNoShards is scenario S3.
func TestS3EmptyRingNoShards(t *testing.T) {
	tc := newTestCluster(t)

	resp := tc.put(t, "x", "y")
	defer resp.Body.Close()
	assert.GreaterOrEqual(t, resp.StatusCode, 500)
}

// TestS4AddServerGrowsRing is scenario S4.
func TestS4AddServerGrowsRing(t *testing.T) {
	tc := newTestCluster(t, "5001", "5002", "5003", "5004", "5005")
	before := tc.rt.ring.Len()
	beforeMembers := len(tc.rt.ring.Members())

	resp, err := tc.server.Client().Post(tc.server.URL+"/add_server", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, before+ring.Replicas, tc.rt.ring.Len())
	assert.Equal(t, beforeMembers+1, len(tc.rt.ring.Members()))
}

// TestS5RemoveServerMigrates is scenario S5.
func TestS5RemoveServerMigrates(t *testing.T) {
	tc := newTestCluster(t, "5001", "5002")

	// seed through the router's public API: a and b land on whichever of
	// 5001/5002 owns them, and once 5001 is removed both must be served by
	// the remaining shard.
	for k, v := range map[string]string{"a": "1", "b": "2"} {
		resp := tc.put(t, k, v)
		resp.Body.Close()
	}

	req, err := http.NewRequest(http.MethodPost, tc.server.URL+"/remove_server?port=5001", nil)
	require.NoError(t, err)
	resp, err := tc.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.False(t, tc.rt.registry.Has("5001"))

	for _, k := range []string{"a", "b"} {
		resp := tc.get(t, k)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	owner, ok := tc.rt.ring.Locate("a")
	require.True(t, ok)
	assert.NotEqual(t, "5001", owner)
}

// TestS6RouterAddPreservesRingInvariant mirrors S6 at the router level;
// the router-level fraction is exercised by internal/ring's own test with
// a larger sample, this test only checks the router wiring doesn't corrupt
// ring behavior under Add.
func TestS6RouterAddPreservesRingInvariant(t *testing.T) {
	tc := newTestCluster(t, "5001", "5002", "5003", "5004", "5005")
	members := map[string]bool{}
	for _, id := range tc.rt.ring.Members() {
		members[id] = true
	}

	_, err := tc.ctrl.AddShard(context.Background())
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		owner, ok := tc.rt.ring.Locate(string(rune('a' + i%26)))
		require.True(t, ok)
		_ = owner
	}
	assert.Equal(t, 6, len(tc.rt.ring.Members()))
}
