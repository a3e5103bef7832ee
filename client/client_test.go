package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkv-io/async-client/client"
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/command"
	"github.com/dkv-io/async-client/internal/faketest"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/types"
)

func newTestClient(t *testing.T, srv *faketest.Server) *client.Client {
	t.Helper()
	node := cluster.Node{ID: "n0", Endpoint: srv.Addr()}
	cl := cluster.NewStaticCluster([]cluster.Node{node}, 4, time.Minute, 4096, "")
	c := client.New(cl, client.DefaultConfig())
	t.Cleanup(c.Close)
	return c
}

type writeWait struct {
	done chan error
}

func newWriteWait() *writeWait { return &writeWait{done: make(chan error, 1)} }
func (w *writeWait) OnSuccess()          { w.done <- nil }
func (w *writeWait) OnFailure(err error) { w.done <- err }

type getWait struct {
	done chan struct {
		rec *types.Record
		err error
	}
}

func newGetWait() *getWait {
	return &getWait{done: make(chan struct {
		rec *types.Record
		err error
	}, 1)}
}
func (g *getWait) OnSuccess(rec *types.Record) {
	g.done <- struct {
		rec *types.Record
		err error
	}{rec, nil}
}
func (g *getWait) OnFailure(err error) {
	g.done <- struct {
		rec *types.Record
		err error
	}{nil, err}
}

type existsWait struct {
	done chan struct {
		ok  bool
		err error
	}
}

func newExistsWait() *existsWait {
	return &existsWait{done: make(chan struct {
		ok  bool
		err error
	}, 1)}
}
func (e *existsWait) OnSuccess(exists bool) {
	e.done <- struct {
		ok  bool
		err error
	}{exists, nil}
}
func (e *existsWait) OnFailure(err error) {
	e.done <- struct {
		ok  bool
		err error
	}{false, err}
}

func requireWrite(t *testing.T, w *writeWait) {
	t.Helper()
	select {
	case err := <-w.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write completion")
	}
}

func TestClientPutThenGetRoundTrips(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	key := types.NewKey("ns", "set", types.StringValue("k1"))

	pw := newWriteWait()
	c.Put(key, map[string]types.Value{"name": types.StringValue("alice")}, policy.DefaultPolicy(), pw)
	requireWrite(t, pw)

	gw := newGetWait()
	c.Get(key, nil, policy.DefaultPolicy(), gw)
	select {
	case res := <-gw.done:
		require.NoError(t, res.err)
		require.NotNil(t, res.rec)
		assert.Equal(t, types.StringValue("alice"), res.rec.Bins["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get completion")
	}
}

func TestClientGetMissingKeyReturnsNilRecord(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	key := types.NewKey("ns", "", types.StringValue("missing"))

	gw := newGetWait()
	c.Get(key, nil, policy.DefaultPolicy(), gw)
	select {
	case res := <-gw.done:
		require.NoError(t, res.err)
		assert.Nil(t, res.rec)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get completion")
	}
}

func TestClientExistsReflectsSeedAndDelete(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	key := types.NewKey("ns", "", types.StringValue("k1"))
	srv.Seed("ns", "", key, map[string]types.Value{"v": types.IntValue(1)}, 1, 0)

	ew := newExistsWait()
	c.Exists(key, policy.DefaultPolicy(), ew)
	select {
	case res := <-ew.done:
		require.NoError(t, res.err)
		assert.True(t, res.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exists completion")
	}

	dw := newWriteWait()
	c.Delete(key, policy.DefaultPolicy(), dw)
	requireWrite(t, dw)

	ew2 := newExistsWait()
	c.Exists(key, policy.DefaultPolicy(), ew2)
	select {
	case res := <-ew2.done:
		require.NoError(t, res.err)
		assert.False(t, res.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exists completion")
	}
}

func TestClientAppendAndPrependConcatenateStringBin(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	key := types.NewKey("ns", "", types.StringValue("k1"))

	pw := newWriteWait()
	c.Put(key, map[string]types.Value{"msg": types.StringValue("lo")}, policy.DefaultPolicy(), pw)
	requireWrite(t, pw)

	aw := newWriteWait()
	c.Append(key, "msg", types.StringValue(" world"), policy.DefaultPolicy(), aw)
	requireWrite(t, aw)

	pwr := newWriteWait()
	c.Prepend(key, "msg", types.StringValue("hel"), policy.DefaultPolicy(), pwr)
	requireWrite(t, pwr)

	gw := newGetWait()
	c.Get(key, nil, policy.DefaultPolicy(), gw)
	select {
	case res := <-gw.done:
		require.NoError(t, res.err)
		require.NotNil(t, res.rec)
		assert.Equal(t, types.StringValue("hello world"), res.rec.Bins["msg"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get completion")
	}
}

func TestClientBatchGetReturnsNilForMissingKeys(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	present := types.NewKey("ns", "", types.StringValue("present"))
	missing := types.NewKey("ns", "", types.StringValue("missing"))
	srv.Seed("ns", "", present, map[string]types.Value{"v": types.IntValue(9)}, 1, 0)

	rs := c.BatchGet([]types.Key{present, missing}, nil, policy.DefaultBatchPolicy())

	var got []*types.Record
	for rec := range rs.Results() {
		got = append(got, rec)
	}
	require.NoError(t, rs.Err())
	require.Len(t, got, 2)
	assert.NotNil(t, got[0])
	assert.Nil(t, got[1])
}

func TestClientBatchExistsReturnsNilForMissingKeys(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	present := types.NewKey("ns", "", types.StringValue("present"))
	missing := types.NewKey("ns", "", types.StringValue("missing"))
	srv.Seed("ns", "", present, map[string]types.Value{"v": types.IntValue(9)}, 1, 0)

	rs := c.BatchExists([]types.Key{present, missing}, policy.DefaultBatchPolicy())

	var got []*types.Record
	for rec := range rs.Results() {
		got = append(got, rec)
	}
	require.NoError(t, rs.Err())
	require.Len(t, got, 2)
	assert.NotNil(t, got[0])
	assert.Nil(t, got[1])
}

func TestClientScanStreamsEverySeededRecord(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	k1 := types.NewKey("ns", "set", types.StringValue("a"))
	k2 := types.NewKey("ns", "set", types.StringValue("b"))
	srv.Seed("ns", "set", k1, map[string]types.Value{"v": types.IntValue(1)}, 1, 0)
	srv.Seed("ns", "set", k2, map[string]types.Value{"v": types.IntValue(2)}, 1, 0)

	rs := c.Scan("ns", "set", policy.DefaultScanQueryPolicy())
	count := 0
	for range rs.Results() {
		count++
	}
	require.NoError(t, rs.Err())
	assert.Equal(t, 2, count)
}

func TestClientQueryFiltersByRange(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	young := types.NewKey("ns", "", types.StringValue("young"))
	old := types.NewKey("ns", "", types.StringValue("old"))
	srv.Seed("ns", "", young, map[string]types.Value{"age": types.IntValue(20)}, 1, 0)
	srv.Seed("ns", "", old, map[string]types.Value{"age": types.IntValue(80)}, 1, 0)

	rs := c.Query("ns", "", command.RangeFilter{BinName: "age", Min: 0, Max: 30}, policy.DefaultScanQueryPolicy())
	var got []*types.Record
	for rec := range rs.Results() {
		got = append(got, rec)
	}
	require.NoError(t, rs.Err())
	require.Len(t, got, 1)
	assert.Equal(t, types.IntValue(20), got[0].Bins["age"])
}

func TestClientTimeoutFiresWhenNodeStopsResponding(t *testing.T) {
	srv, err := faketest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	key := types.NewKey("ns", "", types.StringValue("k1"))
	srv.Seed("ns", "", key, map[string]types.Value{"v": types.IntValue(1)}, 1, 0)
	srv.DelayNext(10, time.Second)

	pol := policy.DefaultPolicy()
	pol.Timeout = 20 * time.Millisecond
	pol.MaxRetries = 0

	gw := newGetWait()
	c.Get(key, nil, pol, gw)
	select {
	case res := <-gw.done:
		assert.Error(t, res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timeout to fire")
	}
}
