package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/command"
	"github.com/dkv-io/async-client/internal/faketest"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/types"
)

func newExecutorCluster(t *testing.T, nodes []cluster.Node) *cluster.StaticCluster {
	t.Helper()
	c := cluster.NewStaticCluster(nodes, 4, time.Minute, 4096, "")
	return c
}

func TestExecuteMergesRecordsFromEveryNode(t *testing.T) {
	srvA, err := faketest.New()
	require.NoError(t, err)
	defer srvA.Close()
	srvB, err := faketest.New()
	require.NoError(t, err)
	defer srvB.Close()

	keyA := types.NewKey("ns", "set", types.StringValue("a"))
	keyB := types.NewKey("ns", "set", types.StringValue("b"))
	srvA.Seed("ns", "set", keyA, map[string]types.Value{"v": types.IntValue(1)}, 1, 0)
	srvB.Seed("ns", "set", keyB, map[string]types.Value{"v": types.IntValue(2)}, 1, 0)

	nodeA := cluster.Node{ID: "a", Endpoint: srvA.Addr()}
	nodeB := cluster.Node{ID: "b", Endpoint: srvB.Addr()}
	cl := newExecutorCluster(t, []cluster.Node{nodeA, nodeB})

	ex := New(cl, time.Second, policy.ConcurrencyUnbounded, false)
	children := []Child{
		{Node: nodeA, Req: &command.ScanChild{Namespace: "ns", Set: "set", Pol: policy.DefaultScanQueryPolicy()}},
		{Node: nodeB, Req: &command.ScanChild{Namespace: "ns", Set: "set", Pol: policy.DefaultScanQueryPolicy()}},
	}

	rs := ex.Execute(children)
	count := 0
	for range rs.Results() {
		count++
	}
	require.NoError(t, rs.Err())
	assert.Equal(t, 2, count)
}

func TestExecuteWithNoChildrenFinishesEmpty(t *testing.T) {
	cl := newExecutorCluster(t, nil)
	ex := New(cl, time.Second, policy.ConcurrencyUnbounded, false)

	rs := ex.Execute(nil)
	_, ok := <-rs.Results()
	assert.False(t, ok)
	assert.NoError(t, rs.Err())
}

func TestExecuteSurfacesChildFailureWhenPartialNotAllowed(t *testing.T) {
	nodeA := cluster.Node{ID: "dead", Endpoint: "127.0.0.1:1"}
	cl := newExecutorCluster(t, []cluster.Node{nodeA})
	ex := New(cl, 100*time.Millisecond, policy.ConcurrencyUnbounded, false)

	children := []Child{
		{Node: nodeA, Req: &command.ScanChild{Namespace: "ns", Pol: policy.DefaultScanQueryPolicy()}},
	}
	rs := ex.Execute(children)
	for range rs.Results() {
	}
	assert.Error(t, rs.Err())
}
