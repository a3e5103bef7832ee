package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

func TestGetWriteBufferEncodesNamespaceSetDigestAndBinOps(t *testing.T) {
	key := types.NewKey("ns", "set", types.StringValue("k1"))
	g := &Get{Key: key, BinNames: []string{"a", "b"}}
	g.base = &Base{pol: policy.DefaultPolicy()}

	buf := make([]byte, g.EstimateSize())
	n, err := g.WriteBuffer(buf)
	require.NoError(t, err)

	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info1Read, h.Info1)
	assert.EqualValues(t, 3, h.FieldCount) // namespace + set + digest
	assert.EqualValues(t, 2, h.OpCount)
}

func TestGetWriteBufferSetFieldCountIncludesSet(t *testing.T) {
	key := types.NewKey("ns", "set", types.StringValue("k1"))
	g := &Get{Key: key}
	g.base = &Base{pol: policy.DefaultPolicy()}

	buf := make([]byte, g.EstimateSize())
	n, err := g.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.EqualValues(t, 3, h.FieldCount) // namespace + set + digest
	assert.Equal(t, proto.Info1Read|proto.Info1GetAll, h.Info1)
}

func TestGetParseCommandNotFound(t *testing.T) {
	g := &Get{Key: types.NewKey("ns", "", types.StringValue("k1"))}
	err := g.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil)
	require.NoError(t, err)
	assert.Nil(t, g.result)
}

func TestGetParseCommandServerError(t *testing.T) {
	g := &Get{}
	err := g.ParseCommand(proto.ParsedHeader{ResultCode: 99}, nil)
	require.Error(t, err)
	var cerr *types.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, types.KindServerError, cerr.Kind)
}

func TestGetParseCommandDecodesBins(t *testing.T) {
	body := make([]byte, 64)
	off := proto.WriteOp(body, 0, proto.OpTypeRead, byte(types.ParticleString), "name", []byte("alice"))

	g := &Get{Key: types.NewKey("ns", "", types.StringValue("k1"))}
	err := g.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultOK, OpCount: 1}, body[:off])
	require.NoError(t, err)
	require.NotNil(t, g.result)
	assert.Equal(t, types.StringValue("alice"), g.result.Bins["name"])
}
