package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

func TestPutWriteBufferSetsInfo2AndGenerationFlags(t *testing.T) {
	key := types.NewKey("ns", "", types.StringValue("k1"))
	pol := policy.DefaultPolicy()
	pol.RecordExistsAction = policy.EXPECT_GEN_EQUAL

	p := &Put{Key: key, Bins: map[string]types.Value{"v": types.IntValue(7)}}
	p.base = &Base{pol: pol}

	buf := make([]byte, p.EstimateSize())
	n, err := p.WriteBuffer(buf)
	require.NoError(t, err)

	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info2Write|proto.Info2Generation, h.Info2)
	assert.EqualValues(t, 1, h.OpCount)
}

func TestPutParseCommandFailsOnNonOK(t *testing.T) {
	p := &Put{}
	err := p.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultGenerationErr}, nil)
	assert.Error(t, err)
}

func TestDeleteWriteBufferSetsDeleteFlags(t *testing.T) {
	key := types.NewKey("ns", "set", types.StringValue("k1"))
	d := &Delete{Key: key}
	d.base = &Base{pol: policy.DefaultPolicy()}

	buf := make([]byte, d.EstimateSize())
	n, err := d.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info2Write|proto.Info2Delete, h.Info2)
}

func TestDeleteParseCommandTreatsNotFoundAsSuccess(t *testing.T) {
	d := &Delete{}
	assert.NoError(t, d.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultOK}, nil))
	assert.NoError(t, d.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil))
	assert.Error(t, d.ParseCommand(proto.ParsedHeader{ResultCode: 77}, nil))
}

func TestExistsWriteBufferSetsNoBinDataFlag(t *testing.T) {
	key := types.NewKey("ns", "", types.StringValue("k1"))
	e := &Exists{Key: key}
	e.base = &Base{pol: policy.DefaultPolicy()}

	buf := make([]byte, e.EstimateSize())
	n, err := e.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info1Read|proto.Info1GetAll|proto.Info1NoBinData, h.Info1)
}

func TestExistsParseCommandDistinguishesFoundFromMissing(t *testing.T) {
	e := &Exists{}
	require.NoError(t, e.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultOK}, nil))
	assert.True(t, e.found)

	e2 := &Exists{}
	require.NoError(t, e2.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil))
	assert.False(t, e2.found)
}

func TestConcatWriteBufferChoosesOpTypeByDirection(t *testing.T) {
	key := types.NewKey("ns", "", types.StringValue("k1"))
	app := NewAppend(nil, policy.DefaultPolicy(), nil, nil, key, "msg", types.StringValue("world"), nil)
	buf := make([]byte, app.EstimateSize())
	n, err := app.WriteBuffer(buf)
	require.NoError(t, err)
	_, err = proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	op, _, err := proto.ReadOp(buf[proto.HeaderSize+proto.CommandHeaderSize+proto.FieldSize(len("ns"))+proto.FieldSize(types.DigestSize):], 0)
	require.NoError(t, err)
	assert.Equal(t, proto.OpTypeAppend, op.OpType)
	assert.Equal(t, "Append", app.CommandName())

	pre := NewPrepend(nil, policy.DefaultPolicy(), nil, nil, key, "msg", types.StringValue("hello "), nil)
	assert.Equal(t, "Prepend", pre.CommandName())
}

func TestTouchWriteBufferCarriesNoValueOp(t *testing.T) {
	key := types.NewKey("ns", "", types.StringValue("k1"))
	pol := policy.DefaultPolicy()
	pol.Expiration = 3600
	tc := &Touch{Key: key}
	tc.base = &Base{pol: pol}

	buf := make([]byte, tc.EstimateSize())
	n, err := tc.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.EqualValues(t, 3600, h.Expiration)
	assert.EqualValues(t, 1, h.OpCount)
}

func TestTouchParseCommandFailsOnNotFound(t *testing.T) {
	tc := &Touch{}
	assert.Error(t, tc.ParseCommand(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil))
}
