package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

func TestBatchChildWriteBufferEncodesDigestArrayAndBinOps(t *testing.T) {
	keys := []types.Key{
		types.NewKey("ns", "set", types.StringValue("k1")),
		types.NewKey("ns", "set", types.StringValue("k2")),
	}
	b := &BatchChild{Namespace: "ns", Set: "set", Keys: keys, BinNames: []string{"a"}}

	buf := make([]byte, b.EstimateSize())
	n, err := b.WriteBuffer(buf)
	require.NoError(t, err)

	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.EqualValues(t, 3, h.FieldCount) // namespace + set + digest array
	assert.EqualValues(t, 1, h.OpCount)
	assert.Equal(t, proto.Info1Read, h.Info1)
}

func TestBatchChildWriteBufferSetsGetAllWhenNoBinNames(t *testing.T) {
	keys := []types.Key{types.NewKey("ns", "", types.StringValue("k1"))}
	b := &BatchChild{Namespace: "ns", Keys: keys}

	buf := make([]byte, b.EstimateSize())
	n, err := b.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info1Read|proto.Info1GetAll, h.Info1)
}

func TestBatchChildWriteBufferHonorsNoBinData(t *testing.T) {
	keys := []types.Key{types.NewKey("ns", "", types.StringValue("k1"))}
	b := &BatchChild{Namespace: "ns", Keys: keys, NoBinData: true}

	buf := make([]byte, b.EstimateSize())
	n, err := b.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info1Read|proto.Info1GetAll|proto.Info1NoBinData, h.Info1)
}

func TestBatchChildParseRecordTracksRequestOrder(t *testing.T) {
	keys := []types.Key{
		types.NewKey("ns", "", types.StringValue("k1")),
		types.NewKey("ns", "", types.StringValue("k2")),
	}
	b := &BatchChild{Namespace: "ns", Keys: keys}

	rec, err := b.ParseRecord(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	body := make([]byte, 64)
	off := proto.WriteOp(body, 0, proto.OpTypeRead, byte(types.ParticleString), "v", []byte("x"))
	rec2, err := b.ParseRecord(proto.ParsedHeader{ResultCode: proto.ResultOK, OpCount: 1}, body[:off])
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, keys[1], rec2.Key)
	assert.Equal(t, types.StringValue("x"), rec2.Bins["v"])
}

func TestBatchChildParseRecordRejectsSurplusRecords(t *testing.T) {
	b := &BatchChild{Namespace: "ns", Keys: []types.Key{types.NewKey("ns", "", types.StringValue("k1"))}}
	_, err := b.ParseRecord(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil)
	require.NoError(t, err)
	_, err = b.ParseRecord(proto.ParsedHeader{ResultCode: proto.ResultKeyNotFound}, nil)
	assert.Error(t, err)
}

func TestScanChildWriteBufferHonorsNoBinData(t *testing.T) {
	s := &ScanChild{Namespace: "ns", Pol: policy.ScanQueryPolicy{IncludeBinData: false}}
	buf := make([]byte, s.EstimateSize())
	n, err := s.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info1Read|proto.Info1GetAll|proto.Info1NoBinData, h.Info1)
}

func TestScanChildParseRecordUsesDigestIdentityKey(t *testing.T) {
	s := &ScanChild{Namespace: "ns", Set: "set"}
	key := types.NewKey("ns", "set", types.StringValue("k1"))
	digest := key.Digest()

	body := make([]byte, 128)
	off := proto.WriteField(body, 0, proto.FieldDigestRipe, digest[:])
	off = proto.WriteOp(body, off, proto.OpTypeRead, byte(types.ParticleString), "v", []byte("x"))

	rec, err := s.ParseRecord(proto.ParsedHeader{ResultCode: proto.ResultOK, FieldCount: 1, OpCount: 1}, body[:off])
	require.NoError(t, err)
	assert.Equal(t, digest, rec.Key.Digest())
	assert.Equal(t, types.StringValue("x"), rec.Bins["v"])
}

func TestQueryChildWriteBufferEncodesIndexRangeField(t *testing.T) {
	q := &QueryChild{Namespace: "ns", Filter: RangeFilter{BinName: "age", Min: 10, Max: 20}, Pol: policy.ScanQueryPolicy{IncludeBinData: true}}
	buf := make([]byte, q.EstimateSize())
	n, err := q.WriteBuffer(buf)
	require.NoError(t, err)
	h, err := proto.ParseCommandHeader(buf[proto.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, proto.Info1Read|proto.Info1GetAll, h.Info1)
	assert.EqualValues(t, 2, h.FieldCount) // namespace + index range
}

func TestQueryChildTerminationKindDistinguishesFromScan(t *testing.T) {
	q := &QueryChild{}
	s := &ScanChild{}
	assert.NotEqual(t, s.TerminationKind(), q.TerminationKind())
	assert.Equal(t, types.KindQueryTerminated, q.TerminationKind())
	assert.Equal(t, types.KindScanTerminated, s.TerminationKind())
}
