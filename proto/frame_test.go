package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize+CommandHeaderSize+64)
	WriteHeader(buf, 22, Info1Read, Info2Write, Info3Last, 7, 30, 1000, 2, 3)

	length, err := ReadOuterHeader(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 22, length)

	h, err := ParseCommandHeader(buf[HeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, ResultOK, h.ResultCode)
	assert.Equal(t, Info1Read, h.Info1)
	assert.Equal(t, Info2Write, h.Info2)
	assert.Equal(t, Info3Last, h.Info3)
	assert.EqualValues(t, 7, h.Generation)
	assert.EqualValues(t, 30, h.Expiration)
	assert.EqualValues(t, 2, h.FieldCount)
	assert.EqualValues(t, 3, h.OpCount)
}

func TestReadOuterHeaderZeroLengthIsKeepAlive(t *testing.T) {
	buf := make([]byte, HeaderSize+CommandHeaderSize)
	WriteHeader(buf, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	length, err := ReadOuterHeader(buf[:HeaderSize])
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestReadOuterHeaderRejectsWrongVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = Version + 1
	_, err := ReadOuterHeader(buf)
	assert.Error(t, err)
}

func TestFieldRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	off := WriteField(buf, 0, FieldNamespace, []byte("test"))
	assert.Equal(t, FieldSize(4), off)

	f, next, err := ReadField(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, FieldNamespace, f.Type)
	assert.Equal(t, []byte("test"), f.Payload)
	assert.Equal(t, off, next)
}

func TestReadFieldRejectsTruncatedPayload(t *testing.T) {
	buf := make([]byte, 4)
	_, _, err := ReadField(buf, 0)
	assert.Error(t, err)
}

func TestOpRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	off := WriteOp(buf, 0, OpTypeWrite, 3, "bin1", []byte("hello"))
	assert.Equal(t, OpSize("bin1", 5), off)

	op, next, err := ReadOp(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, OpTypeWrite, op.OpType)
	assert.EqualValues(t, 3, op.ParticleType)
	assert.Equal(t, "bin1", op.Name)
	assert.Equal(t, []byte("hello"), op.Value)
	assert.Equal(t, off, next)
}

func TestOpRoundTripEmptyValue(t *testing.T) {
	buf := make([]byte, 32)
	off := WriteOp(buf, 0, OpTypeTouch, 0, "", nil)
	op, next, err := ReadOp(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, OpTypeTouch, op.OpType)
	assert.Empty(t, op.Name)
	assert.Empty(t, op.Value)
	assert.Equal(t, off, next)
}

func TestScanOptionsEncodesFlags(t *testing.T) {
	b := ScanOptions(1, true, 50)
	require.Len(t, b, 2)
	assert.Equal(t, byte(0x18), b[0]) // priority 1 << 4 | fail-on-change bit
	assert.EqualValues(t, 50, b[1])
}

func TestRangeFilterRoundTrip(t *testing.T) {
	payload := RangeFilter("age", 10, 99)
	nameLen := int(payload[0])
	assert.Equal(t, "age", string(payload[1:1+nameLen]))
}

func TestMultipleFieldsAndOpsAtIncreasingOffsets(t *testing.T) {
	buf := make([]byte, HeaderSize+CommandHeaderSize+128)
	off := HeaderSize + CommandHeaderSize
	off = WriteField(buf, off, FieldNamespace, []byte("ns"))
	off = WriteField(buf, off, FieldTable, []byte("set"))
	off = WriteOp(buf, off, OpTypeRead, 0, "a", nil)
	off = WriteOp(buf, off, OpTypeRead, 0, "bb", nil)
	WriteHeader(buf, uint64(off-HeaderSize), Info1Read, 0, 0, 0, 0, 0, 2, 2)

	h, err := ParseCommandHeader(buf[HeaderSize:])
	require.NoError(t, err)
	body := buf[HeaderSize+CommandHeaderSize : off]

	readOff := 0
	f1, n, err := ReadField(body, readOff)
	require.NoError(t, err)
	assert.Equal(t, FieldNamespace, f1.Type)
	readOff = n
	f2, n, err := ReadField(body, readOff)
	require.NoError(t, err)
	assert.Equal(t, FieldTable, f2.Type)
	readOff = n

	op1, n, err := ReadOp(body, readOff)
	require.NoError(t, err)
	assert.Equal(t, "a", op1.Name)
	readOff = n
	op2, _, err := ReadOp(body, readOff)
	require.NoError(t, err)
	assert.Equal(t, "bb", op2.Name)

	assert.EqualValues(t, 2, h.FieldCount)
	assert.EqualValues(t, 2, h.OpCount)
}
