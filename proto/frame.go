// Package proto implements the length-framed wire layout: the 8-byte
// message header, the 22-byte command header, fields and ops. It
// deliberately does not implement every opcode body (the exact
// per-opcode payload shape beyond framing and the result-code position
// is an external collaborator's concern) but gives the command layer a
// real, exercised encode/decode surface for the operations this client
// supports.
//
// Buffer handling here is grounded on rpc/transport/base/util.go's
// writeFrame/readFrame pair: fixed-size header scratch space,
// grow-on-demand body buffers, no allocation on the steady-state path.
package proto

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the outer message header: version(1)
	// + type(1) + length(6, but laid out as the low 48 bits of a
	// big-endian uint64).
	HeaderSize = 8
	// CommandHeaderSize is the size of the per-command header that
	// immediately follows HeaderSize in the body.
	CommandHeaderSize = 22

	Version = 2
	MsgTypeCommand = 3
)

// Info1 flags.
const (
	Info1Read       byte = 0x01
	Info1GetAll     byte = 0x02
	Info1NoBinData  byte = 0x20
)

// Info2 flags.
const (
	Info2Write        byte = 0x01
	Info2Delete       byte = 0x02
	Info2Generation   byte = 0x04
	Info2GenerationGT byte = 0x08
	Info2GenerationDup byte = 0x10
	Info2WriteUnique  byte = 0x20
)

// Info3 flags.
const (
	Info3Last byte = 0x01
)

// Field types (partial -- only the ones this client emits or parses).
const (
	FieldNamespace       byte = 0
	FieldTable           byte = 1 // set name
	FieldDigestRipe      byte = 4
	FieldDigestRipeArray byte = 5
	FieldUDFPackageName  byte = 6
	FieldUDFFunction     byte = 7
	FieldUDFArgList      byte = 8
	FieldScanOptions     byte = 9
	FieldIndexRange      byte = 10
)

// Result codes this client interprets explicitly; everything else is a
// generic ServerError(code).
const (
	ResultOK            = 0
	ResultKeyNotFound   = 2
	ResultGenerationErr = 3
)

// Op types this client emits or parses.
const (
	OpTypeRead    byte = 1
	OpTypeWrite   byte = 2
	OpTypeDelete  byte = 10
	OpTypeAppend  byte = 9
	OpTypePrepend byte = 8
	OpTypeTouch   byte = 11
)

// WriteHeader writes the 8-byte outer header and the 22-byte command
// header into buf[0:HeaderSize+CommandHeaderSize]. length is the total
// body length that follows the 8-byte header (i.e. CommandHeaderSize +
// fields + ops). timeoutMS is written into the command header's
// transaction_ttl field, which is the per-command server-side deadline
// in milliseconds, set just before send.
func WriteHeader(buf []byte, length uint64, info1, info2, info3 byte, generation, expiration uint32, timeoutMS uint32, fieldCount, opCount uint16) {
	if len(buf) < HeaderSize+CommandHeaderSize {
		panic("proto: buffer too small for header")
	}
	sizeAndType := (uint64(Version) << 56) | (uint64(MsgTypeCommand) << 48) | (length & 0x0000FFFFFFFFFFFF)
	binary.BigEndian.PutUint64(buf[0:8], sizeAndType)

	h := buf[HeaderSize : HeaderSize+CommandHeaderSize]
	h[0] = CommandHeaderSize // header_len
	h[1] = info1
	h[2] = info2
	h[3] = info3
	h[4] = 0 // unused
	h[5] = ResultOK
	binary.BigEndian.PutUint32(h[6:10], generation)
	binary.BigEndian.PutUint32(h[10:14], expiration)
	binary.BigEndian.PutUint32(h[14:18], timeoutMS)
	binary.BigEndian.PutUint16(h[18:20], fieldCount)
	binary.BigEndian.PutUint16(h[20:22], opCount)
}

// ParsedHeader is the decoded form of the two headers.
type ParsedHeader struct {
	Length     uint64
	ResultCode int
	Info1      byte
	Info2      byte
	Info3      byte
	Generation uint32
	Expiration uint32
	FieldCount uint16
	OpCount    uint16
}

// ReadOuterHeader decodes the 8-byte message header and returns the
// declared body length L. L==0 is a keep-alive and the caller should
// restart the header read rather than treating it as an error or end
// of stream.
func ReadOuterHeader(buf []byte) (length uint64, err error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("proto: short outer header (%d bytes)", len(buf))
	}
	word := binary.BigEndian.Uint64(buf[0:8])
	version := byte(word >> 56)
	msgType := byte(word >> 48)
	if version != Version {
		return 0, fmt.Errorf("proto: unsupported protocol version %d", version)
	}
	if msgType != MsgTypeCommand {
		return 0, fmt.Errorf("proto: unsupported message type %d", msgType)
	}
	return word & 0x0000FFFFFFFFFFFF, nil
}

// ParseCommandHeader decodes the 22-byte per-command header that
// follows the outer header in the body.
func ParseCommandHeader(buf []byte) (ParsedHeader, error) {
	if len(buf) < CommandHeaderSize {
		return ParsedHeader{}, fmt.Errorf("proto: short command header (%d bytes)", len(buf))
	}
	return ParsedHeader{
		ResultCode: int(buf[5]),
		Info1:      buf[1],
		Info2:      buf[2],
		Info3:      buf[3],
		Generation: binary.BigEndian.Uint32(buf[6:10]),
		Expiration: binary.BigEndian.Uint32(buf[10:14]),
		FieldCount: binary.BigEndian.Uint16(buf[18:20]),
		OpCount:    binary.BigEndian.Uint16(buf[20:22]),
	}, nil
}

// WriteField writes one field (len(4) | type(1) | payload) at buf[off:]
// and returns the new offset.
func WriteField(buf []byte, off int, fieldType byte, payload []byte) int {
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(payload)+1))
	buf[off+4] = fieldType
	copy(buf[off+5:], payload)
	return off + 5 + len(payload)
}

// FieldSize returns the number of bytes WriteField will consume for a
// payload of the given length.
func FieldSize(payloadLen int) int {
	return 5 + payloadLen
}

// ParsedField is a decoded field: its type and raw payload.
type ParsedField struct {
	Type    byte
	Payload []byte
}

// ReadField parses one field starting at buf[off:] and returns it plus
// the offset immediately after it.
func ReadField(buf []byte, off int) (ParsedField, int, error) {
	if off+5 > len(buf) {
		return ParsedField{}, off, fmt.Errorf("proto: short field header at offset %d", off)
	}
	length := int(binary.BigEndian.Uint32(buf[off : off+4]))
	if length < 1 {
		return ParsedField{}, off, fmt.Errorf("proto: invalid field length %d", length)
	}
	fieldType := buf[off+4]
	payloadLen := length - 1
	end := off + 5 + payloadLen
	if end > len(buf) {
		return ParsedField{}, off, fmt.Errorf("proto: field payload extends past buffer (end=%d len=%d)", end, len(buf))
	}
	return ParsedField{Type: fieldType, Payload: buf[off+5 : end]}, end, nil
}

// WriteOp writes one op (op_size(4) | op_type(1) | particle_type(1) |
// version(1) | name_len(1) | name | value) at buf[off:] and returns the
// new offset.
func WriteOp(buf []byte, off int, opType, particleType byte, name string, value []byte) int {
	nameBytes := []byte(name)
	opSize := 4 + len(nameBytes) + len(value) // op_type+particle_type+version+name_len + name + value
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(opSize))
	buf[off+4] = opType
	buf[off+5] = particleType
	buf[off+6] = 0 // version
	buf[off+7] = byte(len(nameBytes))
	pos := off + 8
	copy(buf[pos:], nameBytes)
	pos += len(nameBytes)
	copy(buf[pos:], value)
	pos += len(value)
	return pos
}

// OpSize returns the number of bytes WriteOp will consume for a bin
// name and a value of the given encoded length.
func OpSize(name string, valueLen int) int {
	return 4 + 4 + len(name) + valueLen
}

// ParsedOp is a decoded op: its type, particle type, bin name and raw
// value bytes.
type ParsedOp struct {
	OpType       byte
	ParticleType byte
	Name         string
	Value        []byte
}

// ReadOp parses one op starting at buf[off:] and returns it plus the
// offset immediately after it.
func ReadOp(buf []byte, off int) (ParsedOp, int, error) {
	if off+8 > len(buf) {
		return ParsedOp{}, off, fmt.Errorf("proto: short op header at offset %d", off)
	}
	opSize := int(binary.BigEndian.Uint32(buf[off : off+4]))
	opType := buf[off+4]
	particleType := buf[off+5]
	nameLen := int(buf[off+7])
	pos := off + 8
	if pos+nameLen > len(buf) {
		return ParsedOp{}, off, fmt.Errorf("proto: op name extends past buffer")
	}
	name := string(buf[pos : pos+nameLen])
	pos += nameLen
	valueLen := opSize - 4 - nameLen
	if valueLen < 0 || pos+valueLen > len(buf) {
		return ParsedOp{}, off, fmt.Errorf("proto: op value extends past buffer")
	}
	value := buf[pos : pos+valueLen]
	pos += valueLen
	return ParsedOp{OpType: opType, ParticleType: particleType, Name: name, Value: value}, pos, nil
}

// ScanOptions encodes the 2-byte SCAN_OPTIONS field payload: priority
// in the high nibble, the fail-on-cluster-change bit, then the scan
// percent byte.
func ScanOptions(priority byte, failOnClusterChange bool, scanPercent byte) []byte {
	b0 := priority << 4
	if failOnClusterChange {
		b0 |= 0x08
	}
	return []byte{b0, scanPercent}
}

// RangeFilter encodes a single indexed-bin range filter payload for the
// INDEX_RANGE field: name_len(1) | name | min(8, big-endian int64) |
// max(8, big-endian int64). This supports the one supplemental query
// shape this client exposes -- a single numeric-bin range predicate --
// not the original system's full secondary-index filter expression
// language.
func RangeFilter(binName string, min, max int64) []byte {
	nameBytes := []byte(binName)
	out := make([]byte, 1+len(nameBytes)+16)
	out[0] = byte(len(nameBytes))
	copy(out[1:], nameBytes)
	binary.BigEndian.PutUint64(out[1+len(nameBytes):], uint64(min))
	binary.BigEndian.PutUint64(out[1+len(nameBytes)+8:], uint64(max))
	return out
}
