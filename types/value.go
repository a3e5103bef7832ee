package types

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ParticleType is the wire-level type tag for a Value, as carried in
// the op header's particle_type byte.
type ParticleType uint8

const (
	ParticleNull ParticleType = iota
	ParticleInt
	ParticleUint
	ParticleString
	ParticleBytes
	ParticleList
	ParticleMap
	ParticleBlob
)

func (t ParticleType) String() string {
	switch t {
	case ParticleNull:
		return "null"
	case ParticleInt:
		return "int"
	case ParticleUint:
		return "uint"
	case ParticleString:
		return "string"
	case ParticleBytes:
		return "bytes"
	case ParticleList:
		return "list"
	case ParticleMap:
		return "map"
	case ParticleBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is the tagged variant every bin value implements. The wire
// layout of list/map/blob particles is an external value-serialization
// library's concern; Value gives the core engine just enough of a
// real, exercised surface to size and write outgoing ops and to hold
// parsed ones.
type Value interface {
	// Type reports the wire particle type.
	Type() ParticleType
	// EstimateSize returns the number of bytes WriteTo will write.
	EstimateSize() int
	// WriteTo writes the value's raw bytes (not including any
	// length prefix or particle type byte -- those are the op
	// encoder's job) to w.
	WriteTo(w io.Writer) (int, error)
	// String renders a short human-readable form for logging.
	String() string
}

// NullValue represents the absence of a bin value.
type NullValue struct{}

func (NullValue) Type() ParticleType        { return ParticleNull }
func (NullValue) EstimateSize() int         { return 0 }
func (NullValue) WriteTo(io.Writer) (int, error) { return 0, nil }
func (NullValue) String() string            { return "<nil>" }

// IntValue wraps a signed 64-bit integer bin value.
type IntValue int64

func (v IntValue) Type() ParticleType { return ParticleInt }
func (v IntValue) EstimateSize() int  { return 8 }
func (v IntValue) WriteTo(w io.Writer) (int, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return w.Write(b[:])
}
func (v IntValue) String() string { return fmt.Sprintf("%d", int64(v)) }

// UintValue wraps an unsigned 64-bit integer bin value.
type UintValue uint64

func (v UintValue) Type() ParticleType { return ParticleUint }
func (v UintValue) EstimateSize() int  { return 8 }
func (v UintValue) WriteTo(w io.Writer) (int, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return w.Write(b[:])
}
func (v UintValue) String() string { return fmt.Sprintf("%d", uint64(v)) }

// StringValue wraps a UTF-8 string bin value.
type StringValue string

func (v StringValue) Type() ParticleType          { return ParticleString }
func (v StringValue) EstimateSize() int           { return len(v) }
func (v StringValue) WriteTo(w io.Writer) (int, error) { return w.Write([]byte(v)) }
func (v StringValue) String() string              { return string(v) }

// BytesValue wraps an opaque byte-slice bin value.
type BytesValue []byte

func (v BytesValue) Type() ParticleType          { return ParticleBytes }
func (v BytesValue) EstimateSize() int           { return len(v) }
func (v BytesValue) WriteTo(w io.Writer) (int, error) { return w.Write(v) }
func (v BytesValue) String() string              { return fmt.Sprintf("bytes[%d]", len(v)) }

// BlobValue wraps a pre-serialized value produced by an external
// serialization collaborator; the core treats it as opaque bytes with
// its own particle tag so a future serializer can round-trip richer
// types without the core caring.
type BlobValue []byte

func (v BlobValue) Type() ParticleType          { return ParticleBlob }
func (v BlobValue) EstimateSize() int           { return len(v) }
func (v BlobValue) WriteTo(w io.Writer) (int, error) { return w.Write(v) }
func (v BlobValue) String() string              { return fmt.Sprintf("blob[%d]", len(v)) }

// ListValue and MapValue hold already-encoded element/entry values; the
// encoding of their contents is the serialization library's concern.
// The core only needs their total size and raw bytes to frame ops.
type ListValue struct {
	Raw []byte
}

func (v ListValue) Type() ParticleType          { return ParticleList }
func (v ListValue) EstimateSize() int           { return len(v.Raw) }
func (v ListValue) WriteTo(w io.Writer) (int, error) { return w.Write(v.Raw) }
func (v ListValue) String() string              { return fmt.Sprintf("list[%d bytes]", len(v.Raw)) }

type MapValue struct {
	Raw []byte
}

func (v MapValue) Type() ParticleType          { return ParticleMap }
func (v MapValue) EstimateSize() int           { return len(v.Raw) }
func (v MapValue) WriteTo(w io.Writer) (int, error) { return w.Write(v.Raw) }
func (v MapValue) String() string              { return fmt.Sprintf("map[%d bytes]", len(v.Raw)) }

// ParseValue reconstructs a Value from a particle type tag and its raw
// bytes, as read off the wire by the op parser.
func ParseValue(pt ParticleType, raw []byte) (Value, error) {
	switch pt {
	case ParticleNull:
		return NullValue{}, nil
	case ParticleInt:
		if len(raw) != 8 {
			return nil, fmt.Errorf("types: int particle must be 8 bytes, got %d", len(raw))
		}
		return IntValue(int64(binary.BigEndian.Uint64(raw))), nil
	case ParticleUint:
		if len(raw) != 8 {
			return nil, fmt.Errorf("types: uint particle must be 8 bytes, got %d", len(raw))
		}
		return UintValue(binary.BigEndian.Uint64(raw)), nil
	case ParticleString:
		return StringValue(raw), nil
	case ParticleBytes:
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return BytesValue(cp), nil
	case ParticleBlob:
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return BlobValue(cp), nil
	case ParticleList:
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return ListValue{Raw: cp}, nil
	case ParticleMap:
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return MapValue{Raw: cp}, nil
	default:
		return nil, fmt.Errorf("types: unknown particle type %d", pt)
	}
}
