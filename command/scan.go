package command

import (
	"github.com/dkv-io/async-client/internal/multi"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// ScanChild is a multi.ChildRequest reading every record of one
// namespace/set from one node, honoring ScanQueryPolicy's
// IncludeBinData/ScanPercent/FailOnClusterChange knobs.
type ScanChild struct {
	Namespace string
	Set       string
	Pol       policy.ScanQueryPolicy
}

var _ multi.ChildRequest = (*ScanChild)(nil)

func (s *ScanChild) CommandName() string { return "Scan" }

func (s *ScanChild) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(s.Namespace))
	if s.Set != "" {
		size += proto.FieldSize(len(s.Set))
	}
	size += proto.FieldSize(2) // scan options field
	return size
}

func (s *ScanChild) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2)
	if s.Set != "" {
		fieldCount++
	}

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(s.Namespace))
	if s.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(s.Set))
	}
	opts := proto.ScanOptions(0, s.Pol.FailOnClusterChange, s.Pol.ScanPercent)
	off = proto.WriteField(buf, off, proto.FieldScanOptions, opts)

	info1 := proto.Info1Read | proto.Info1GetAll
	if !s.Pol.IncludeBinData {
		info1 |= proto.Info1NoBinData
	}

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), info1, 0, 0, 0, 0, 0, fieldCount, 0)
	return off, nil
}

// ParseRecord reconstructs a Record from a scan reply's digest field
// and bin ops. Scanned records carry no original user key on the wire
// (see types.NewKeyFromDigest), only their digest.
func (s *ScanChild) ParseRecord(header proto.ParsedHeader, body []byte) (*types.Record, error) {
	off := 0
	var digest types.Digest
	haveDigest := false
	for i := uint16(0); i < header.FieldCount; i++ {
		field, next, err := proto.ReadField(body, off)
		if err != nil {
			return nil, err
		}
		if field.Type == proto.FieldDigestRipe && len(field.Payload) == types.DigestSize {
			copy(digest[:], field.Payload)
			haveDigest = true
		}
		off = next
	}

	bins := make(map[string]types.Value, header.OpCount)
	for i := uint16(0); i < header.OpCount; i++ {
		op, next, err := proto.ReadOp(body, off)
		if err != nil {
			return nil, err
		}
		off = next
		v, verr := types.ParseValue(types.ParticleType(op.ParticleType), op.Value)
		if verr != nil {
			return nil, verr
		}
		bins[op.Name] = v
	}

	var key types.Key
	if haveDigest {
		key = types.NewKeyFromDigest(s.Namespace, s.Set, digest)
	} else {
		key = types.Key{Namespace: s.Namespace, Set: s.Set}
	}

	return &types.Record{Key: key, Bins: bins, Generation: header.Generation, Expiration: header.Expiration}, nil
}

func (s *ScanChild) TerminationKind() types.Kind { return types.KindScanTerminated }
