package command

import (
	"fmt"

	"github.com/dkv-io/async-client/internal/multi"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// BatchChild is a multi.ChildRequest reading a set of keys -- assumed
// to share one namespace and set, which is how the wire's single
// DIGEST_RIPE_ARRAY field groups them -- from one node. The client
// (groupBatchChildren) groups a caller's overall key list into one
// BatchChild per (node, namespace, set) before the executor dispatches
// them.
type BatchChild struct {
	Namespace string
	Set       string
	Keys      []types.Key
	BinNames  []string
	// NoBinData suppresses bin data on every reply, the batch analogue
	// of Exists's Info1NoBinData -- a batch existence check reads the
	// same per-key result codes as BatchGet but never pays for bin
	// transfer.
	NoBinData bool

	nextKey int
}

var _ multi.ChildRequest = (*BatchChild)(nil)

func (b *BatchChild) CommandName() string { return "BatchGet" }

func (b *BatchChild) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(b.Namespace))
	if b.Set != "" {
		size += proto.FieldSize(len(b.Set))
	}
	size += proto.FieldSize(len(b.Keys) * types.DigestSize)
	for _, name := range b.BinNames {
		size += proto.OpSize(name, 0)
	}
	return size
}

func (b *BatchChild) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2)
	if b.Set != "" {
		fieldCount++
	}
	opCount := uint16(len(b.BinNames))

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(b.Namespace))
	if b.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(b.Set))
	}

	digests := make([]byte, 0, len(b.Keys)*types.DigestSize)
	for _, k := range b.Keys {
		d := k.Digest()
		digests = append(digests, d[:]...)
	}
	off = proto.WriteField(buf, off, proto.FieldDigestRipeArray, digests)

	info1 := proto.Info1Read
	if opCount == 0 {
		info1 |= proto.Info1GetAll
	}
	if b.NoBinData {
		info1 |= proto.Info1NoBinData
	}
	for _, name := range b.BinNames {
		off = proto.WriteOp(buf, off, proto.OpTypeRead, 0, name, nil)
	}

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), info1, 0, 0, 0, 0, 0, fieldCount, opCount)
	return off, nil
}

// ParseRecord correlates each streamed response with the next key in
// request order, which is the order the server is expected to preserve
// for a digest-array batch request. A ResultKeyNotFound entry is
// reported as a nil record so the caller's result count still matches
// the request's key count: a batch miss is reported as a nil record, not an error.
func (b *BatchChild) ParseRecord(header proto.ParsedHeader, body []byte) (*types.Record, error) {
	if b.nextKey >= len(b.Keys) {
		return nil, fmt.Errorf("command: batch: more records than requested keys")
	}
	key := b.Keys[b.nextKey]
	b.nextKey++

	if header.ResultCode == proto.ResultKeyNotFound {
		return nil, nil
	}
	if header.ResultCode != proto.ResultOK {
		return nil, fmt.Errorf("command: batch: key %d: server result code %d", b.nextKey-1, header.ResultCode)
	}

	off := 0
	for i := uint16(0); i < header.FieldCount; i++ {
		_, next, err := proto.ReadField(body, off)
		if err != nil {
			return nil, err
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

	return &types.Record{Key: key, Bins: bins, Generation: header.Generation, Expiration: header.Expiration}, nil
}

func (b *BatchChild) TerminationKind() types.Kind { return types.KindScanTerminated }
