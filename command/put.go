package command

import (
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// Put writes one or more bins of a record, honoring Policy's
// RecordExistsAction and Generation for optimistic-concurrency-style
// writes.
type Put struct {
	base     *Base
	Key      types.Key
	Bins     map[string]types.Value
	listener WriteListener
}

func NewPut(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, bins map[string]types.Value, listener WriteListener) *Put {
	p := &Put{Key: key, Bins: bins, listener: listener}
	p.base = NewBase(p, cl, pol, q, sup)
	return p
}

func (p *Put) Run() { p.base.Run() }

func (p *Put) CommandName() string { return "Put" }

func (p *Put) GetNode(c cluster.Cluster) (cluster.Node, error) {
	return c.NodeForKey(p.Key, policy.MASTER)
}

func (p *Put) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(p.Key.Namespace))
	if p.Key.Set != "" {
		size += proto.FieldSize(len(p.Key.Set))
	}
	size += proto.FieldSize(types.DigestSize)
	for name, v := range p.Bins {
		size += proto.OpSize(name, v.EstimateSize())
	}
	return size
}

func (p *Put) WriteBuffer(buf []byte) (int, error) {
	info2 := proto.Info2Write
	switch p.base.pol.RecordExistsAction {
	case policy.EXPECT_GEN_EQUAL:
		info2 |= proto.Info2Generation
	case policy.EXPECT_GEN_GT:
		info2 |= proto.Info2GenerationGT
	case policy.FAIL:
		info2 |= proto.Info2WriteUnique
	}

	fieldCount := uint16(2)
	if p.Key.Set != "" {
		fieldCount++
	}
	opCount := uint16(len(p.Bins))

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(p.Key.Namespace))
	if p.Key.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(p.Key.Set))
	}
	digest := p.Key.Digest()
	off = proto.WriteField(buf, off, proto.FieldDigestRipe, digest[:])

	for name, v := range p.Bins {
		valBuf := make([]byte, v.EstimateSize())
		n, err := v.WriteTo(sliceWriter{valBuf})
		if err != nil {
			return 0, err
		}
		off = proto.WriteOp(buf, off, proto.OpTypeWrite, byte(v.Type()), name, valBuf[:n])
	}

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), 0, info2, 0, p.base.pol.Generation, p.base.pol.Expiration, 0, fieldCount, opCount)
	return off, nil
}

func (p *Put) ParseCommand(header proto.ParsedHeader, _ []byte) error {
	if header.ResultCode != proto.ResultOK {
		return &types.ClientError{Kind: types.KindServerError, ResultCode: header.ResultCode, Msg: "put failed", KeepConn: true}
	}
	return nil
}

func (p *Put) OnSuccess()          { p.listener.OnSuccess() }
func (p *Put) OnFailure(err error) { p.listener.OnFailure(err) }

// sliceWriter adapts a preallocated []byte as an io.Writer sized
// exactly to the payload, avoiding an extra allocation per bin when
// encoding op values.
type sliceWriter struct{ buf []byte }

func (s sliceWriter) Write(p []byte) (int, error) {
	n := copy(s.buf, p)
	return n, nil
}
