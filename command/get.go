package command

import (
	"fmt"

	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// Get reads a record, optionally restricted to a set of bin names (all
// bins are read when BinNames is empty).
type Get struct {
	base     *Base
	Key      types.Key
	BinNames []string
	listener GetListener

	result *types.Record
}

// NewGet constructs a Get command. Call Run to execute it; the listener
// is notified exactly once when it completes.
func NewGet(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, binNames []string, listener GetListener) *Get {
	g := &Get{Key: key, BinNames: binNames, listener: listener}
	g.base = NewBase(g, cl, pol, q, sup)
	return g
}

// Run executes the command synchronously on the calling goroutine,
// looping over retries, and returns once the listener has been
// notified. Callers wanting asynchronous behavior should invoke Run on
// their own goroutine.
func (g *Get) Run() { g.base.Run() }

func (g *Get) CommandName() string { return "Get" }

func (g *Get) GetNode(c cluster.Cluster) (cluster.Node, error) {
	return c.NodeForKey(g.Key, g.base.pol.Replica)
}

func (g *Get) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(g.Key.Namespace))
	if g.Key.Set != "" {
		size += proto.FieldSize(len(g.Key.Set))
	}
	size += proto.FieldSize(types.DigestSize)
	for _, name := range g.BinNames {
		size += proto.OpSize(name, 0)
	}
	return size
}

func (g *Get) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2) // namespace + digest
	if g.Key.Set != "" {
		fieldCount++
	}
	opCount := uint16(len(g.BinNames))

	info1 := proto.Info1Read
	if opCount == 0 {
		info1 |= proto.Info1GetAll
	}

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(g.Key.Namespace))
	if g.Key.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(g.Key.Set))
	}
	digest := g.Key.Digest()
	off = proto.WriteField(buf, off, proto.FieldDigestRipe, digest[:])
	for _, name := range g.BinNames {
		off = proto.WriteOp(buf, off, proto.OpTypeRead, 0, name, nil)
	}

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), info1, 0, 0, 0, 0, 0, fieldCount, opCount)
	return off, nil
}

func (g *Get) ParseCommand(header proto.ParsedHeader, body []byte) error {
	if header.ResultCode == proto.ResultKeyNotFound {
		g.result = nil
		return nil
	}
	if header.ResultCode != proto.ResultOK {
		return &types.ClientError{Kind: types.KindServerError, ResultCode: header.ResultCode, Msg: "get failed", KeepConn: true}
	}

	off := 0
	for i := uint16(0); i < header.FieldCount; i++ {
		_, next, err := proto.ReadField(body, off)
		if err != nil {
			return err
		}
		off = next
	}

	bins := make(map[string]types.Value, header.OpCount)
	for i := uint16(0); i < header.OpCount; i++ {
		op, next, err := proto.ReadOp(body, off)
		if err != nil {
			return err
		}
		off = next
		v, verr := types.ParseValue(types.ParticleType(op.ParticleType), op.Value)
		if verr != nil {
			return fmt.Errorf("command: get: bin %q: %w", op.Name, verr)
		}
		bins[op.Name] = v
	}

	g.result = &types.Record{
		Key:        g.Key,
		Bins:       bins,
		Generation: header.Generation,
		Expiration: header.Expiration,
	}
	return nil
}

func (g *Get) OnSuccess()          { g.listener.OnSuccess(g.result) }
func (g *Get) OnFailure(err error) { g.listener.OnFailure(err) }
