package command

import (
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// Exists checks whether a record exists without transferring bin
// data, using Info1NoBinData.
type Exists struct {
	base     *Base
	Key      types.Key
	listener ExistsListener

	found bool
}

func NewExists(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, listener ExistsListener) *Exists {
	e := &Exists{Key: key, listener: listener}
	e.base = NewBase(e, cl, pol, q, sup)
	return e
}

func (e *Exists) Run() { e.base.Run() }

func (e *Exists) CommandName() string { return "Exists" }

func (e *Exists) GetNode(c cluster.Cluster) (cluster.Node, error) {
	return c.NodeForKey(e.Key, e.base.pol.Replica)
}

func (e *Exists) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(e.Key.Namespace))
	if e.Key.Set != "" {
		size += proto.FieldSize(len(e.Key.Set))
	}
	size += proto.FieldSize(types.DigestSize)
	return size
}

func (e *Exists) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2)
	if e.Key.Set != "" {
		fieldCount++
	}

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(e.Key.Namespace))
	if e.Key.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(e.Key.Set))
	}
	digest := e.Key.Digest()
	off = proto.WriteField(buf, off, proto.FieldDigestRipe, digest[:])

	info1 := proto.Info1Read | proto.Info1GetAll | proto.Info1NoBinData
	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), info1, 0, 0, 0, 0, 0, fieldCount, 0)
	return off, nil
}

func (e *Exists) ParseCommand(header proto.ParsedHeader, _ []byte) error {
	switch header.ResultCode {
	case proto.ResultOK:
		e.found = true
		return nil
	case proto.ResultKeyNotFound:
		e.found = false
		return nil
	default:
		return &types.ClientError{Kind: types.KindServerError, ResultCode: header.ResultCode, Msg: "exists failed", KeepConn: true}
	}
}

func (e *Exists) OnSuccess()          { e.listener.OnSuccess(e.found) }
func (e *Exists) OnFailure(err error) { e.listener.OnFailure(err) }
