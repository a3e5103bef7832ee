package command

import (
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// Delete removes a record. A delete of a key that does not exist is
// not an error -- it succeeds, mirroring Get's
// not-found handling.
type Delete struct {
	base     *Base
	Key      types.Key
	listener WriteListener
}

func NewDelete(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, listener WriteListener) *Delete {
	d := &Delete{Key: key, listener: listener}
	d.base = NewBase(d, cl, pol, q, sup)
	return d
}

func (d *Delete) Run() { d.base.Run() }

func (d *Delete) CommandName() string { return "Delete" }

func (d *Delete) GetNode(c cluster.Cluster) (cluster.Node, error) {
	return c.NodeForKey(d.Key, policy.MASTER)
}

func (d *Delete) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(d.Key.Namespace))
	if d.Key.Set != "" {
		size += proto.FieldSize(len(d.Key.Set))
	}
	size += proto.FieldSize(types.DigestSize)
	return size
}

func (d *Delete) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2)
	if d.Key.Set != "" {
		fieldCount++
	}

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(d.Key.Namespace))
	if d.Key.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(d.Key.Set))
	}
	digest := d.Key.Digest()
	off = proto.WriteField(buf, off, proto.FieldDigestRipe, digest[:])

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), 0, proto.Info2Write|proto.Info2Delete, 0, 0, 0, 0, fieldCount, 0)
	return off, nil
}

func (d *Delete) ParseCommand(header proto.ParsedHeader, _ []byte) error {
	if header.ResultCode != proto.ResultOK && header.ResultCode != proto.ResultKeyNotFound {
		return &types.ClientError{Kind: types.KindServerError, ResultCode: header.ResultCode, Msg: "delete failed", KeepConn: true}
	}
	return nil
}

func (d *Delete) OnSuccess()          { d.listener.OnSuccess() }
func (d *Delete) OnFailure(err error) { d.listener.OnFailure(err) }
