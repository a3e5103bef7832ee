package command

import (
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// Touch resets a record's expiration (TTL) to Policy.Expiration
// without transferring any bin data, a no-op-write analogous to Delete
// in wire shape but with the write (not delete) info2 bit set and a
// single touch op carrying no value.
type Touch struct {
	base     *Base
	Key      types.Key
	listener WriteListener
}

func NewTouch(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, listener WriteListener) *Touch {
	t := &Touch{Key: key, listener: listener}
	t.base = NewBase(t, cl, pol, q, sup)
	return t
}

func (t *Touch) Run() { t.base.Run() }

func (t *Touch) CommandName() string { return "Touch" }

func (t *Touch) GetNode(c cluster.Cluster) (cluster.Node, error) {
	return c.NodeForKey(t.Key, policy.MASTER)
}

func (t *Touch) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(t.Key.Namespace))
	if t.Key.Set != "" {
		size += proto.FieldSize(len(t.Key.Set))
	}
	size += proto.FieldSize(types.DigestSize)
	size += proto.OpSize("", 0)
	return size
}

func (t *Touch) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2)
	if t.Key.Set != "" {
		fieldCount++
	}

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(t.Key.Namespace))
	if t.Key.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(t.Key.Set))
	}
	digest := t.Key.Digest()
	off = proto.WriteField(buf, off, proto.FieldDigestRipe, digest[:])
	off = proto.WriteOp(buf, off, proto.OpTypeTouch, 0, "", nil)

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), 0, proto.Info2Write, 0, 0, t.base.pol.Expiration, 0, fieldCount, 1)
	return off, nil
}

func (t *Touch) ParseCommand(header proto.ParsedHeader, _ []byte) error {
	if header.ResultCode != proto.ResultOK {
		return &types.ClientError{Kind: types.KindServerError, ResultCode: header.ResultCode, Msg: "touch failed", KeepConn: true}
	}
	return nil
}

func (t *Touch) OnSuccess()          { t.listener.OnSuccess() }
func (t *Touch) OnFailure(err error) { t.listener.OnFailure(err) }
