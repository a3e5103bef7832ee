package command

import (
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// concatDirection selects whether a Concat command appends or prepends
// its value to the existing bin.
type concatDirection byte

const (
	directionAppend concatDirection = iota
	directionPrepend
)

// Concat implements the Append and Prepend operations supplementary to
// the distilled spec (SPEC_FULL.md's SUPPLEMENTED FEATURES): a
// single-bin, single-op write that concatenates a value onto the
// existing bin rather than replacing it. Structurally identical to Put
// except for the op type written.
type Concat struct {
	base      *Base
	Key       types.Key
	Bin       string
	Value     types.Value
	direction concatDirection
	listener  WriteListener
}

func NewAppend(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, bin string, value types.Value, listener WriteListener) *Concat {
	return newConcat(cl, pol, q, sup, key, bin, value, directionAppend, listener)
}

func NewPrepend(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, bin string, value types.Value, listener WriteListener) *Concat {
	return newConcat(cl, pol, q, sup, key, bin, value, directionPrepend, listener)
}

func newConcat(cl cluster.Cluster, pol policy.Policy, q *admission.Queue, sup *timeout.Supervisor, key types.Key, bin string, value types.Value, dir concatDirection, listener WriteListener) *Concat {
	c := &Concat{Key: key, Bin: bin, Value: value, direction: dir, listener: listener}
	c.base = NewBase(c, cl, pol, q, sup)
	return c
}

func (c *Concat) Run() { c.base.Run() }

func (c *Concat) CommandName() string {
	if c.direction == directionPrepend {
		return "Prepend"
	}
	return "Append"
}

func (c *Concat) GetNode(cl cluster.Cluster) (cluster.Node, error) {
	return cl.NodeForKey(c.Key, policy.MASTER)
}

func (c *Concat) EstimateSize() int {
	size := proto.HeaderSize + proto.CommandHeaderSize
	size += proto.FieldSize(len(c.Key.Namespace))
	if c.Key.Set != "" {
		size += proto.FieldSize(len(c.Key.Set))
	}
	size += proto.FieldSize(types.DigestSize)
	size += proto.OpSize(c.Bin, c.Value.EstimateSize())
	return size
}

func (c *Concat) WriteBuffer(buf []byte) (int, error) {
	fieldCount := uint16(2)
	if c.Key.Set != "" {
		fieldCount++
	}

	off := proto.HeaderSize + proto.CommandHeaderSize
	off = proto.WriteField(buf, off, proto.FieldNamespace, []byte(c.Key.Namespace))
	if c.Key.Set != "" {
		off = proto.WriteField(buf, off, proto.FieldTable, []byte(c.Key.Set))
	}
	digest := c.Key.Digest()
	off = proto.WriteField(buf, off, proto.FieldDigestRipe, digest[:])

	valBuf := make([]byte, c.Value.EstimateSize())
	n, err := c.Value.WriteTo(sliceWriter{valBuf})
	if err != nil {
		return 0, err
	}
	opType := proto.OpTypeAppend
	if c.direction == directionPrepend {
		opType = proto.OpTypePrepend
	}
	off = proto.WriteOp(buf, off, opType, byte(c.Value.Type()), c.Bin, valBuf[:n])

	proto.WriteHeader(buf, uint64(off-proto.HeaderSize), 0, proto.Info2Write, 0, 0, 0, 0, fieldCount, 1)
	return off, nil
}

func (c *Concat) ParseCommand(header proto.ParsedHeader, _ []byte) error {
	if header.ResultCode != proto.ResultOK {
		return &types.ClientError{Kind: types.KindServerError, ResultCode: header.ResultCode, Msg: c.CommandName() + " failed", KeepConn: true}
	}
	return nil
}

func (c *Concat) OnSuccess()          { c.listener.OnSuccess() }
func (c *Concat) OnFailure(err error) { c.listener.OnFailure(err) }
