package multi

import (
	"time"

	"github.com/dkv-io/async-client/internal/buffer"
	"github.com/dkv-io/async-client/internal/netio"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

// ChildRequest is what a batch/scan/query child supplies to a
// MultiCommand: how to build the outgoing request and how to turn one
// streamed record body into a *types.Record.
type ChildRequest interface {
	CommandName() string
	EstimateSize() int
	WriteBuffer(buf []byte) (int, error)
	// ParseRecord decodes one streamed result. Returning (nil, nil)
	// means this message's slot is a found-absent result (e.g. a batch
	// miss) rather than "no record" -- it still occupies one place in
	// the delivered order and must be pushed to the RecordSet like any
	// other result. Returning a non-nil error aborts the stream.
	ParseRecord(header proto.ParsedHeader, body []byte) (*types.Record, error)
	// TerminationKind classifies a consumer-driven Stop for this kind
	// of child (KindScanTerminated or KindQueryTerminated); batch
	// children, which are not normally stopped mid-stream, may return
	// KindScanTerminated as a reasonable default.
	TerminationKind() types.Kind
}

// MultiCommand drives one node-scoped streamed request to completion,
// pushing each parsed record into a RecordSet until the server signals
// INFO3_LAST. Unlike command.Base, a MultiCommand makes a single
// attempt: a failure ends the child's stream with an error, and
// executor.MultiExecutor does not retry the child either.
type MultiCommand struct {
	conn    *netio.Connection
	bufPool *buffer.Pool
	req     ChildRequest
	set     *RecordSet
}

// NewMultiCommand builds a MultiCommand bound to an already-acquired
// connection and destination RecordSet.
func NewMultiCommand(conn *netio.Connection, bufPool *buffer.Pool, req ChildRequest, set *RecordSet) *MultiCommand {
	return &MultiCommand{conn: conn, bufPool: bufPool, req: req, set: set}
}

// Run executes the request and streams records until INFO3_LAST, a
// failure, or a consumer Stop. It always calls the RecordSet's finish
// exactly once before returning, and returns the same error (if any)
// that was recorded on the set via fail, so the executor can decide
// whether the child's node connection is still healthy.
func (m *MultiCommand) Run(deadline time.Time) error {
	defer m.set.finish()

	seg := m.bufPool.GetNext(m.req.EstimateSize())
	n, werr := m.req.WriteBuffer(seg.Bytes())
	if werr != nil {
		cerr := types.Wrap(types.KindSerialize, werr, "write_buffer failed")
		m.set.Fail(cerr)
		return cerr
	}

	if err := m.conn.Send(seg.Bytes()[:n], deadline); err != nil {
		cerr := types.ClassifyIOError(err)
		m.set.Fail(cerr)
		return cerr
	}

	header := make([]byte, proto.HeaderSize)
	for {
		if m.set.stopped() {
			cerr := types.New(m.req.TerminationKind(), "stream stopped by caller")
			m.set.Fail(cerr)
			return cerr
		}

		if err := m.conn.Recv(header, deadline); err != nil {
			cerr := types.ClassifyIOError(err)
			m.set.Fail(cerr)
			return cerr
		}
		l, herr := proto.ReadOuterHeader(header)
		if herr != nil {
			cerr := types.Wrap(types.KindParse, herr, "malformed outer header")
			m.set.Fail(cerr)
			return cerr
		}
		if l == 0 {
			continue // keep-alive
		}

		if int(l) > seg.Size {
			seg.Grow(int(l), m.bufPool)
		}
		body := seg.Bytes()[:l]
		if err := m.conn.Recv(body, deadline); err != nil {
			cerr := types.ClassifyIOError(err)
			m.set.Fail(cerr)
			return cerr
		}

		cmdHeader, perr := proto.ParseCommandHeader(body)
		if perr != nil {
			cerr := types.Wrap(types.KindParse, perr, "malformed command header")
			m.set.Fail(cerr)
			return cerr
		}

		if cmdHeader.Info3&proto.Info3Last != 0 {
			return nil
		}

		// Per-record result codes (e.g. a batch miss) are the
		// ChildRequest's call, not a generic stream failure here --
		// ParseRecord decides whether a given code is fatal (non-nil
		// error, abort stream) or a found-absent slot (nil record, nil
		// error) that must still be delivered in order.

		rec, rerr := m.req.ParseRecord(cmdHeader, body[proto.CommandHeaderSize:])
		if rerr != nil {
			cerr := types.Wrap(types.KindParse, rerr, "malformed record")
			m.set.Fail(cerr)
			return cerr
		}
		if !m.set.Push(rec) {
			continue // consumer-initiated stop: the record is dropped and the set.stopped check at the top of the loop records the termination
		}
	}
}
