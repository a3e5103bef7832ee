// Package faketest implements a minimal in-process TCP node: just
// enough of the wire protocol to drive every command this client
// issues (Get/Put/Delete/Exists/Append/Prepend/Touch as a single
// request/response frame, Batch/Scan/Query as a streamed reply
// terminated by INFO3_LAST) against a real net.Conn. Tests that dial
// against a Server exercise the actual encode/decode path in proto and
// command, not a mock of it.
//
// Grounded on the wire contract command/state.go's Base.attempt and
// internal/multi/command.go's MultiCommand.Run actually speak: this
// server implements the peer side of exactly that contract and nothing
// more.
package faketest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

var errShortRangeFilter = errors.New("faketest: short INDEX_RANGE payload")

type recordKey struct {
	namespace string
	set       string
	digest    types.Digest
}

type storedRecord struct {
	bins       map[string]types.Value
	generation uint32
	expiration uint32
}

// Server is a single fake node: a TCP listener plus an in-memory record
// store.
type Server struct {
	ln net.Listener

	mu           sync.Mutex
	records      map[recordKey]*storedRecord
	failNextN    int
	delayNextN   int
	responseWait time.Duration
}

// New starts a Server listening on an ephemeral localhost port.
func New() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, records: make(map[recordKey]*storedRecord)}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the host:port a client should dial.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops accepting connections.
func (s *Server) Close() error { return s.ln.Close() }

// Seed inserts a record directly into the store, bypassing the wire
// protocol, so a test can set up fixtures before issuing a read.
func (s *Server) Seed(namespace, set string, key types.Key, bins map[string]types.Value, generation, expiration uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{namespace: namespace, set: set, digest: key.Digest()}] = &storedRecord{
		bins: bins, generation: generation, expiration: expiration,
	}
}

// FailNext makes the next n accepted requests close the connection
// immediately after reading the request, without replying -- used to
// drive the command layer's retry and timeout paths.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	s.failNextN = n
	s.mu.Unlock()
}

// DelayNext makes the next n requests sleep for wait before replying,
// used to trigger the TimeoutSupervisor against a short-timeout Policy
// without actually dropping the connection.
func (s *Server) DelayNext(n int, wait time.Duration) {
	s.mu.Lock()
	s.delayNextN = n
	s.responseWait = wait
	s.mu.Unlock()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	for {
		header := make([]byte, proto.HeaderSize)
		if err := readFull(conn, header); err != nil {
			return
		}
		length, err := proto.ReadOuterHeader(header)
		if err != nil {
			return
		}
		if length == 0 {
			continue
		}
		body := make([]byte, length)
		if err := readFull(conn, body); err != nil {
			return
		}

		if s.shouldDrop() {
			return
		}
		if wait := s.consumeDelay(); wait > 0 {
			time.Sleep(wait)
		}

		cmdHeader, err := proto.ParseCommandHeader(body)
		if err != nil {
			return
		}
		if err := s.dispatch(conn, cmdHeader, body[proto.CommandHeaderSize:]); err != nil {
			return
		}
	}
}

func (s *Server) shouldDrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextN <= 0 {
		return false
	}
	s.failNextN--
	return true
}

func (s *Server) consumeDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delayNextN <= 0 {
		return 0
	}
	s.delayNextN--
	return s.responseWait
}

func readFull(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func (s *Server) dispatch(conn net.Conn, h proto.ParsedHeader, body []byte) error {
	fields, off, err := parseFields(body, h.FieldCount)
	if err != nil {
		return err
	}
	ops, err := parseOps(body, off, h.OpCount)
	if err != nil {
		return err
	}

	var namespace, set string
	var digest types.Digest
	var digestArray, rangeFilter []byte
	haveDigest, haveArray, haveRange := false, false, false

	for _, f := range fields {
		switch f.Type {
		case proto.FieldNamespace:
			namespace = string(f.Payload)
		case proto.FieldTable:
			set = string(f.Payload)
		case proto.FieldDigestRipe:
			copy(digest[:], f.Payload)
			haveDigest = true
		case proto.FieldDigestRipeArray:
			digestArray = f.Payload
			haveArray = true
		case proto.FieldIndexRange:
			rangeFilter = f.Payload
			haveRange = true
		}
	}

	switch {
	case h.Info2&proto.Info2Delete != 0:
		return s.handleDelete(conn, namespace, set, digest)
	case h.Info2&proto.Info2Write != 0:
		return s.handleWrite(conn, namespace, set, digest, ops, h.Expiration)
	case haveArray:
		return s.handleBatch(conn, namespace, set, digestArray, ops)
	case haveRange:
		return s.handleQuery(conn, namespace, set, rangeFilter)
	case haveDigest && h.Info1&proto.Info1NoBinData != 0:
		return s.handleExists(conn, namespace, set, digest)
	case haveDigest:
		return s.handleGet(conn, namespace, set, digest, ops)
	default:
		return s.handleScan(conn, namespace, set)
	}
}

func parseFields(body []byte, count uint16) ([]proto.ParsedField, int, error) {
	off := 0
	fields := make([]proto.ParsedField, 0, count)
	for i := uint16(0); i < count; i++ {
		f, next, err := proto.ReadField(body, off)
		if err != nil {
			return nil, 0, err
		}
		fields = append(fields, f)
		off = next
	}
	return fields, off, nil
}

func parseOps(body []byte, off int, count uint16) ([]proto.ParsedOp, error) {
	ops := make([]proto.ParsedOp, 0, count)
	for i := uint16(0); i < count; i++ {
		op, next, err := proto.ReadOp(body, off)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		off = next
	}
	return ops, nil
}

func (s *Server) lookup(namespace, set string, digest types.Digest) (*storedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordKey{namespace: namespace, set: set, digest: digest}]
	return r, ok
}

func (s *Server) handleGet(conn net.Conn, namespace, set string, digest types.Digest, reqOps []proto.ParsedOp) error {
	rec, ok := s.lookup(namespace, set, digest)
	if !ok {
		return writeRecordFrame(conn, proto.ResultKeyNotFound, false, false, nil, 0, 0, nil)
	}
	return writeRecordFrame(conn, proto.ResultOK, false, false, nil, rec.generation, rec.expiration, selectBins(rec.bins, reqOps))
}

func (s *Server) handleExists(conn net.Conn, namespace, set string, digest types.Digest) error {
	if _, ok := s.lookup(namespace, set, digest); ok {
		return writeRecordFrame(conn, proto.ResultOK, false, false, nil, 0, 0, nil)
	}
	return writeRecordFrame(conn, proto.ResultKeyNotFound, false, false, nil, 0, 0, nil)
}

func (s *Server) handleDelete(conn net.Conn, namespace, set string, digest types.Digest) error {
	s.mu.Lock()
	delete(s.records, recordKey{namespace: namespace, set: set, digest: digest})
	s.mu.Unlock()
	return writeRecordFrame(conn, proto.ResultOK, false, false, nil, 0, 0, nil)
}

func (s *Server) handleWrite(conn net.Conn, namespace, set string, digest types.Digest, ops []proto.ParsedOp, expiration uint32) error {
	s.mu.Lock()
	rk := recordKey{namespace: namespace, set: set, digest: digest}
	rec, ok := s.records[rk]
	if !ok {
		rec = &storedRecord{bins: make(map[string]types.Value)}
		s.records[rk] = rec
	}

	for _, op := range ops {
		v, err := types.ParseValue(types.ParticleType(op.ParticleType), op.Value)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		switch op.OpType {
		case proto.OpTypeWrite:
			rec.bins[op.Name] = v
		case proto.OpTypeAppend:
			rec.bins[op.Name] = concatValue(rec.bins[op.Name], v, false)
		case proto.OpTypePrepend:
			rec.bins[op.Name] = concatValue(rec.bins[op.Name], v, true)
		case proto.OpTypeTouch:
			// carries no value; expiration alone changes below.
		}
	}
	rec.generation++
	rec.expiration = expiration
	s.mu.Unlock()

	return writeRecordFrame(conn, proto.ResultOK, false, false, nil, 0, 0, nil)
}

// concatValue joins existing onto added (or added onto existing, if
// prepend), falling back to added untouched when there is no existing
// string value to join -- the fake store only honors concatenation for
// StringValue, which is all this client's Append/Prepend commands
// exercise.
func concatValue(existing types.Value, added types.Value, prepend bool) types.Value {
	cur, ok := existing.(types.StringValue)
	if !ok {
		return added
	}
	next, ok := added.(types.StringValue)
	if !ok {
		return added
	}
	if prepend {
		return next + cur
	}
	return cur + next
}

func (s *Server) handleBatch(conn net.Conn, namespace, set string, digestArray []byte, reqOps []proto.ParsedOp) error {
	for off := 0; off+types.DigestSize <= len(digestArray); off += types.DigestSize {
		var d types.Digest
		copy(d[:], digestArray[off:off+types.DigestSize])
		rec, ok := s.lookup(namespace, set, d)
		if !ok {
			if err := writeRecordFrame(conn, proto.ResultKeyNotFound, false, false, nil, 0, 0, nil); err != nil {
				return err
			}
			continue
		}
		if err := writeRecordFrame(conn, proto.ResultOK, false, false, nil, rec.generation, rec.expiration, selectBins(rec.bins, reqOps)); err != nil {
			return err
		}
	}
	return writeRecordFrame(conn, proto.ResultOK, true, false, nil, 0, 0, nil)
}

func (s *Server) handleScan(conn net.Conn, namespace, set string) error {
	for _, rk := range s.matching(namespace, set) {
		rec, _ := s.lookup(rk.namespace, rk.set, rk.digest)
		d := rk.digest
		if err := writeRecordFrame(conn, proto.ResultOK, false, true, &d, rec.generation, rec.expiration, rec.bins); err != nil {
			return err
		}
	}
	return writeRecordFrame(conn, proto.ResultOK, true, false, nil, 0, 0, nil)
}

func (s *Server) handleQuery(conn net.Conn, namespace, set string, rangeFilter []byte) error {
	binName, min, max, err := parseRangeFilter(rangeFilter)
	if err != nil {
		return err
	}
	for _, rk := range s.matching(namespace, set) {
		rec, _ := s.lookup(rk.namespace, rk.set, rk.digest)
		if !withinRange(rec.bins[binName], min, max) {
			continue
		}
		d := rk.digest
		if err := writeRecordFrame(conn, proto.ResultOK, false, true, &d, rec.generation, rec.expiration, rec.bins); err != nil {
			return err
		}
	}
	return writeRecordFrame(conn, proto.ResultOK, true, false, nil, 0, 0, nil)
}

func withinRange(v types.Value, min, max int64) bool {
	switch n := v.(type) {
	case types.IntValue:
		return int64(n) >= min && int64(n) <= max
	case types.UintValue:
		return int64(n) >= min && int64(n) <= max
	default:
		return false
	}
}

func parseRangeFilter(payload []byte) (name string, min, max int64, err error) {
	if len(payload) < 1 {
		return "", 0, 0, errShortRangeFilter
	}
	nameLen := int(payload[0])
	if 1+nameLen+16 > len(payload) {
		return "", 0, 0, errShortRangeFilter
	}
	name = string(payload[1 : 1+nameLen])
	min = int64(binary.BigEndian.Uint64(payload[1+nameLen:]))
	max = int64(binary.BigEndian.Uint64(payload[1+nameLen+8:]))
	return name, min, max, nil
}

// matching returns every stored key under namespace/set, sorted by
// digest for deterministic scan/query ordering in tests.
func (s *Server) matching(namespace, set string) []recordKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordKey, 0)
	for rk := range s.records {
		if rk.namespace == namespace && rk.set == set {
			out = append(out, rk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].digest[:], out[j].digest[:]) < 0 })
	return out
}

func selectBins(bins map[string]types.Value, reqOps []proto.ParsedOp) map[string]types.Value {
	if len(reqOps) == 0 {
		return bins
	}
	out := make(map[string]types.Value, len(reqOps))
	for _, op := range reqOps {
		if v, ok := bins[op.Name]; ok {
			out[op.Name] = v
		}
	}
	return out
}

// writeRecordFrame encodes and sends one command-header response frame:
// an optional digest field (scan/query record identity), plus one op
// per bin. last sets INFO3_LAST for the streamed multi-record
// protocol; single-record commands ignore it since command.Base never
// inspects INFO3.
func writeRecordFrame(conn net.Conn, resultCode int, last, withDigest bool, digest *types.Digest, generation, expiration uint32, bins map[string]types.Value) error {
	names := make([]string, 0, len(bins))
	for name := range bins {
		names = append(names, name)
	}
	sort.Strings(names)

	fieldCount := 0
	fieldsSize := 0
	if withDigest {
		fieldCount++
		fieldsSize += proto.FieldSize(types.DigestSize)
	}

	opCount := 0
	opsSize := 0
	encoded := make([][]byte, len(names))
	for i, name := range names {
		var buf bytes.Buffer
		if _, err := bins[name].WriteTo(&buf); err != nil {
			return err
		}
		encoded[i] = buf.Bytes()
		opsSize += proto.OpSize(name, len(encoded[i]))
		opCount++
	}

	size := proto.HeaderSize + proto.CommandHeaderSize + fieldsSize + opsSize
	out := make([]byte, size)
	off := proto.HeaderSize + proto.CommandHeaderSize
	if withDigest && digest != nil {
		off = proto.WriteField(out, off, proto.FieldDigestRipe, digest[:])
	}
	for i, name := range names {
		off = proto.WriteOp(out, off, proto.OpTypeWrite, byte(bins[name].Type()), name, encoded[i])
	}

	var info3 byte
	if last {
		info3 = proto.Info3Last
	}
	proto.WriteHeader(out, uint64(off-proto.HeaderSize), 0, 0, info3, generation, expiration, 0, uint16(fieldCount), uint16(opCount))
	out[proto.HeaderSize+5] = byte(resultCode)

	_, err := conn.Write(out[:off])
	return err
}
