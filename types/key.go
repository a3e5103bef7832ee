package types

import (
	"crypto/sha1"
)

// DigestSize is the fixed length of a record digest, in bytes.
const DigestSize = 20

// Digest uniquely identifies a record within a namespace; it is
// derived deterministically from (set, userKey).
type Digest [DigestSize]byte

// Key identifies a record: a namespace, a set (may be empty for the
// default set), a user-supplied key, and the digest computed from the
// set and user key. The digest is what travels on the wire and what
// defines record identity for routing and equality purposes.
type Key struct {
	Namespace string
	Set       string
	UserKey   Value
	digest    Digest
}

// NewKey builds a Key and computes its digest. NewKey does not check
// userKey's kind: ComputeDigest hashes the particle type and encoded
// bytes of any Value, so every kind yields a digest.
func NewKey(namespace, set string, userKey Value) Key {
	return Key{
		Namespace: namespace,
		Set:       set,
		UserKey:   userKey,
		digest:    ComputeDigest(set, userKey),
	}
}

// Digest returns the 20-byte digest identifying this key on the wire.
func (k Key) Digest() Digest {
	return k.digest
}

// NewKeyFromDigest builds a Key directly from a wire digest, with no
// UserKey, for records arriving from a scan or query: the server
// streams a record's digest and namespace/set but never its original
// user key, since digest-only identity is all routing and dedup need.
// Callers needing the original user key back must maintain that
// mapping themselves; that reverse lookup is out of scope here.
func NewKeyFromDigest(namespace, set string, digest Digest) Key {
	return Key{Namespace: namespace, Set: set, UserKey: NullValue{}, digest: digest}
}

// Equal compares two keys by digest and namespace, which is the only
// comparison the server actually performs.
func (k Key) Equal(other Key) bool {
	return k.Namespace == other.Namespace && k.digest == other.digest
}

// ComputeDigest derives the 20-byte record digest from the set name and
// user key, using RIPEMD-like SHA1 hashing over set||keyType||keyBytes,
// matching the DIGEST_RIPE wire field's documented length. SHA1 is used
// here because it produces the required 20-byte output deterministically,
// which is all identity equality on the wire needs.
func ComputeDigest(set string, userKey Value) Digest {
	h := sha1.New()
	h.Write([]byte(set))
	h.Write([]byte{byte(userKey.Type())})
	_, _ = userKey.WriteTo(h)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
