// Package podcrypto implements the per-block cryptography that backs
// pay-per-key delivery: a request is hashed into key material with a blake3
// XOF, that material is mapped onto the secp256k1 curve and combined with
// the node's secret to derive an HC-128 keystream seed, and the resulting
// ciphertext is committed to with a Schnorr signature so the client can
// verify the node didn't tamper with what it delivered.
package podcrypto

import (
	"encoding/binary"

	"github.com/ursa-labs/ufdp/csrand"
	"github.com/zeebo/blake3"
)

// Domain separators for the two blake3 derive-key hashers this package
// uses. Keeping them distinct means a request-info hash can never be
// mistaken for a Schnorr challenge even if the underlying bytes collided.
const (
	requestInfoHashDomainSep    = "FLEEK_NETWORK_POD_REQUEST_HASH"
	schnorrChallengeDomainSep   = "FLEEK_NETWORK_POD_SCHNORR_CHALLENGE"
	requestInfoHashSize         = 32
	curvePointFieldElementBytes = 48
)

// RequestInfo identifies exactly which bytes of which content a block
// belongs to. Both sides derive the same keystream seed from it, so every
// field must match byte for byte between client and node.
type RequestInfo struct {
	ContentID ContentID
	Client    ClientID
	Time      uint64
	FromBytes uint64
	ToBytes   uint64
}

// ContentID and ClientID alias the 32-byte identifiers RequestInfo hashes;
// defined here rather than imported from frame to keep podcrypto free of a
// dependency on the wire codec.
type (
	ContentID = [32]byte
	ClientID  = [32]byte
)

// hasher returns a fresh blake3 derive-key hasher over RequestInfo's
// fields. The first 32 bytes of its Digest are the request's hash; the
// bytes read after that from the same Digest feed the hash-to-curve step,
// as EncryptBlock does.
func (r RequestInfo) hasher() *blake3.Hasher {
	h := blake3.NewDeriveKey(requestInfoHashDomainSep)
	binary.Write(h, binary.BigEndian, struct {
		CID, Client [32]byte
		Time, From, To uint64
	}{r.ContentID, r.Client, r.Time, r.FromBytes, r.ToBytes})
	return h
}

// Hash returns the request's blake3 derive-key hash: the first 32 bytes of
// the same XOF stream EncryptBlock draws its curve points from.
func (r RequestInfo) Hash() [32]byte {
	var out [32]byte
	d := r.hasher().Digest()
	d.Read(out[:])
	return out
}

// RandomRequestInfo returns a RequestInfo populated with random identifiers
// and a full-block byte range, for use in tests and benchmarks.
func RandomRequestInfo() (RequestInfo, error) {
	var r RequestInfo
	if err := csrand.Bytes(r.ContentID[:]); err != nil {
		return RequestInfo{}, err
	}
	if err := csrand.Bytes(r.Client[:]); err != nil {
		return RequestInfo{}, err
	}
	var buf [8]byte
	if err := csrand.Bytes(buf[:]); err != nil {
		return RequestInfo{}, err
	}
	r.Time = binary.BigEndian.Uint64(buf[:])
	r.FromBytes = 0
	r.ToBytes = 256 * 1024 * 1024
	return r, nil
}
