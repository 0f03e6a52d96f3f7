package podcrypto

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ursa-labs/ufdp/csrand"
	"github.com/zeebo/blake3"
)

// schnorrChallenge hashes everything publicly available about a block
// (the commitment point, the ciphertext hash, and the request hash) into a
// scalar challenge, using a domain-separated blake3 XOF the same way
// requestInfoOnCurve derives curve points from the request hash.
func schnorrChallenge(commitment [33]byte, ciphertextHash, requestHash [32]byte) secp256k1.ModNScalar {
	h := blake3.NewDeriveKey(schnorrChallengeDomainSep)
	h.Write(commitment[:])
	h.Write(ciphertextHash[:])
	h.Write(requestHash[:])

	var okm [48]byte
	h.Digest().Read(okm[:])

	n := new(big.Int).SetBytes(okm[:])
	n.Mod(n, curveOrder)

	var e secp256k1.ModNScalar
	e.SetByteSlice(leftPad32(n.Bytes()))
	return e
}

// schnorrCommit produces the 64-byte (e, s) commitment tag over a block's
// ciphertext hash and request hash, signed under secret.
func schnorrCommit(secret SecretKey, ciphertextHash, requestHash [32]byte) ([64]byte, error) {
	var tag [64]byte

	var kBuf [32]byte
	if err := csrand.Bytes(kBuf[:]); err != nil {
		return tag, err
	}
	var k secp256k1.ModNScalar
	k.SetBytes(&kBuf)

	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &r)
	r.ToAffine()
	commitment := compress(&r)

	e := schnorrChallenge(commitment, ciphertextHash, requestHash)

	var se secp256k1.ModNScalar
	se.Set(&secret.scalar).Mul(&e)
	s := new(secp256k1.ModNScalar).Set(&k)
	s.Add(se.Negate())

	eBytes := e.Bytes()
	sBytes := s.Bytes()
	copy(tag[0:32], eBytes[:])
	copy(tag[32:64], sBytes[:])
	return tag, nil
}

// VerifySchnorrTag checks the commitment a node attached to a delivered
// block against its own public key. A false result or non-nil error both
// mean the client must not trust the ciphertext it received.
func VerifySchnorrTag(serverPubkey [33]byte, ciphertext []byte, requestHash [32]byte, tag [64]byte) (bool, error) {
	var e, s secp256k1.ModNScalar
	e.SetByteSlice(tag[0:32])
	s.SetByteSlice(tag[32:64])

	p, err := decompress(serverPubkey)
	if err != nil {
		return false, err
	}

	// r' = sG + eP
	var sg, ep, rPrime secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &sg)
	secp256k1.ScalarMultNonConst(&e, p, &ep)
	secp256k1.AddNonConst(&sg, &ep, &rPrime)
	rPrime.ToAffine()
	commitment := compress(&rPrime)

	ciphertextHash := blake3.Sum256(ciphertext)
	expected := schnorrChallenge(commitment, ciphertextHash, requestHash)

	return expected.Equals(&e), nil
}
