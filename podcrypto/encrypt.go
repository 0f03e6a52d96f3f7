package podcrypto

import (
	"fmt"
	"io"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ursa-labs/ufdp/csrand"
	"github.com/zeebo/blake3"
)

// curveOrder is secp256k1's group order n, used to reduce the Schnorr
// challenge's 48-byte OKM into a scalar the same way mapToCurve reduces an
// OKM into a field element.
var curveOrder, _ = new(big.Int).SetString(
	"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// SecretKey is a node's long-lived secp256k1 secret scalar, shared by every
// connection and lane the node serves; it never leaves the node.
type SecretKey struct {
	scalar secp256k1.ModNScalar
}

// NewSecretKey draws a random, non-zero SecretKey.
func NewSecretKey() (SecretKey, error) {
	for {
		var buf [32]byte
		if err := csrand.Bytes(buf[:]); err != nil {
			return SecretKey{}, err
		}
		var s secp256k1.ModNScalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			return SecretKey{scalar: s}, nil
		}
	}
}

// SecretKeyFromBytes rebuilds a SecretKey from a 32-byte scalar, for
// loading a node's identity persisted to disk.
func SecretKeyFromBytes(b [32]byte) (SecretKey, error) {
	var s secp256k1.ModNScalar
	overflow := s.SetBytes(&b)
	if overflow != 0 || s.IsZero() {
		return SecretKey{}, fmt.Errorf("podcrypto: invalid secret key bytes")
	}
	return SecretKey{scalar: s}, nil
}

// Bytes returns the raw 32-byte scalar, for persisting the identity to
// disk. Callers must keep it as confidential as the SecretKey itself.
func (k SecretKey) Bytes() [32]byte {
	return k.scalar.Bytes()
}

// PublicKey returns the compressed point secret*G.
func (k SecretKey) PublicKey() [33]byte {
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k.scalar, &p)
	p.ToAffine()
	return compress(&p)
}

// EncryptBlock runs the full per-block construction: it maps req's hash to
// a curve point, multiplies it by secret to derive the block's keystream
// seed, XORs plaintext under that keystream in strict 64-byte blocks, and
// produces a Schnorr commitment tag over the ciphertext and request hash.
//
// It returns the ciphertext, the 64-byte commitment tag, and the
// compressed shared point (decryptionKey) the node later reveals to the
// client so it can derive the same keystream without ever learning secret.
func EncryptBlock(secret SecretKey, req RequestInfo, plaintext []byte) (ciphertext []byte, tag [64]byte, decryptionKey [33]byte, err error) {
	digest := req.hasher().Digest()

	var reqHash [32]byte
	digest.Read(reqHash[:])

	sharedPoint, err := requestInfoOnCurve(digest)
	if err != nil {
		return nil, tag, decryptionKey, err
	}

	var encKeyPoint secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&secret.scalar, sharedPoint, &encKeyPoint)
	encKeyPoint.ToAffine()
	decryptionKey = compress(&encKeyPoint)

	seed := blake3.Sum256(decryptionKey[:])
	cipher := newHC128(seed)
	ciphertext = make([]byte, len(plaintext))
	cipher.xorKeystream(ciphertext, plaintext)

	ciphertextHash := blake3.Sum256(ciphertext)

	tag, err = schnorrCommit(secret, ciphertextHash, reqHash)
	if err != nil {
		return nil, [64]byte{}, decryptionKey, err
	}
	return ciphertext, tag, decryptionKey, nil
}

// DecryptBlock reverses EncryptBlock given only the revealed decryption
// key point: the client never learns the node's secret scalar.
func DecryptBlock(decryptionKey [33]byte, ciphertext []byte) []byte {
	seed := blake3.Sum256(decryptionKey[:])
	cipher := newHC128(seed)
	plaintext := make([]byte, len(ciphertext))
	cipher.xorKeystream(plaintext, ciphertext)
	return plaintext
}

// requestInfoOnCurve reads two 48-byte OKMs from digest, maps each to a
// curve point, and returns their sum, matching the two-chunk construction
// of the per-block design.
func requestInfoOnCurve(digest io.Reader) (*secp256k1.JacobianPoint, error) {
	var buf [curvePointFieldElementBytes]byte

	if _, err := digest.Read(buf[:]); err != nil {
		return nil, err
	}
	q0 := mapToCurve(buf[:])

	if _, err := digest.Read(buf[:]); err != nil {
		return nil, err
	}
	q1 := mapToCurve(buf[:])

	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(q0, q1, &sum)
	sum.ToAffine()
	return &sum, nil
}

func compress(p *secp256k1.JacobianPoint) [33]byte {
	pk := secp256k1.NewPublicKey(&p.X, &p.Y)
	var out [33]byte
	copy(out[:], pk.SerializeCompressed())
	return out
}

func decompress(b [33]byte) (*secp256k1.JacobianPoint, error) {
	pk, err := secp256k1.ParsePubKey(b[:])
	if err != nil {
		return nil, fmt.Errorf("podcrypto: invalid compressed point: %w", err)
	}
	var p secp256k1.JacobianPoint
	pk.AsJacobian(&p)
	return &p, nil
}
