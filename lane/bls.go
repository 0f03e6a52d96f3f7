package lane

import (
	"fmt"

	bls12381 "github.com/kilic/bls12-381"
	"github.com/ursa-labs/ufdp/csrand"
	"github.com/ursa-labs/ufdp/frame"
)

// blsSigDomain is the hash-to-curve domain separation tag for lane
// delivery acknowledgments, distinguishing them from any other signature
// this BLS keypair might ever be asked to produce.
var blsSigDomain = []byte("UFDP_LANE_DELIVERY_ACK_V1")

// BLSKey is a client's min-pubkey-size BLS12-381 keypair: a 32-byte
// scalar and its G1 public point, the counterpart this package's
// verifyAggregateSignature checks delivery acknowledgments against.
type BLSKey struct {
	scalar bls12381.Fr
	pub    frame.BlsPublicKey
}

// NewBLSKey draws a fresh, random BLSKey.
func NewBLSKey() (BLSKey, error) {
	key, _, err := NewBLSKeyWithSeed()
	return key, err
}

// NewBLSKeyWithSeed draws a fresh, random BLSKey and also returns the
// 32-byte seed it was derived from, so a caller can persist it and
// reconstruct the same key later via BLSKeyFromSeed.
func NewBLSKeyWithSeed() (BLSKey, [32]byte, error) {
	var buf [32]byte
	for {
		if err := csrand.Bytes(buf[:]); err != nil {
			return BLSKey{}, buf, err
		}
		scalar := bls12381.NewFr().SetBytes(buf[:])
		if !scalar.IsZero() {
			key, err := newBLSKeyFromScalar(scalar)
			return key, buf, err
		}
	}
}

// BLSKeyFromSeed deterministically derives a BLSKey from a 32-byte seed,
// for loading an identity persisted to disk.
func BLSKeyFromSeed(seed [32]byte) (BLSKey, error) {
	scalar := bls12381.NewFr().SetBytes(seed[:])
	if scalar.IsZero() {
		return BLSKey{}, fmt.Errorf("lane: zero BLS scalar from seed")
	}
	return newBLSKeyFromScalar(scalar)
}

func newBLSKeyFromScalar(scalar *bls12381.Fr) (BLSKey, error) {
	g1 := bls12381.NewG1()
	pubPoint := g1.New()
	g1.MulScalar(pubPoint, g1.One(), scalar)

	var pub frame.BlsPublicKey
	copy(pub[:], g1.ToCompressed(pubPoint))
	return BLSKey{scalar: *scalar, pub: pub}, nil
}

// PublicKey returns the compressed G1 point.
func (k BLSKey) PublicKey() frame.BlsPublicKey { return k.pub }

// Sign produces a BLS signature over message, matching the domain
// verifyAggregateSignature hashes to curve under.
func (k BLSKey) Sign(message []byte) (frame.BlsSignature, error) {
	var sig frame.BlsSignature

	g2 := bls12381.NewG2()
	hashPoint, err := g2.HashToCurve(message, blsSigDomain)
	if err != nil {
		return sig, err
	}

	sigPoint := g2.New()
	g2.MulScalar(sigPoint, hashPoint, &k.scalar)
	copy(sig[:], g2.ToCompressed(sigPoint))
	return sig, nil
}

// verifyAggregateSignature checks a min-pubkey-size BLS12-381 signature
// (48-byte G1 public key, 96-byte G2 signature) over message, using the
// standard two-pairing check e(pubkey, H(m)) * e(-G1, sig) == 1, which
// holds iff e(pubkey, H(m)) == e(G1, sig) — the signature equation for a
// secret key s with pubkey = s*G1 and sig = s*H(m).
func verifyAggregateSignature(pubkey frame.BlsPublicKey, message []byte, sig frame.BlsSignature) (bool, error) {
	g1 := bls12381.NewG1()
	pk, err := g1.FromCompressed(pubkey[:])
	if err != nil {
		return false, err
	}

	g2 := bls12381.NewG2()
	sigPoint, err := g2.FromCompressed(sig[:])
	if err != nil {
		return false, err
	}

	hashPoint, err := g2.HashToCurve(message, blsSigDomain)
	if err != nil {
		return false, err
	}

	negG1 := g1.New()
	g1.Neg(negG1, g1.One())

	engine := bls12381.NewEngine()
	engine.AddPair(pk, hashPoint)
	engine.AddPair(negG1, sigPoint)
	return engine.Result().IsOne(), nil
}
