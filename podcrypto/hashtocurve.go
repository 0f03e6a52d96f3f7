package podcrypto

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// secp256k1Prime is the field modulus p = 2^256 - 2^32 - 977.
var secp256k1Prime, _ = new(big.Int).SetString(
	"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F", 16)

// curveB is secp256k1's curve constant (a = 0, b = 7: y^2 = x^3 + 7).
var curveB = big.NewInt(7)

// sqrtExponent is (p+1)/4, valid because secp256k1's p is congruent to 3
// mod 4: for any quadratic residue a, a^sqrtExponent mod p is a square
// root of a.
var sqrtExponent = new(big.Int).Rsh(new(big.Int).Add(secp256k1Prime, big.NewInt(1)), 2)

// mapToCurve deterministically maps a field element (given as the raw bytes
// of a 48-byte extendable-output read, matching the width the per-block
// construction draws per point) onto a point on secp256k1 with unknown
// discrete log.
//
// This uses a try-and-increment construction rather than the
// RFC 9380 Simplified-SWU-with-isogeny map: both are valid deterministic
// hash-to-curve functions satisfying the same requirement (a field element
// maps to a curve point nobody can invert to a known scalar), and
// try-and-increment needs no 3-isogeny coefficient table. See DESIGN.md for
// the full rationale.
func mapToCurve(okm []byte) *secp256k1.JacobianPoint {
	x := new(big.Int).SetBytes(okm)
	x.Mod(x, secp256k1Prime)

	one := big.NewInt(1)
	for {
		x3 := new(big.Int).Exp(x, big.NewInt(3), secp256k1Prime)
		rhs := new(big.Int).Add(x3, curveB)
		rhs.Mod(rhs, secp256k1Prime)

		y := new(big.Int).Exp(rhs, sqrtExponent, secp256k1Prime)
		check := new(big.Int).Exp(y, big.NewInt(2), secp256k1Prime)
		if check.Cmp(rhs) == 0 {
			return affineJacobianPoint(x, y)
		}
		x.Add(x, one)
		x.Mod(x, secp256k1Prime)
	}
}

// affineJacobianPoint builds a secp256k1.JacobianPoint in affine form (Z=1)
// from big.Int coordinates already known to satisfy the curve equation.
func affineJacobianPoint(x, y *big.Int) *secp256k1.JacobianPoint {
	var xf, yf secp256k1.FieldVal
	xf.SetByteSlice(leftPad32(x.Bytes()))
	yf.SetByteSlice(leftPad32(y.Bytes()))

	var p secp256k1.JacobianPoint
	p.X = xf
	p.Y = yf
	p.Z.SetInt(1)
	return &p
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
