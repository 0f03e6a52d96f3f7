package podcrypto

import "testing"

func TestHC128XorIsInvolution(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}

	plaintext := make([]byte, 200)
	for i := range plaintext {
		plaintext[i] = byte(i * 7)
	}

	ciphertext := make([]byte, len(plaintext))
	newHC128(seed).xorKeystream(ciphertext, plaintext)

	recovered := make([]byte, len(plaintext))
	newHC128(seed).xorKeystream(recovered, ciphertext)

	for i := range plaintext {
		if recovered[i] != plaintext[i] {
			t.Fatalf("byte %d: got %d, want %d", i, recovered[i], plaintext[i])
		}
	}
}

func TestHC128DifferentSeedsDiverge(t *testing.T) {
	var seedA, seedB [32]byte
	seedB[0] = 1

	plaintext := make([]byte, 64)
	ctA := make([]byte, 64)
	ctB := make([]byte, 64)
	newHC128(seedA).xorKeystream(ctA, plaintext)
	newHC128(seedB).xorKeystream(ctB, plaintext)

	same := true
	for i := range ctA {
		if ctA[i] != ctB[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("keystreams from distinct seeds must differ")
	}
}

func TestHC128BlockGrainMatchesStreaming(t *testing.T) {
	var seed [32]byte
	plaintext := make([]byte, 130) // not a multiple of 64

	whole := make([]byte, len(plaintext))
	newHC128(seed).xorKeystream(whole, plaintext)

	piecewise := make([]byte, len(plaintext))
	c := newHC128(seed)
	c.xorKeystream(piecewise[:64], plaintext[:64])
	c.xorKeystream(piecewise[64:128], plaintext[64:128])
	c.xorKeystream(piecewise[128:], plaintext[128:])

	for i := range whole {
		if whole[i] != piecewise[i] {
			t.Fatalf("byte %d: single-call %d, piecewise %d", i, whole[i], piecewise[i])
		}
	}
}
