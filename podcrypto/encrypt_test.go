package podcrypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret, err := NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey: %v", err)
	}
	req, err := RandomRequestInfo()
	if err != nil {
		t.Fatalf("RandomRequestInfo: %v", err)
	}

	plaintext := make([]byte, 300)
	for i := range plaintext {
		plaintext[i] = byte(i * 13)
	}

	ciphertext, tag, key, err := EncryptBlock(secret, req, plaintext)
	if err != nil {
		t.Fatalf("EncryptBlock: %v", err)
	}
	if len(ciphertext) != len(plaintext) {
		t.Fatalf("len(ciphertext) = %d, want %d", len(ciphertext), len(plaintext))
	}

	recovered := DecryptBlock(key, ciphertext)
	for i := range plaintext {
		if recovered[i] != plaintext[i] {
			t.Fatalf("byte %d: got %d, want %d", i, recovered[i], plaintext[i])
		}
	}

	ok, err := VerifySchnorrTag(secret.PublicKey(), ciphertext, req.Hash(), tag)
	if err != nil {
		t.Fatalf("VerifySchnorrTag: %v", err)
	}
	if !ok {
		t.Fatal("VerifySchnorrTag: want true for an honestly produced block")
	}
}

func TestVerifySchnorrTagRejectsTamperedCiphertext(t *testing.T) {
	secret, err := NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey: %v", err)
	}
	req, err := RandomRequestInfo()
	if err != nil {
		t.Fatalf("RandomRequestInfo: %v", err)
	}

	ciphertext, tag, _, err := EncryptBlock(secret, req, make([]byte, 64))
	if err != nil {
		t.Fatalf("EncryptBlock: %v", err)
	}
	ciphertext[0] ^= 0xFF

	ok, err := VerifySchnorrTag(secret.PublicKey(), ciphertext, req.Hash(), tag)
	if err != nil {
		t.Fatalf("VerifySchnorrTag: %v", err)
	}
	if ok {
		t.Fatal("VerifySchnorrTag: want false for tampered ciphertext")
	}
}

func TestEncryptBlockDeterministic(t *testing.T) {
	secret, err := NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey: %v", err)
	}
	req, err := RandomRequestInfo()
	if err != nil {
		t.Fatalf("RandomRequestInfo: %v", err)
	}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ct1, _, key1, err := EncryptBlock(secret, req, plaintext)
	if err != nil {
		t.Fatalf("EncryptBlock: %v", err)
	}
	ct2, _, key2, err := EncryptBlock(secret, req, plaintext)
	if err != nil {
		t.Fatalf("EncryptBlock: %v", err)
	}
	if key1 != key2 {
		t.Fatal("decryption key must be deterministic for the same secret and request")
	}
	for i := range ct1 {
		if ct1[i] != ct2[i] {
			t.Fatalf("ciphertext byte %d differs between runs", i)
		}
	}
}
