// Package lane implements the server-side lane ledger: the persistent
// record of how many bytes a client has been delivered per lane, advanced
// only once the client's cumulative-delivery signature verifies, and
// always before the corresponding decryption key is released. Getting
// that ordering backwards would let a client walk away with a block's
// plaintext without ever having paid for it.
package lane

import (
	"fmt"

	"github.com/ursa-labs/ufdp/frame"
)

// Entry is one lane's durable state. Epoch and Commitment are the inputs
// DeliveryAckMessage was built from for AggregateSignature, kept alongside
// it so the signature can be reverified later (see VerifyContinuity)
// instead of trusted blindly.
type Entry struct {
	BytesDelivered     uint64
	Epoch              frame.EpochNonce
	Commitment         frame.SchnorrTag
	AggregateSignature frame.BlsSignature
}

// Store persists Entry values keyed by a client's BLS public key and lane
// id. Implementations must make Save durable before returning: the ledger
// calls it synchronously on the critical path between signature
// verification and decryption-key release.
type Store interface {
	Load(client frame.BlsPublicKey, lane uint8) (Entry, bool, error)
	Save(client frame.BlsPublicKey, lane uint8, entry Entry) error
}

// Ledger advances lane state under BLS signature verification.
type Ledger struct {
	store Store
}

// New wraps a Store with the verify-then-advance protocol.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Lookup returns a lane's last known state, or (Entry{}, false, nil) if the
// client has never used this lane before.
func (l *Ledger) Lookup(client frame.BlsPublicKey, lane uint8) (Entry, bool, error) {
	if lane >= frame.MaxLanes {
		return Entry{}, false, fmt.Errorf("lane: invalid lane id %d (max %d)", lane, frame.MaxLanes-1)
	}
	return l.store.Load(client, lane)
}

// Advance verifies the client's BLS signature over
// DeliveryAckMessage(lane, newTotal, epoch, commitment) and, only on
// success, persists the new Entry. The caller must not reveal the
// corresponding decryption key until Advance returns a nil error: that
// ordering is what makes the ledger crash-safe against a node that dies
// between paying out a key and recording the payment.
//
// Advance also enforces the ledger's own monotonicity invariant — a
// lane's bytes_delivered never decreases — rather than trusting the
// caller to only ever pass newTotal = old total + block length.
func (l *Ledger) Advance(client frame.BlsPublicKey, lane uint8, newTotal uint64, epoch frame.EpochNonce, commitment frame.SchnorrTag, ack frame.BlsSignature) error {
	if lane >= frame.MaxLanes {
		return fmt.Errorf("lane: invalid lane id %d (max %d)", lane, frame.MaxLanes-1)
	}

	existing, found, err := l.store.Load(client, lane)
	if err != nil {
		return fmt.Errorf("lane: loading existing entry: %w", err)
	}
	if found && newTotal < existing.BytesDelivered {
		return fmt.Errorf("%w: %d < %d", ErrNonMonotonicTotal, newTotal, existing.BytesDelivered)
	}

	message := DeliveryAckMessage(lane, newTotal, epoch, commitment)
	ok, err := verifyAggregateSignature(client, message, ack)
	if err != nil {
		return fmt.Errorf("lane: signature verification: %w", err)
	}
	if !ok {
		return ErrInvalidSignature
	}

	return l.store.Save(client, lane, Entry{
		BytesDelivered:     newTotal,
		Epoch:              epoch,
		Commitment:         commitment,
		AggregateSignature: ack,
	})
}

// VerifyContinuity checks that entry's AggregateSignature is a valid
// delivery acknowledgment for entry's own BytesDelivered/Epoch/Commitment
// under client's BLS key. A client reconnecting and being handed a node's
// report of its own lane history (HandshakeResponse's LastLaneData) must
// call this before trusting BytesDelivered for anything: the spec treats
// a mismatch here as fatal, with no recovery.
func VerifyContinuity(client frame.BlsPublicKey, lane uint8, entry Entry) (bool, error) {
	message := DeliveryAckMessage(lane, entry.BytesDelivered, entry.Epoch, entry.Commitment)
	return verifyAggregateSignature(client, message, entry.AggregateSignature)
}

// ErrInvalidSignature is returned by Advance when the client's delivery
// acknowledgment does not verify against its public key.
var ErrInvalidSignature = fmt.Errorf("lane: invalid aggregate signature")

// ErrNonMonotonicTotal is returned by Advance when newTotal would
// decrease a lane's bytes_delivered.
var ErrNonMonotonicTotal = fmt.Errorf("lane: bytes_delivered must not decrease")
