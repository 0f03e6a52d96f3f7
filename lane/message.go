package lane

import (
	"encoding/binary"

	"github.com/ursa-labs/ufdp/frame"
)

// DeliveryAckMessage is the exact byte sequence a client's delivery
// acknowledgment signs (spec.md §4.3): the lane it applies to, the
// cumulative byte total it attests to, the epoch it was signed under, and
// a commitment to the specific block being paid for. Ledger.Advance
// verifies a delivery acknowledgment against this message and, once
// verified, persists the signature as the lane's continuity proof — so
// this construction must be reproduced exactly, with the same four
// inputs, by anything that later re-verifies it (see VerifyContinuity).
func DeliveryAckMessage(laneID uint8, newTotal uint64, epoch frame.EpochNonce, commitment frame.SchnorrTag) []byte {
	buf := make([]byte, 1+8+8+len(commitment))
	buf[0] = laneID
	binary.BigEndian.PutUint64(buf[1:9], newTotal)
	binary.BigEndian.PutUint64(buf[9:17], uint64(epoch))
	copy(buf[17:], commitment[:])
	return buf
}
