package main

import "github.com/ursa-labs/ufdp/frame"

// fixedEpoch is an EpochSource that never rotates. Real epoch rotation is
// driven by whatever consensus process assigns lane committees, which is
// out of this binary's scope; it stands in until that's wired up.
type fixedEpoch struct{}

func newFixedEpoch() fixedEpoch { return fixedEpoch{} }

func (fixedEpoch) Current() frame.EpochNonce { return 0 }
