package server

import (
	"strings"

	"github.com/pkg/errors"
)

// Pairing policy names accepted in configuration.
const (
	PairingTwoParty = "two-party"
	PairingPairs    = "pairs"
)

// Pairing decides which identity a joining client receives and who its
// partner is. Assign is called with the registry lock held, so inUse reflects
// the registry exactly.
type Pairing interface {
	// Assign picks an identity for the slot-th join (slots start at zero and
	// never repeat).
	Assign(slot uint64, inUse func(Identity) bool) (Identity, error)
	// PartnerOf reports the identity lines from id are relayed to.
	PartnerOf(id Identity) (Identity, bool)
}

// TwoParty is a chat between Chat 1 and Chat 2. The first joiner is 1 and
// every later joiner is 2, falling back to whichever of the two is free.
// A third concurrent joiner gets ErrRoomFull; the old counter-based server
// gave it identity 2 as well, colliding with the client already holding it.
type TwoParty struct{}

// Assign implements Pairing.
func (TwoParty) Assign(slot uint64, inUse func(Identity) bool) (Identity, error) {
	preferred, other := Identity(2), Identity(1)
	if slot == 0 {
		preferred, other = 1, 2
	}
	if !inUse(preferred) {
		return preferred, nil
	}
	if !inUse(other) {
		return other, nil
	}
	return 0, ErrRoomFull
}

// PartnerOf implements Pairing.
func (TwoParty) PartnerOf(id Identity) (Identity, bool) {
	switch id {
	case 1:
		return 2, true
	case 2:
		return 1, true
	default:
		return 0, false
	}
}

// Pairs numbers joiners 1, 2, 3, ... and pairs them up as (1,2), (3,4), ...
type Pairs struct{}

// Assign implements Pairing.
func (Pairs) Assign(slot uint64, inUse func(Identity) bool) (Identity, error) {
	id := Identity(slot + 1)
	if id <= 0 || inUse(id) {
		return 0, ErrRoomFull
	}
	return id, nil
}

// PartnerOf implements Pairing.
func (Pairs) PartnerOf(id Identity) (Identity, bool) {
	if id <= 0 {
		return 0, false
	}
	if id%2 == 1 {
		return id + 1, true
	}
	return id - 1, true
}

// PairingByName resolves a configured policy name.
func PairingByName(name string) (Pairing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PairingTwoParty:
		return TwoParty{}, nil
	case PairingPairs:
		return Pairs{}, nil
	default:
		return nil, errors.Errorf("unsupported pairing %q (supported: %s, %s)", name, PairingTwoParty, PairingPairs)
	}
}
