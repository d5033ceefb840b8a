package common

import (
	"math/big"
)

// Event is one emitted record: an ordered list of field elements
type Event []BigIntStr

func (e Event) fields() ([]*big.Int, error) {
	out := make([]*big.Int, len(e))
	for i, s := range e {
		v, err := s.FieldElement()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Hash commits to the event's fields
func (e Event) Hash() (*big.Int, error) {
	elems, err := e.fields()
	if err != nil {
		return nil, err
	}
	return HashFields(PrefixEvent, elems...)
}

// Events is the append-only log of records an account update emits. The
// commitment is a left fold over per-event hashes so appending never
// rewrites history.
type Events []Event

// Push appends an event
func (ev *Events) Push(e Event) {
	*ev = append(*ev, e)
}

// Hash folds the per-event hashes under the given list prefix, seeding with
// the hash of the empty list
func (ev Events) Hash(listPrefix string) (*big.Int, error) {
	acc, err := HashFields(listPrefix)
	if err != nil {
		return nil, err
	}
	for _, e := range ev {
		eh, err := e.Hash()
		if err != nil {
			return nil, err
		}
		acc, err = HashFields(listPrefix, acc, eh)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}
