package inventory

import (
	"github.com/fastprodman/topupledger/internal/repos/inventory"
)

// State is the lifecycle partition a record falls into.
type State string

const (
	StateUnprocessed  State = "unprocessed"
	StateVerifiedOnly State = "verified"
	StateDisposed     State = "disposed"
)

// Item is a classified record. Marker is the authoritative marker for the
// record's state and is nil for unprocessed records.
type Item struct {
	Record inventory.Record
	State  State
	Marker *inventory.Marker
}

// Classification keeps the input record order next to the id lookup.
type Classification struct {
	Items []Item
	ByID  map[string]Item
}

// Classify partitions records by marker membership. Disposed dominates
// verified. When a record has several markers of one kind the latest
// occurred_at wins; equal times keep the first seen.
func Classify(records []inventory.Record, verified, disposed []inventory.Marker) Classification {
	verifiedBy := latestByRecord(verified)
	disposedBy := latestByRecord(disposed)

	out := Classification{
		Items: make([]Item, 0, len(records)),
		ByID:  make(map[string]Item, len(records)),
	}

	for _, rec := range records {
		item := Item{Record: rec, State: StateUnprocessed}

		if m, ok := disposedBy[rec.ID]; ok {
			item.State = StateDisposed
			item.Marker = &m
		} else if m, ok := verifiedBy[rec.ID]; ok {
			item.State = StateVerifiedOnly
			item.Marker = &m
		}

		out.Items = append(out.Items, item)
		out.ByID[rec.ID] = item
	}

	return out
}

// InState returns the items of one partition in input order.
func (c Classification) InState(state State) []Item {
	var out []Item

	for _, it := range c.Items {
		if it.State == state {
			out = append(out, it)
		}
	}

	return out
}

func latestByRecord(markers []inventory.Marker) map[string]inventory.Marker {
	out := make(map[string]inventory.Marker, len(markers))

	for _, m := range markers {
		cur, ok := out[m.RecordID]
		if !ok || m.OccurredAt.After(cur.OccurredAt) {
			out[m.RecordID] = m
		}
	}

	return out
}
