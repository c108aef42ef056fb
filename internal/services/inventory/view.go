package inventory

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid inventory query")

// View selects which partition a listing shows.
type View string

const (
	ViewAll         View = "all"
	ViewUnprocessed View = "unprocessed"
	ViewVerified    View = "verified"
	ViewDisposed    View = "disposed"
)

type SortKey string

const (
	SortNone      SortKey = ""
	SortRegion    SortKey = "region"
	SortTimestamp SortKey = "timestamp"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Query struct {
	View      View
	Region    string
	Sort      SortKey
	Direction Direction
}

func ParseQuery(view, region, sortKey, dir string) (Query, error) {
	q := Query{
		View:      View(strings.ToLower(strings.TrimSpace(view))),
		Region:    strings.TrimSpace(region),
		Sort:      SortKey(strings.ToLower(strings.TrimSpace(sortKey))),
		Direction: Direction(strings.ToLower(strings.TrimSpace(dir))),
	}

	if q.View == "" {
		q.View = ViewAll
	}

	if q.Direction == "" {
		q.Direction = Asc
	}

	switch q.View {
	case ViewAll, ViewUnprocessed, ViewVerified, ViewDisposed:
	default:
		return Query{}, fmt.Errorf("%w: view %q", ErrInvalidQuery, view)
	}

	switch q.Sort {
	case SortNone, SortRegion, SortTimestamp:
	default:
		return Query{}, fmt.Errorf("%w: sort %q", ErrInvalidQuery, sortKey)
	}

	switch q.Direction {
	case Asc, Desc:
	default:
		return Query{}, fmt.Errorf("%w: dir %q", ErrInvalidQuery, dir)
	}

	return q, nil
}

// Select returns the items of the requested view in input order. The
// unprocessed view is the strict complement of both marker sets.
func (c Classification) Select(view View) []Item {
	switch view {
	case ViewUnprocessed:
		return c.InState(StateUnprocessed)
	case ViewVerified:
		return c.InState(StateVerifiedOnly)
	case ViewDisposed:
		return c.InState(StateDisposed)
	default:
		return slices.Clone(c.Items)
	}
}

// Apply filters and sorts an already selected view. Sorting is stable, so
// equal keys keep their relative input order in both directions.
func Apply(items []Item, q Query) []Item {
	out := make([]Item, 0, len(items))

	for _, it := range items {
		if q.Region == "" || regionMatches(it.Record.Region, q.Region) {
			out = append(out, it)
		}
	}

	var compare func(a, b Item) int

	switch q.Sort {
	case SortRegion:
		compare = func(a, b Item) int {
			return strings.Compare(canonicalRegion(a.Record.Region), canonicalRegion(b.Record.Region))
		}
	case SortTimestamp:
		compare = func(a, b Item) int {
			return a.timestamp().Compare(b.timestamp())
		}
	default:
		return out
	}

	if q.Direction == Desc {
		asc := compare
		compare = func(a, b Item) int { return cmp.Compare(0, asc(a, b)) }
	}

	slices.SortStableFunc(out, compare)

	return out
}
