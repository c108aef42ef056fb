package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastprodman/topupledger/internal/repos/inventory"
)

func TestParseQuery(t *testing.T) {
	t.Parallel()

	q, err := ParseQuery("", " california ", "", "")
	require.NoError(t, err)
	require.Equal(t, Query{View: ViewAll, Region: "california", Sort: SortNone, Direction: Asc}, q)

	q, err = ParseQuery("Disposed", "", "TIMESTAMP", "DESC")
	require.NoError(t, err)
	require.Equal(t, Query{View: ViewDisposed, Sort: SortTimestamp, Direction: Desc}, q)

	for _, bad := range [][4]string{
		{"archived", "", "", ""},
		{"all", "", "price", ""},
		{"all", "", "region", "sideways"},
	} {
		_, err = ParseQuery(bad[0], bad[1], bad[2], bad[3])
		require.ErrorIs(t, err, ErrInvalidQuery, bad)
	}
}

func items(records ...inventory.Record) []Item {
	out := make([]Item, 0, len(records))
	for _, r := range records {
		out = append(out, Item{Record: r, State: StateUnprocessed})
	}

	return out
}

func TestApply_RegionFilter(t *testing.T) {
	t.Parallel()

	in := items(rec("r1", "CA", 1), rec("r2", "ny", 1), rec("r3", "California", 1), rec("r4", "TX", 1))

	require.Equal(t, []string{"r1", "r3"}, ids(Apply(in, Query{Region: "california"})))
	require.Equal(t, []string{"r1", "r3"}, ids(Apply(in, Query{Region: "ca"})))
	require.Equal(t, []string{"r2"}, ids(Apply(in, Query{Region: "New  York"})))
	require.Empty(t, ids(Apply(in, Query{Region: "Ontario"})))
	require.Len(t, Apply(in, Query{}), 4)
}

func TestApply_SortRegionIsStable(t *testing.T) {
	t.Parallel()

	in := items(rec("a", "TX", 1), rec("b", "ca", 1), rec("c", "NY", 1), rec("d", "CA", 1), rec("e", "TX", 1))

	require.Equal(t, []string{"b", "d", "c", "a", "e"}, ids(Apply(in, Query{Sort: SortRegion, Direction: Asc})))
	require.Equal(t, []string{"a", "e", "c", "b", "d"}, ids(Apply(in, Query{Sort: SortRegion, Direction: Desc})))
}

func TestApply_SortTimestampUsesMarkerTime(t *testing.T) {
	t.Parallel()

	m1 := marker("r1", "x", t0.Add(3*time.Hour))
	m2 := marker("r2", "x", t0.Add(1*time.Hour))
	m3 := marker("r3", "x", t0.Add(2*time.Hour))

	// Creation order is the opposite of marker order.
	in := []Item{
		{Record: rec("r1", "CA", 30), State: StateVerifiedOnly, Marker: &m1},
		{Record: rec("r2", "CA", 10), State: StateVerifiedOnly, Marker: &m2},
		{Record: rec("r3", "CA", 20), State: StateVerifiedOnly, Marker: &m3},
	}

	require.Equal(t, []string{"r2", "r3", "r1"}, ids(Apply(in, Query{Sort: SortTimestamp, Direction: Asc})))
	require.Equal(t, []string{"r1", "r3", "r2"}, ids(Apply(in, Query{Sort: SortTimestamp, Direction: Desc})))
}

func TestApply_SortTimestampUnmarkedUsesCreatedAt(t *testing.T) {
	t.Parallel()

	in := items(rec("old", "CA", 48), rec("new", "CA", 1), rec("mid", "CA", 24), rec("mid2", "NY", 24))

	require.Equal(t, []string{"old", "mid", "mid2", "new"}, ids(Apply(in, Query{Sort: SortTimestamp, Direction: Asc})))
	require.Equal(t, []string{"new", "mid", "mid2", "old"}, ids(Apply(in, Query{Sort: SortTimestamp, Direction: Desc})))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := items(rec("b", "TX", 1), rec("a", "CA", 1))
	_ = Apply(in, Query{Sort: SortRegion, Direction: Asc})

	require.Equal(t, []string{"b", "a"}, ids(in))
}
