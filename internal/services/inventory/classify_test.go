package inventory

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastprodman/topupledger/internal/repos/inventory"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func rec(id, region string, ageHours int) inventory.Record {
	return inventory.Record{ID: id, Region: region, CreatedAt: t0.Add(-time.Duration(ageHours) * time.Hour)}
}

func marker(recordID, actor string, at time.Time) inventory.Marker {
	return inventory.Marker{RecordID: recordID, ActorID: actor, OccurredAt: at}
}

func ids(items []Item) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.Record.ID)
	}

	return out
}

func TestClassify_VerifiedAndDisposedOverlap(t *testing.T) {
	t.Parallel()

	records := []inventory.Record{rec("r1", "CA", 3), rec("r2", "NY", 2), rec("r3", "TX", 1)}
	verified := []inventory.Marker{marker("r1", "a", t0)}
	disposed := []inventory.Marker{marker("r1", "a", t0), marker("r2", "a", t0)}

	c := Classify(records, verified, disposed)

	require.Equal(t, []string{"r1", "r2"}, ids(c.Select(ViewDisposed)))
	require.Empty(t, ids(c.Select(ViewVerified)))
	require.Equal(t, []string{"r3"}, ids(c.Select(ViewUnprocessed)))
	require.Equal(t, []string{"r1", "r2", "r3"}, ids(c.Select(ViewAll)))
}

func TestClassify_DisposedDominates(t *testing.T) {
	t.Parallel()

	vAt := t0.Add(time.Hour)
	dAt := t0.Add(2 * time.Hour)

	c := Classify(
		[]inventory.Record{rec("r1", "CA", 1)},
		[]inventory.Marker{marker("r1", "verifier", vAt)},
		[]inventory.Marker{marker("r1", "disposer", dAt)},
	)

	item := c.ByID["r1"]
	require.Equal(t, StateDisposed, item.State)
	require.NotNil(t, item.Marker)
	require.Equal(t, "disposer", item.Marker.ActorID)
}

func TestClassify_DuplicateMarkersLatestWins(t *testing.T) {
	t.Parallel()

	c := Classify(
		[]inventory.Record{rec("r1", "CA", 1), rec("r2", "NY", 1)},
		[]inventory.Marker{
			marker("r1", "early", t0),
			marker("r1", "late", t0.Add(time.Hour)),
			marker("r1", "middle", t0.Add(time.Minute)),
			marker("r2", "first", t0),
			marker("r2", "second_same_time", t0),
		},
		nil,
	)

	require.Equal(t, "late", c.ByID["r1"].Marker.ActorID)
	require.Equal(t, "first", c.ByID["r2"].Marker.ActorID)
}

func TestClassify_MarkersForMissingRecordsIgnored(t *testing.T) {
	t.Parallel()

	c := Classify(
		[]inventory.Record{rec("r1", "CA", 1)},
		[]inventory.Marker{marker("ghost", "a", t0)},
		[]inventory.Marker{marker("ghost", "a", t0)},
	)

	require.Len(t, c.Items, 1)
	require.Equal(t, StateUnprocessed, c.ByID["r1"].State)
	require.Nil(t, c.ByID["r1"].Marker)
}

// For any generated inventory and marker sets the three partitions are
// pairwise disjoint and together cover every record.
func TestClassify_PartitionIsExhaustiveAndDisjoint(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))

	for round := range 200 {
		n := rng.Intn(40)
		records := make([]inventory.Record, 0, n)
		for i := range n {
			records = append(records, rec(fmt.Sprintf("r%d", i), "CA", i))
		}

		var verified, disposed []inventory.Marker
		// Marker ids range past n so some markers point at unknown records.
		for range rng.Intn(30) {
			verified = append(verified, marker(fmt.Sprintf("r%d", rng.Intn(n+5)), "v", t0))
		}
		for range rng.Intn(30) {
			disposed = append(disposed, marker(fmt.Sprintf("r%d", rng.Intn(n+5)), "d", t0))
		}

		c := Classify(records, verified, disposed)
		parts := [][]Item{c.Select(ViewUnprocessed), c.Select(ViewVerified), c.Select(ViewDisposed)}

		seen := make(map[string]int)
		total := 0
		for _, part := range parts {
			for _, it := range part {
				seen[it.Record.ID]++
				total++
			}
		}

		require.Equal(t, len(records), total, "round %d", round)
		for _, r := range records {
			require.Equal(t, 1, seen[r.ID], "round %d record %s", round, r.ID)
		}

		disposedSet := make(map[string]bool)
		for _, m := range disposed {
			disposedSet[m.RecordID] = true
		}
		for _, it := range c.Select(ViewDisposed) {
			require.True(t, disposedSet[it.Record.ID])
		}
		for _, it := range c.Select(ViewVerified) {
			require.False(t, disposedSet[it.Record.ID])
		}
	}
}
