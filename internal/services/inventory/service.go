package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/repos/inventory"
	pginventory "github.com/fastprodman/topupledger/internal/repos/inventory/postgres"
)

var (
	ErrInvalidAction      = errors.New("invalid marker action")
	ErrNoRecords          = errors.New("no record ids given")
	ErrPartialMarkerWrite = errors.New("some markers were not written")
	ErrMarkFailed         = errors.New("no markers were written")
)

type Action string

const (
	ActionVerify  Action = "verify"
	ActionDispose Action = "dispose"
)

func (a Action) kind() (inventory.MarkerKind, error) {
	switch a {
	case ActionVerify:
		return inventory.KindVerified, nil
	case ActionDispose:
		return inventory.KindDisposed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, a)
	}
}

// RecordResult is the per-id outcome of MarkRecords.
type RecordResult string

const (
	ResultMarked        RecordResult = "marked"
	ResultAlreadyMarked RecordResult = "already_marked"
	ResultUnknownRecord RecordResult = "unknown_record"
	ResultFailed        RecordResult = "failed"
)

type RecordOutcome struct {
	RecordID string
	Result   RecordResult
}

type MarkResult struct {
	Action   Action
	Outcomes []RecordOutcome
}

// Count returns how many markers were newly written.
func (r MarkResult) Count() int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Result == ResultMarked {
			n++
		}
	}

	return n
}

// Failed returns the ids whose marker could not be written.
func (r MarkResult) Failed() []string {
	var out []string

	for _, o := range r.Outcomes {
		if o.Result == ResultUnknownRecord || o.Result == ResultFailed {
			out = append(out, o.RecordID)
		}
	}

	return out
}

type Service struct {
	repo   inventory.Inventory
	logger *zap.Logger
	now    func() time.Time
}

func New(db *sql.DB, logger *zap.Logger) *Service {
	return newService(pginventory.New(db), logger)
}

func newService(repo inventory.Inventory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:   repo,
		logger: logger.Named("inventory"),
		now:    time.Now,
	}
}

// List classifies the current inventory and returns one view of it.
func (s *Service) List(ctx context.Context, q Query) ([]Item, error) {
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	verified, err := s.repo.ListMarkers(ctx, inventory.KindVerified)
	if err != nil {
		return nil, fmt.Errorf("list verified markers: %w", err)
	}

	disposed, err := s.repo.ListMarkers(ctx, inventory.KindDisposed)
	if err != nil {
		return nil, fmt.Errorf("list disposed markers: %w", err)
	}

	return Apply(Classify(records, verified, disposed).Select(q.View), q), nil
}

// MarkRecords writes one marker per distinct id. A record that already has a
// marker of that kind is left untouched and reported as already_marked.
// When only some ids fail the result is returned with ErrPartialMarkerWrite;
// when all fail, with ErrMarkFailed.
func (s *Service) MarkRecords(ctx context.Context, action Action, ids []string, actorID, notes string) (MarkResult, error) {
	kind, err := action.kind()
	if err != nil {
		return MarkResult{}, err
	}

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return MarkResult{}, ErrNoRecords
	}

	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}

	res := MarkResult{Action: action, Outcomes: make([]RecordOutcome, 0, len(ids))}
	occurredAt := s.now().UTC()

	for _, id := range ids {
		inserted, err := s.repo.InsertMarker(ctx, kind, inventory.Marker{
			RecordID:   id,
			ActorID:    actorID,
			OccurredAt: occurredAt,
			Notes:      notesPtr,
		})

		var result RecordResult

		switch {
		case err == nil && inserted:
			result = ResultMarked
		case err == nil:
			result = ResultAlreadyMarked
		case errors.Is(err, inventory.ErrUnknownRecord):
			result = ResultUnknownRecord
		default:
			result = ResultFailed
			s.logger.Error("write marker",
				zap.String("kind", string(kind)),
				zap.String("record_id", id),
				zap.Error(err),
			)
		}

		metrics.RecordMarkerWrite(string(kind), string(result))
		res.Outcomes = append(res.Outcomes, RecordOutcome{RecordID: id, Result: result})
	}

	failed := len(res.Failed())

	s.logger.Info("records marked",
		zap.String("kind", string(kind)),
		zap.String("actor_id", actorID),
		zap.Int("requested", len(ids)),
		zap.Int("marked", res.Count()),
		zap.Int("failed", failed),
	)

	switch {
	case failed == len(ids):
		return res, ErrMarkFailed
	case failed > 0:
		return res, ErrPartialMarkerWrite
	default:
		return res, nil
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
