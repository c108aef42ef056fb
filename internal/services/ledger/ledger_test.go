package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/repos/accounts"
	"github.com/fastprodman/topupledger/internal/repos/ledgerentries"
	"github.com/fastprodman/topupledger/internal/services/webhook"
)

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockAccounts) LockAndGetBalance(tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	args := m.Called(tx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockAccounts) IncreaseBalance(tx *sql.Tx, accountID string, amount decimal.Decimal) error {
	return m.Called(tx, accountID, amount).Error(0)
}

type mockEntries struct{ mock.Mock }

func (m *mockEntries) HasConfirmed(tx *sql.Tx, accountID, paymentID string) (bool, error) {
	args := m.Called(tx, accountID, paymentID)
	return args.Bool(0), args.Error(1)
}

func (m *mockEntries) Insert(tx *sql.Tx, entry ledgerentries.Entry) (ledgerentries.Entry, error) {
	args := m.Called(tx, entry)
	return args.Get(0).(ledgerentries.Entry), args.Error(1)
}

func (m *mockEntries) ListByAccount(ctx context.Context, accountID string, limit int) ([]ledgerentries.Entry, error) {
	args := m.Called(ctx, accountID, limit)
	return args.Get(0).([]ledgerentries.Entry), args.Error(1)
}

func (m *mockEntries) CountByTypeSince(ctx context.Context, accountID string, since time.Time) (map[string]int, error) {
	args := m.Called(ctx, accountID, since)
	return args.Get(0).(map[string]int), args.Error(1)
}

type recordingSink struct {
	events []webhook.PaymentEvent
	errs   []error
}

func (s *recordingSink) Discard(_ context.Context, ev webhook.PaymentEvent, reason error) {
	s.events = append(s.events, ev)
	s.errs = append(s.errs, reason)
}

type recordingPublisher struct {
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)

	return p.err
}

func confirmedEvent() webhook.PaymentEvent {
	return webhook.PaymentEvent{
		ExternalPaymentID: "pay_1",
		Type:              webhook.EventConfirmed,
		RawType:           "confirmed",
		Amount:            decimal.RequireFromString("25.00"),
		Currency:          "USD",
		AccountID:         "u1",
	}
}

func pendingEvent() webhook.PaymentEvent {
	ev := confirmedEvent()
	ev.Type = webhook.EventPending
	ev.RawType = "pending"

	return ev
}

func entryFor(ev webhook.PaymentEvent) ledgerentries.Entry {
	return ledgerentries.Entry{
		AccountID:         ev.AccountID,
		EventType:         string(ev.Type),
		RawType:           ev.RawType,
		Amount:            ev.Amount,
		ExternalPaymentID: ev.ExternalPaymentID,
	}
}

func TestUpdater_Apply(t *testing.T) {
	t.Parallel()

	errConn := errors.New("conn reset")
	zero := decimal.Zero

	tests := []struct {
		name        string
		event       webhook.PaymentEvent
		setup       func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent)
		commit      bool
		wantOutcome Outcome
		wantErr     error
		wantDiscard bool
		wantPublish bool
	}{
		{
			name:  "confirmed_credits_balance",
			event: confirmedEvent(),
			setup: func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("HasConfirmed", mock.Anything, "u1", "pay_1").Return(false, nil)
				e.On("Insert", mock.Anything, entryFor(ev)).Return(entryFor(ev), nil)
				a.On("IncreaseBalance", mock.Anything, "u1", ev.Amount).Return(nil)
			},
			commit:      true,
			wantOutcome: OutcomeCredited,
			wantPublish: true,
		},
		{
			name:  "confirmed_redelivery_is_noop",
			event: confirmedEvent(),
			setup: func(a *mockAccounts, e *mockEntries, _ webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(decimal.RequireFromString("25"), nil)
				e.On("HasConfirmed", mock.Anything, "u1", "pay_1").Return(true, nil)
			},
			wantOutcome: OutcomeDuplicate,
		},
		{
			name:  "unique_violation_backstop_is_noop",
			event: confirmedEvent(),
			setup: func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("HasConfirmed", mock.Anything, "u1", "pay_1").Return(false, nil)
				e.On("Insert", mock.Anything, entryFor(ev)).Return(ledgerentries.Entry{}, ledgerentries.ErrDuplicateEntry)
			},
			wantOutcome: OutcomeDuplicate,
		},
		{
			name:  "pending_logs_only",
			event: pendingEvent(),
			setup: func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("Insert", mock.Anything, entryFor(ev)).Return(entryFor(ev), nil)
			},
			commit:      true,
			wantOutcome: OutcomeLogged,
		},
		{
			name: "unknown_type_logs_only",
			event: func() webhook.PaymentEvent {
				ev := confirmedEvent()
				ev.Type = webhook.EventUnknown
				ev.RawType = "resolved"
				return ev
			}(),
			setup: func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("Insert", mock.Anything, entryFor(ev)).Return(entryFor(ev), nil)
			},
			commit:      true,
			wantOutcome: OutcomeLogged,
		},
		{
			name:  "status_redelivery_is_noop",
			event: pendingEvent(),
			setup: func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("Insert", mock.Anything, entryFor(ev)).Return(ledgerentries.Entry{}, ledgerentries.ErrDuplicateEntry)
			},
			wantOutcome: OutcomeDuplicate,
		},
		{
			name:  "unknown_account_discarded",
			event: confirmedEvent(),
			setup: func(a *mockAccounts, _ *mockEntries, _ webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, accounts.ErrAccountNotFound)
			},
			wantOutcome: OutcomeDiscarded,
			wantErr:     ErrUnknownAccount,
			wantDiscard: true,
		},
		{
			name:  "increase_failure_rolls_back",
			event: confirmedEvent(),
			setup: func(a *mockAccounts, e *mockEntries, ev webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("HasConfirmed", mock.Anything, "u1", "pay_1").Return(false, nil)
				e.On("Insert", mock.Anything, entryFor(ev)).Return(entryFor(ev), nil)
				a.On("IncreaseBalance", mock.Anything, "u1", ev.Amount).Return(errConn)
			},
			wantOutcome: OutcomeFailed,
			wantErr:     ErrStoreFailure,
		},
		{
			name:  "idempotency_check_failure",
			event: confirmedEvent(),
			setup: func(a *mockAccounts, e *mockEntries, _ webhook.PaymentEvent) {
				a.On("LockAndGetBalance", mock.Anything, "u1").Return(zero, nil)
				e.On("HasConfirmed", mock.Anything, "u1", "pay_1").Return(false, errConn)
			},
			wantOutcome: OutcomeFailed,
			wantErr:     errConn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, sqlMock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			sqlMock.ExpectBegin()
			if tt.commit {
				sqlMock.ExpectCommit()
			} else {
				sqlMock.ExpectRollback()
			}

			accts := &mockAccounts{}
			entries := &mockEntries{}
			tt.setup(accts, entries, tt.event)

			sink := &recordingSink{}
			pub := &recordingPublisher{}
			u := newUpdater(db, accts, entries, zap.NewNop(), WithDiscardSink(sink), WithPublisher(pub))

			got, err := u.Apply(context.Background(), tt.event)
			require.Equal(t, tt.wantOutcome, got)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			if tt.wantDiscard {
				require.Len(t, sink.events, 1)
				require.ErrorIs(t, sink.errs[0], ErrUnknownAccount)
			} else {
				require.Empty(t, sink.events)
			}

			if tt.wantPublish {
				require.Equal(t, []string{"u1"}, pub.keys)
				ev, ok := pub.events[0].(CreditedEvent)
				require.True(t, ok)
				require.Equal(t, "25.00", ev.Amount)
				require.Equal(t, "pay_1", ev.PaymentID)
			} else {
				require.Empty(t, pub.keys)
			}

			accts.AssertExpectations(t)
			entries.AssertExpectations(t)
			require.NoError(t, sqlMock.ExpectationsWereMet())
		})
	}
}

func TestUpdater_Apply_PublishFailureDoesNotFailApply(t *testing.T) {
	t.Parallel()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	ev := confirmedEvent()
	accts := &mockAccounts{}
	entries := &mockEntries{}
	accts.On("LockAndGetBalance", mock.Anything, "u1").Return(decimal.Zero, nil)
	entries.On("HasConfirmed", mock.Anything, "u1", "pay_1").Return(false, nil)
	entries.On("Insert", mock.Anything, entryFor(ev)).Return(entryFor(ev), nil)
	accts.On("IncreaseBalance", mock.Anything, "u1", ev.Amount).Return(nil)

	u := newUpdater(db, accts, entries, nil, WithPublisher(&recordingPublisher{err: errors.New("broker down")}))

	got, err := u.Apply(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeCredited, got)
}

func TestUpdater_Activity(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	errConn := errors.New("conn reset")

	t.Run("ok_with_default_limit", func(t *testing.T) {
		t.Parallel()

		accts := &mockAccounts{}
		entries := &mockEntries{}
		accts.On("GetBalance", mock.Anything, "u1").Return(decimal.RequireFromString("25"), nil)
		entries.On("ListByAccount", mock.Anything, "u1", DefaultActivityLimit).
			Return([]ledgerentries.Entry{entryFor(confirmedEvent())}, nil)
		entries.On("CountByTypeSince", mock.Anything, "u1", now.Add(-24*time.Hour)).
			Return(map[string]int{"confirmed": 1}, nil)

		u := newUpdater(nil, accts, entries, nil)
		u.now = func() time.Time { return now }

		got, err := u.Activity(context.Background(), "u1", 0)
		require.NoError(t, err)
		require.Equal(t, "u1", got.AccountID)
		require.True(t, decimal.RequireFromString("25").Equal(got.Balance))
		require.Len(t, got.Entries, 1)
		require.Equal(t, map[string]int{"confirmed": 1}, got.StatusSummary)
	})

	t.Run("limit_capped", func(t *testing.T) {
		t.Parallel()

		accts := &mockAccounts{}
		entries := &mockEntries{}
		accts.On("GetBalance", mock.Anything, "u1").Return(decimal.Zero, nil)
		entries.On("ListByAccount", mock.Anything, "u1", MaxActivityLimit).Return([]ledgerentries.Entry(nil), nil)
		entries.On("CountByTypeSince", mock.Anything, "u1", mock.Anything).Return(map[string]int{}, nil)

		_, err := newUpdater(nil, accts, entries, nil).Activity(context.Background(), "u1", 10_000)
		require.NoError(t, err)
		entries.AssertExpectations(t)
	})

	t.Run("unknown_account", func(t *testing.T) {
		t.Parallel()

		accts := &mockAccounts{}
		accts.On("GetBalance", mock.Anything, "nobody").Return(decimal.Zero, accounts.ErrAccountNotFound)

		_, err := newUpdater(nil, accts, &mockEntries{}, nil).Activity(context.Background(), "nobody", 10)
		require.ErrorIs(t, err, ErrUnknownAccount)
	})

	t.Run("store_failure", func(t *testing.T) {
		t.Parallel()

		accts := &mockAccounts{}
		entries := &mockEntries{}
		accts.On("GetBalance", mock.Anything, "u1").Return(decimal.Zero, nil)
		entries.On("ListByAccount", mock.Anything, "u1", 10).Return([]ledgerentries.Entry(nil), errConn)

		_, err := newUpdater(nil, accts, entries, nil).Activity(context.Background(), "u1", 10)
		require.ErrorIs(t, err, ErrStoreFailure)
		require.ErrorIs(t, err, errConn)
	})
}
