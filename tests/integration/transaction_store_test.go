package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seu-repo/sigec-cms/internal/adapter/storage/memory"
	"github.com/seu-repo/sigec-cms/internal/adapter/storage/postgres"
	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
	"github.com/seu-repo/sigec-cms/internal/service/session"
)

func newStoredTransaction(id int64, connectorID int, meterStart int64) *domain.Transaction {
	return &domain.Transaction{
		ID:          id,
		ConnectorID: connectorID,
		IdTag:       "TAG-001",
		MeterStart:  meterStart,
		StartTime:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestPostgresStore_CreateAndFind(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	ctx := context.Background()

	// Act
	if err := store.Create(ctx, newStoredTransaction(1, 1, 1000)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	found, err := store.FindByID(ctx, 1)

	// Assert
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.ConnectorID != 1 || found.MeterStart != 1000 {
		t.Errorf("unexpected record: %+v", found)
	}
	if found.Status() != domain.TransactionStatusActive {
		t.Errorf("expected Active, got %s", found.Status())
	}
}

func TestPostgresStore_DuplicateID(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	ctx := context.Background()

	if err := store.Create(ctx, newStoredTransaction(7, 1, 0)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Act
	err := store.Create(ctx, newStoredTransaction(7, 2, 0))

	// Assert
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Errorf("expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestPostgresStore_FindUnknown(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)

	// Act
	_, err := store.FindByID(context.Background(), 999)

	// Assert
	if !errors.Is(err, domain.ErrUnknownTransaction) {
		t.Errorf("expected ErrUnknownTransaction, got %v", err)
	}
}

func TestPostgresStore_CompleteLifecycle(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	ctx := context.Background()

	tx := newStoredTransaction(1, 1, 100)
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Act
	stopped, err := store.Complete(ctx, 1, 350, tx.StartTime.Add(30*time.Minute), "TAG-002")

	// Assert
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if stopped.Status() != domain.TransactionStatusCompleted {
		t.Errorf("expected Completed, got %s", stopped.Status())
	}
	if stopped.EnergyWh() != 250 {
		t.Errorf("expected 250 Wh delivered, got %d", stopped.EnergyWh())
	}
	if stopped.StopIdTag != "TAG-002" {
		t.Errorf("expected stop idTag recorded, got %q", stopped.StopIdTag)
	}

	// A second stop must be rejected without overwriting the record.
	_, err = store.Complete(ctx, 1, 400, tx.StartTime.Add(time.Hour), "TAG-003")
	if !errors.Is(err, domain.ErrAlreadyStopped) {
		t.Errorf("expected ErrAlreadyStopped, got %v", err)
	}
	found, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.MeterStop == nil || *found.MeterStop != 350 {
		t.Errorf("retry overwrote meterStop: %+v", found.MeterStop)
	}
}

func TestPostgresStore_CompleteValidation(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	ctx := context.Background()

	tx := newStoredTransaction(1, 1, 500)
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cases := []struct {
		name      string
		meterStop int64
		stopTime  time.Time
		want      error
	}{
		{"unknown transaction", 600, tx.StartTime.Add(time.Minute), domain.ErrUnknownTransaction},
		{"meter below start", 499, tx.StartTime.Add(time.Minute), domain.ErrInvalidMeterReading},
		{"stop before start", 600, tx.StartTime.Add(-time.Minute), domain.ErrInvalidTimestamp},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := int64(1)
			if tc.want == domain.ErrUnknownTransaction {
				id = 999
			}

			// Act
			_, err := store.Complete(ctx, id, tc.meterStop, tc.stopTime, "")

			// Assert
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Rejected stops must leave the transaction active.
	found, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Status() != domain.TransactionStatusActive {
		t.Errorf("rejected stop changed status to %s", found.Status())
	}
}

func TestPostgresStore_ListFilters(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	ctx := context.Background()

	first := newStoredTransaction(1, 1, 0)
	second := newStoredTransaction(2, 2, 0)
	third := newStoredTransaction(3, 1, 0)
	for _, tx := range []*domain.Transaction{first, second, third} {
		if err := store.Create(ctx, tx); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := store.Complete(ctx, 1, 100, first.StartTime.Add(time.Minute), ""); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Act
	all, err := store.List(ctx, ports.TransactionFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	connector1 := 1
	completed, err := store.List(ctx, ports.TransactionFilter{
		ConnectorID: &connector1,
		Status:      domain.TransactionStatusCompleted,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	active, err := store.List(ctx, ports.TransactionFilter{Status: domain.TransactionStatusActive})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	// Assert
	if len(all) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("list not ordered by id: %d after %d", all[i].ID, all[i-1].ID)
		}
	}
	if len(completed) != 1 || completed[0].ID != 1 {
		t.Errorf("unexpected completed filter result: %+v", completed)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active transactions, got %d", len(active))
	}
}

// The full engine on top of PostgreSQL: concurrent starts on one connector
// must admit exactly one winner, and the loser responses must name it.
func TestEngineWithPostgres_ConcurrentStarts(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	registry := memory.NewConnectorRegistry()
	svc := session.NewService(store, registry, session.NewIDAllocator(1), nil, env.Logger)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*domain.Transaction, workers)
	failures := make([]error, workers)

	// Act
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := svc.Start(ctx, ports.StartRequest{
				ConnectorID: 1,
				IdTag:       "TAG-001",
				MeterStart:  0,
				Timestamp:   time.Now().UTC(),
			})
			results[i] = tx
			failures[i] = err
		}(i)
	}
	wg.Wait()

	// Assert
	var winner *domain.Transaction
	busy := 0
	for i := 0; i < workers; i++ {
		if failures[i] == nil {
			if winner != nil {
				t.Fatalf("two transactions admitted on one connector: %d and %d", winner.ID, results[i].ID)
			}
			winner = results[i]
			continue
		}
		var busyErr *domain.ConnectorBusyError
		if !errors.As(failures[i], &busyErr) {
			t.Fatalf("unexpected error: %v", failures[i])
		}
		busy++
	}
	if winner == nil {
		t.Fatal("no start succeeded")
	}
	if busy != workers-1 {
		t.Errorf("expected %d busy rejections, got %d", workers-1, busy)
	}

	active, err := store.List(ctx, ports.TransactionFilter{Status: domain.TransactionStatusActive})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != winner.ID {
		t.Errorf("database disagrees with winner %d: %+v", winner.ID, active)
	}
}

// A process restart must continue the id sequence above what the database
// already holds, never re-issue a persisted id.
func TestEngineWithPostgres_RestartContinuesIDs(t *testing.T) {
	// Arrange: a first process run leaves a transaction behind.
	env := SetupTestEnvironment(t)
	CleanDatabase(t, env.DB)
	store := postgres.NewTransactionStore(env.Gorm, env.Logger)
	ctx := context.Background()

	previous := session.NewService(store, memory.NewConnectorRegistry(), session.NewIDAllocator(1), nil, env.Logger)
	first, err := previous.Start(ctx, ports.StartRequest{
		ConnectorID: 1,
		IdTag:       "TAG-001",
		MeterStart:  0,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Act: a fresh process seeds its allocator from the same database.
	allocator, err := session.NewIDAllocatorForStore(ctx, store, 1)
	if err != nil {
		t.Fatalf("allocator seeding failed: %v", err)
	}
	restarted := session.NewService(store, memory.NewConnectorRegistry(), allocator, nil, env.Logger)
	second, err := restarted.Start(ctx, ports.StartRequest{
		ConnectorID: 2,
		IdTag:       "TAG-001",
		MeterStart:  0,
		Timestamp:   time.Now().UTC(),
	})

	// Assert
	if err != nil {
		t.Fatalf("start after restart failed: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("expected id above %d after restart, got %d", first.ID, second.ID)
	}

	maxID, err := store.MaxID(ctx)
	if err != nil {
		t.Fatalf("MaxID failed: %v", err)
	}
	if maxID != second.ID {
		t.Errorf("expected max persisted id %d, got %d", second.ID, maxID)
	}
}
