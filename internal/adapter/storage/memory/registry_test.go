package memory

import "testing"

func TestRegistry_ReserveAndRelease(t *testing.T) {
	// Arrange
	r := NewConnectorRegistry()

	// Act / Assert
	if active, ok := r.TryReserve(1, 10); !ok || active != 10 {
		t.Fatalf("expected reservation to succeed, got active=%d ok=%v", active, ok)
	}
	if active, ok := r.TryReserve(1, 11); ok || active != 10 {
		t.Errorf("expected conflict with 10, got active=%d ok=%v", active, ok)
	}
	if !r.Release(1, 10) {
		t.Error("expected release to succeed")
	}
	if _, busy := r.Active(1); busy {
		t.Error("expected connector free after release")
	}
	if active, ok := r.TryReserve(1, 11); !ok || active != 11 {
		t.Errorf("expected reservation after release, got active=%d ok=%v", active, ok)
	}
}

func TestRegistry_ReleaseMismatch(t *testing.T) {
	// Arrange
	r := NewConnectorRegistry()
	r.TryReserve(1, 10)

	// Act / Assert
	if r.Release(1, 99) {
		t.Error("expected mismatched release to fail")
	}
	if active, busy := r.Active(1); !busy || active != 10 {
		t.Error("mismatched release must not clear the reservation")
	}
	if r.Release(2, 10) {
		t.Error("expected release of free connector to fail")
	}
}

func TestRegistry_Known(t *testing.T) {
	// Arrange
	r := NewConnectorRegistry(1, 2)

	// Act / Assert
	if !r.Known(1) || !r.Known(2) {
		t.Error("expected seeded connectors to be known")
	}
	if r.Known(3) {
		t.Error("expected connector 3 unknown before first use")
	}
	r.TryReserve(3, 30)
	if !r.Known(3) {
		t.Error("expected connector known after first reservation")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	// Arrange
	r := NewConnectorRegistry(2, 1)
	r.TryReserve(2, 42)

	// Act
	connectors := r.Snapshot()

	// Assert: ordered by id, busy connector carries its transaction.
	if len(connectors) != 2 {
		t.Fatalf("expected 2 connectors, got %d", len(connectors))
	}
	if connectors[0].ID != 1 || connectors[0].ActiveTransactionID != nil {
		t.Errorf("expected connector 1 idle, got %+v", connectors[0])
	}
	if connectors[1].ID != 2 || connectors[1].ActiveTransactionID == nil || *connectors[1].ActiveTransactionID != 42 {
		t.Errorf("expected connector 2 busy with 42, got %+v", connectors[1])
	}
}
