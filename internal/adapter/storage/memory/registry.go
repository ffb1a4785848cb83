package memory

import (
	"sort"
	"sync"

	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

// ConnectorRegistry tracks which transaction, if any, is active on each
// connector. Connectors are learned implicitly on first reservation; a fixed
// fleet can be seeded up front so Known answers before any session starts.
type ConnectorRegistry struct {
	mu     sync.Mutex
	active map[int]int64
	known  map[int]struct{}
}

func NewConnectorRegistry(seed ...int) *ConnectorRegistry {
	r := &ConnectorRegistry{
		active: make(map[int]int64),
		known:  make(map[int]struct{}),
	}
	for _, id := range seed {
		r.known[id] = struct{}{}
	}
	return r
}

var _ ports.ConnectorRegistry = (*ConnectorRegistry)(nil)

func (r *ConnectorRegistry) TryReserve(connectorID int, txID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known[connectorID] = struct{}{}
	if existing, busy := r.active[connectorID]; busy {
		return existing, false
	}
	r.active[connectorID] = txID
	return txID, true
}

func (r *ConnectorRegistry) Release(connectorID int, txID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, busy := r.active[connectorID]
	if !busy || existing != txID {
		return false
	}
	delete(r.active, connectorID)
	return true
}

func (r *ConnectorRegistry) Active(connectorID int) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txID, busy := r.active[connectorID]
	return txID, busy
}

func (r *ConnectorRegistry) Known(connectorID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.known[connectorID]
	return ok
}

// Snapshot lists every known connector in id order, carrying the id of the
// transaction currently occupying it when there is one.
func (r *ConnectorRegistry) Snapshot() []domain.Connector {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectors := make([]domain.Connector, 0, len(r.known))
	for id := range r.known {
		c := domain.Connector{ID: id}
		if txID, busy := r.active[id]; busy {
			c.ActiveTransactionID = &txID
		}
		connectors = append(connectors, c)
	}
	sort.Slice(connectors, func(i, j int) bool {
		return connectors[i].ID < connectors[j].ID
	})
	return connectors
}
