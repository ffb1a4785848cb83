package domain

// Connector is one addressable socket on a charge point. Connector ids are
// assigned by the field hardware, not by this system; a connector becomes
// known the first time a start request references it.
//
// ActiveTransactionID is a weak reference into the transaction store, kept
// as a derived index for connector-busy checks. The store owns the record.
type Connector struct {
	ID                  int    `json:"connector_id"`
	ActiveTransactionID *int64 `json:"active_transaction_id,omitempty"`
}
