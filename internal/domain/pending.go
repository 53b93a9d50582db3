package domain

import "time"

// Action is the kind of mutation a PendingMutation replays.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the three mutation kinds.
func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// PendingMutation is a create/update/delete that could not be confirmed
// against the remote store. The queue is an ordered sequence; replay
// happens in enqueue order, and the same transaction id may appear more
// than once (created then edited while offline).
type PendingMutation struct {
	Action Action `json:"action"`
	// Transaction is the payload as it should exist after the mutation.
	// For delete it references the transaction being removed.
	Transaction Transaction `json:"transaction"`
	// TargetID is the id the mutation applies to. It can differ from
	// Transaction.ID when the remote store reassigned the id on create.
	TargetID string    `json:"targetId,omitempty"`
	QueuedAt time.Time `json:"queuedAt"`
}

// ReplayID returns the id the remote call should address.
func (m PendingMutation) ReplayID() string {
	if m.TargetID != "" {
		return m.TargetID
	}
	return m.Transaction.ID
}

// Validate rejects programmer-error inputs: unknown action, or a missing
// payload for create/update.
func (m PendingMutation) Validate() error {
	if !m.Action.Valid() {
		return &ErrValidation{Field: "action", Message: "must be create, update or delete"}
	}
	if m.Action != ActionDelete && m.Transaction.ID == "" {
		return &ErrValidation{Field: "transaction", Message: "payload required for " + string(m.Action)}
	}
	return nil
}
