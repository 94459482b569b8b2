package models

import "time"

// StatusChange is one append-only entry in a transaction's audit trail.
type StatusChange struct {
	ID            int64     `json:"id"`
	TransactionID string    `json:"transactionId"`
	FromStatus    Status    `json:"fromStatus"`
	ToStatus      Status    `json:"toStatus"`
	Action        string    `json:"action"`
	ActorID       string    `json:"actorId"`
	ActorRole     Role      `json:"actorRole"`
	CreatedAt     time.Time `json:"createdAt"`
}
