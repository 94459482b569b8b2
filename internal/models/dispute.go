package models

import "time"

type DisputeStatus string

const (
	DisputeOpen      DisputeStatus = "OPEN"
	DisputeResolved  DisputeStatus = "RESOLVED"
	DisputeDismissed DisputeStatus = "DISMISSED"
)

type Dispute struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transactionId"`
	RaisedBy      string        `json:"raisedBy"`
	Reason        string        `json:"reason,omitempty"`
	Status        DisputeStatus `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty"`
}
