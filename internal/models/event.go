package models

import "time"

// EventKind classifies the terminal outcome of one pipeline pass.
type EventKind string

const (
	EventRejected  EventKind = "rejected"  // validation, authorization or provisioning failure
	EventFulfilled EventKind = "fulfilled" // token spent, pending record removed
	EventStranded  EventKind = "stranded"  // credential retained, awaiting manual recovery
)

// PipelineEvent is published for every terminal pipeline outcome.
// Used across the monitor and messaging layers.
type PipelineEvent struct {
	EventID     string    `json:"event_id"`
	Kind        EventKind `json:"kind"`
	Requester   string    `json:"requester"`
	Account     string    `json:"account,omitempty"`
	BlockHeight uint32    `json:"block_height"`
	TxID        string    `json:"tx_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
