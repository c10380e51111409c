package models

import "time"

// DisputeStatus captures the lifecycle of a chore dispute.
type DisputeStatus string

const (
	DisputeStatusPending  DisputeStatus = "pending"
	DisputeStatusApproved DisputeStatus = "approved"
	DisputeStatusRejected DisputeStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeStatusApproved || s == DisputeStatusRejected
}

// Valid reports whether s is a known status.
func (s DisputeStatus) Valid() bool {
	return s == DisputeStatusPending || s.Terminal()
}

// ResolutionSource records what moved a dispute out of pending.
type ResolutionSource string

const (
	ResolutionSourceQuorum   ResolutionSource = "quorum"
	ResolutionSourceDeadline ResolutionSource = "deadline"
)

// VoteChoice is a single member's verdict on a dispute.
type VoteChoice string

const (
	VoteChoiceApprove VoteChoice = "approve"
	VoteChoiceReject  VoteChoice = "reject"
)

// Valid reports whether c is approve or reject.
func (c VoteChoice) Valid() bool {
	return c == VoteChoiceApprove || c == VoteChoiceReject
}

// Dispute contests a completed chore. Everything except the resolution
// columns is fixed at creation.
type Dispute struct {
	ID               string            `db:"id" json:"id"`
	ChoreID          string            `db:"chore_id" json:"choreId"`
	HomeID           string            `db:"home_id" json:"homeId"`
	ClaimantEmail    string            `db:"claimant_email" json:"claimantEmail"`
	DisputerEmail    string            `db:"disputer_email" json:"disputerEmail"`
	Reason           string            `db:"reason" json:"reason"`
	EvidenceURL      *string           `db:"evidence_url" json:"evidenceUrl,omitempty"`
	Status           DisputeStatus     `db:"status" json:"status"`
	ResolutionSource *ResolutionSource `db:"resolution_source" json:"resolutionSource,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"createdAt"`
	ResolvedAt       *time.Time        `db:"resolved_at" json:"resolvedAt,omitempty"`
	EffectsAppliedAt *time.Time        `db:"effects_applied_at" json:"effectsAppliedAt,omitempty"`
}

// Vote is one member's live vote on a dispute, keyed by (DisputeID, VoterEmail).
type Vote struct {
	DisputeID  string     `db:"dispute_id" json:"disputeId"`
	VoterEmail string     `db:"voter_email" json:"voterEmail"`
	Choice     VoteChoice `db:"choice" json:"choice"`
	CastAt     time.Time  `db:"cast_at" json:"castAt"`
}

// VoteStatus is the derived tally of a dispute. Status and Resolved are
// authoritative; the counts are a snapshot.
type VoteStatus struct {
	DisputeID           string        `json:"disputeId"`
	ApproveVotes        int           `json:"approveVotes"`
	RejectVotes         int           `json:"rejectVotes"`
	TotalVotes          int           `json:"totalVotes"`
	TotalEligibleVoters int           `json:"totalEligibleVoters"`
	RequiredVotes       int           `json:"requiredVotes"`
	Is24HoursPassed     bool          `json:"is24HoursPassed"`
	Deadline            time.Time     `json:"deadline"`
	Status              DisputeStatus `json:"status"`
	Resolved            bool          `json:"resolved"`
}

// DisputeFilter constrains listing queries.
type DisputeFilter struct {
	Status  []DisputeStatus
	HomeID  string
	ChoreID string
	Limit   int
	Offset  int
}

// Resolution describes a completed pending -> terminal transition.
type Resolution struct {
	Outcome DisputeStatus
	Source  ResolutionSource
	At      time.Time
}

// DisputeResolvedEvent is published to subscribers once a dispute leaves pending.
type DisputeResolvedEvent struct {
	DisputeID     string           `json:"disputeId"`
	ChoreID       string           `json:"choreId"`
	HomeID        string           `json:"homeId"`
	ClaimantEmail string           `json:"claimantEmail"`
	Outcome       DisputeStatus    `json:"outcome"`
	Source        ResolutionSource `json:"source"`
	ResolvedAt    time.Time        `json:"resolvedAt"`
}

// NewDisputeResolvedEvent builds the event for a resolved dispute.
func NewDisputeResolvedEvent(d *Dispute) DisputeResolvedEvent {
	evt := DisputeResolvedEvent{
		DisputeID:     d.ID,
		ChoreID:       d.ChoreID,
		HomeID:        d.HomeID,
		ClaimantEmail: d.ClaimantEmail,
		Outcome:       d.Status,
	}
	if d.ResolutionSource != nil {
		evt.Source = *d.ResolutionSource
	}
	if d.ResolvedAt != nil {
		evt.ResolvedAt = *d.ResolvedAt
	}
	return evt
}
