package models

// ChoreStatus mirrors the chore workflow owned by the chores collaborator.
type ChoreStatus string

const (
	ChoreStatusUnclaimed ChoreStatus = "unclaimed"
	ChoreStatusClaimed   ChoreStatus = "claimed"
	ChoreStatusComplete  ChoreStatus = "complete"
)

// Chore is the snapshot of a chore the dispute subsystem needs.
type Chore struct {
	ID            string      `db:"id" json:"id"`
	HomeID        string      `db:"home_id" json:"homeId"`
	Title         string      `db:"title" json:"title"`
	Status        ChoreStatus `db:"status" json:"status"`
	ClaimantEmail *string     `db:"claimed_by" json:"claimantEmail,omitempty"`
	Points        int         `db:"points" json:"points"`
}

// PointsEntry is a single ledger movement.
type PointsEntry struct {
	HomeID string `db:"home_id" json:"homeId"`
	Email  string `db:"email" json:"email"`
	Delta  int    `db:"delta" json:"delta"`
	Reason string `db:"reason" json:"reason"`
	RefID  string `db:"ref_id" json:"refId"`
}
