package branches

import (
	"time"
)

// Branch represents a retail branch. Every ledger entry and movement is
// scoped to one branch.
type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
