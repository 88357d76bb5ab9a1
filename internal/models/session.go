package models

import (
	"time"
)

// Session is created by the session manager and consumed read-only by the
// workflow. Expiry is signalled by the manager, never set by the workflow.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	TTLMinutes int       `json:"ttlMinutes"`
	Language   string    `json:"language"`
	Expired    bool      `json:"expired"`
}
