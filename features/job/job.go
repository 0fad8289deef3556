package job

import (
	"encoding/json"
	"time"
)

// Job is a dead-lettered policy ingestion task awaiting manual retry.
type Job struct {
	ID        string          `json:"id"`
	PolicyID  string          `json:"policy_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
