package worker

// PolicyIngestPayload is the NSQ task for indexing one policy document.
type PolicyIngestPayload struct {
	PolicyID      string `json:"policy_id"`
	FileName      string `json:"file_name"`
	Path          string `json:"path"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
