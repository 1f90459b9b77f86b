package ingest

import "time"

// Final status of one ingestion run.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Reasons carried on skipped and failed results. Skip reasons read as
// tenant-facing sentences; failure reasons are stable identifiers.
const (
	ReasonAuthExpired      = "auth_expired"
	ReasonFetchFailed      = "fetch_failed"
	ReasonStorageError     = "storage_error"
	ReasonAutoSyncDisabled = "auto_sync disabled"
	ReasonTierRequired     = "GitHub requires Scale tier"
)

// RunResult is the complete outcome of one tenant+source run. Runs never
// return Go errors to callers; every termination path folds into a
// result so the queue and the HTTP layer report uniformly.
type RunResult struct {
	TenantID     string    `json:"tenant_id"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	FetchedCount int       `json:"fetched_count"`
	StoredCount  int       `json:"stored_count"`
	Errors       []string  `json:"errors,omitempty"`
	Attempt      int       `json:"attempt,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Retryable reports whether re-running could help. Skips resolve
// themselves over time and expired credentials need the tenant to
// reconnect, so neither retries.
func (r RunResult) Retryable() bool {
	return r.Status == StatusFailed && r.Reason != ReasonAuthExpired
}

func (r RunResult) skipped(reason string) RunResult {
	r.Status = StatusSkipped
	r.Reason = reason
	return r
}

func (r RunResult) failed(reason string, err error) RunResult {
	r.Status = StatusFailed
	r.Reason = reason
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
	return r
}
