package models

// JobStatus represents the lifecycle state of a scrape job
type JobStatus string

const (
	// JobStatusPending indicates the job has been accepted but not started
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently executing
	JobStatusRunning JobStatus = "running"
	// JobStatusFinished indicates the job completed, possibly with partial results
	JobStatusFinished JobStatus = "finished"
	// JobStatusFailed indicates the job could not establish its portal session
	JobStatusFailed JobStatus = "failed"
)
