package models

import "time"

// JobStatus is the lifecycle state of a job. Terminal states are never left.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSuccess   JobStatus = "SUCCESS"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether the status is SUCCESS or FAILED.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// Job is one scheduled execution of a function against an input file.
type Job struct {
	ID            string     `json:"id"`
	InputFileID   string     `json:"inputFileId"`
	FunctionID    string     `json:"functionId"`
	Status        JobStatus  `json:"status"`
	Error         string     `json:"error,omitempty"`
	OutputFileIDs []string   `json:"outputFileIds"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}
