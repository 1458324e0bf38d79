package models

import "time"

// Lineage is the provenance edge from an output file to the source file and
// function that produced it. Success is false for error-log artifacts.
type Lineage struct {
	ID           string    `json:"id"`
	OutputFileID string    `json:"outputFileId"`
	SourceFileID string    `json:"sourceFileId"`
	FunctionID   string    `json:"functionId"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"createdAt"`
}
