package models

import (
	"regexp"
	"time"
)

// File is an entry in the file store, either uploaded directly or produced by
// a job. StoredName is the unique on-disk basename; DisplayName is the name
// the file was uploaded or produced under.
type File struct {
	ID          string    `json:"id"`
	StoredName  string    `json:"storedName"`
	DisplayName string    `json:"displayName"`
	SizeBytes   int64     `json:"sizeBytes"`
	MediaType   string    `json:"mediaType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	// Populated by list/detail queries.
	Tags []Tag `json:"tags,omitempty"`
}

// StoredName returns the canonical on-disk basename for a file id and
// display name.
func StoredName(id, displayName string) string {
	return id + "_" + displayName
}

var errorLogRe = regexp.MustCompile(`^error_[0-9a-fA-F-]+\.log$`)

// IsErrorLogName reports whether the display name matches the synthetic
// error-log artifact pattern produced by failed script runs.
func IsErrorLogName(displayName string) bool {
	return errorLogRe.MatchString(displayName)
}
