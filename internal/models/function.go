package models

import "time"

// Function is a registered user script together with the tag sets that drive
// its dispatch. A file whose tag set covers InputTagIDs triggers one job per
// match; outputs are retagged with OutputTagIDs.
type Function struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ScriptRef string    `json:"scriptRef"`
	CreatedAt time.Time `json:"createdAt"`

	InputTagIDs  []string `json:"inputTagIds"`
	OutputTagIDs []string `json:"outputTagIds"`
}
