package build

import "strings"

// Set at build time using ldflags.
var (
	Version = "dev"
	AppName = "Tagpipe"
	Slug    = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
