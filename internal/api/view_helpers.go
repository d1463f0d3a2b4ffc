package api

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var labelCaser = cases.Title(language.English)

// HumanizeLabel converts an internal enum value such as "key-requesting" or
// "session_opened" into a display label ("Key Requesting", "Session Opened").
func HumanizeLabel(value string) string {
	if value == "" {
		return ""
	}
	cleaned := strings.NewReplacer("_", " ", "-", " ").Replace(value)
	return labelCaser.String(cleaned)
}
