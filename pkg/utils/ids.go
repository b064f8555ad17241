package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// GenID returns a new opaque identifier for vault files and users.
func GenID() string {
	return uuid.NewString()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowers a title into the slug charset used by record keys:
// lowercase words joined by hyphens.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonSlug.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
