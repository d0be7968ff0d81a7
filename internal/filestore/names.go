package filestore

import (
	"regexp"

	"github.com/deltadb/deltadb/internal/dberr"
)

// nameCharset matches the spec §3 / §4.1 charset rule for database and
// key names: letters, digits, underscore, dot, hyphen. No slashes, no
// control characters, nothing that could traverse a directory.
var nameCharset = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidateName enforces the §4.1 charset rule for a database name or
// entity key, rejecting anything traversal-looking before any path is
// constructed from it.
func ValidateName(kind, name string) error {
	if name == "" {
		return dberr.New(dberr.BadInput, kind+" must not be empty")
	}
	if !nameCharset.MatchString(name) {
		return dberr.New(dberr.BadInput, kind+" contains invalid characters")
	}
	if name == "." || name == ".." {
		return dberr.New(dberr.BadInput, kind+" is not a valid name")
	}
	return nil
}
