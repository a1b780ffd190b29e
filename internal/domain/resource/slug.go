package resource

import (
	"fmt"

	"github.com/gosimple/slug"
)

// Slugify derives the URL-safe slug base for a title. Collision handling
// (numeric suffix probing) lives in the lifecycle service; this only shapes
// the base.
func Slugify(title string) string {
	s := slug.Make(title)
	if s == "" {
		s = "untitled"
	}
	return s
}

// SlugCandidate returns the nth probe candidate for a base: the base itself
// for n == 0, then "base-1", "base-2", ...
func SlugCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}
