// Package catalog contains the storefront's core query logic: slug
// generation and the category resolver. Both are kept free of transport
// and SQL concerns so they can be exercised against any store.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrSlugExhausted is returned when repeated candidates all collide with
// existing slugs. With a random suffix on every candidate this only
// happens if the underlying existence check is broken.
var ErrSlugExhausted = errors.New("catalog: could not find an unused slug")

// maxSlugAttempts bounds the uniqueness loop. One iteration succeeds in
// the overwhelmingly common case; the cap keeps a misbehaving store from
// turning the loop into a spin.
const maxSlugAttempts = 10

// slugSuffixLen is the number of hex characters taken from a random UUID
// and appended to every candidate.
const slugSuffixLen = 8

// SlugChecker reports whether a slug is already taken by an item.
type SlugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// GenerateSlug derives a URL-safe, lowercase slug candidate from a display
// name. Runs of non-alphanumeric characters collapse to single hyphens and
// a short random suffix is appended, so calling it twice with the same
// name yields different candidates.
func GenerateSlug(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	base := strings.TrimSuffix(b.String(), "-")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:slugSuffixLen]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// UniqueSlug generates candidates for name until one is not present in the
// item collection and returns it. It performs reads only; the slug is
// persisted by the caller, whose write still runs into the store's unique
// index if someone claims the slug in between.
func UniqueSlug(ctx context.Context, checker SlugChecker, name string) (string, error) {
	for i := 0; i < maxSlugAttempts; i++ {
		slug := GenerateSlug(name)
		exists, err := checker.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
	}
	return "", ErrSlugExhausted
}
