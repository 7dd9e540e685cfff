package credentials

import (
	"fmt"
	"strings"
)

const (
	// SlugMinLength and SlugMaxLength bound tenant slugs.
	SlugMinLength = 3
	SlugMaxLength = 63
)

// GenerateSlug derives a slug from a display name: lowercased, spaces to
// hyphens, everything outside [a-z0-9-] dropped.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

// ValidateSlug checks that a tenant slug is 3-63 characters of lowercase
// letters, digits and hyphens, with no leading, trailing or doubled hyphen.
func ValidateSlug(slug string) error {
	if len(slug) < SlugMinLength || len(slug) > SlugMaxLength {
		return fmt.Errorf("slug must be %d-%d characters, got %d", SlugMinLength, SlugMaxLength, len(slug))
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return fmt.Errorf("slug must not start or end with a hyphen")
	}
	if strings.Contains(slug, "--") {
		return fmt.Errorf("slug must not contain consecutive hyphens")
	}
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("slug contains invalid character %q", r)
	}
	return nil
}
