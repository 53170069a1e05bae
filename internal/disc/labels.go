package disc

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	allDigitsPattern = regexp.MustCompile(`^\d+$`)
	shortCodePattern = regexp.MustCompile(`^[A-Z0-9_]{1,4}$`)
)

// IsUnusableLabel returns true if the volume label says nothing about the
// disc's content. Such labels still name backups but are flagged in listings.
func IsUnusableLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return true
	}

	upper := strings.ToUpper(label)
	if isGenericLabel(upper) {
		return true
	}

	// All digits (e.g., "12345")
	if allDigitsPattern.MatchString(label) {
		return true
	}

	// Very short codes (e.g., "ABC", "X1")
	if shortCodePattern.MatchString(upper) {
		return true
	}

	// Disc label pattern (e.g., "MOVIE_DISC_1", "FILM_DISK_2")
	if (strings.Contains(upper, "DISC") || strings.Contains(upper, "DISK")) &&
		strings.Contains(upper, "_") {
		return true
	}

	// All uppercase with underscores, longer than 8 chars (technical label like "SOME_MOVIE_TITLE_DISC")
	if strings.Contains(label, "_") && label == upper && len(label) > 8 {
		return true
	}

	return false
}

var genericLabelPatterns = []string{
	"LOGICAL_VOLUME_ID", "VOLUME_ID", "DVD_VIDEO", "BLURAY", "BD_ROM",
	"UNTITLED", "UNKNOWN DISC", "VOLUME_", "VOLUME ID", "DISK_", "TRACK_",
}

func isGenericLabel(upper string) bool {
	for _, pattern := range genericLabelPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// DisplayTitle turns a volume identifier such as "THE_MATRIX_WS" into a
// readable title. Generic authoring labels yield "Unknown Disc".
func DisplayTitle(volumeID string) string {
	label := strings.TrimSpace(volumeID)
	if label == "" || isGenericLabel(strings.ToUpper(label)) {
		return "Unknown Disc"
	}
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range label {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Unknown Disc"
	}
	return cases.Title(language.Und).String(strings.ToLower(title))
}
