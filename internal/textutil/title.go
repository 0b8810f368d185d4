package textutil

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	separatorPattern = regexp.MustCompile(`[_\-.]+`)
	spacePattern     = regexp.MustCompile(`\s+`)
	// Recorder filename prefixes and counters that carry no meaning for
	// display, e.g. "REC_20260831_093211" or "voice-memo-004".
	noisePattern = regexp.MustCompile(`(?i)^(rec|recording|voice[ ]?memo|memo|capture|audio)[ ]*\d*$`)
	datePattern  = regexp.MustCompile(`^\d{4}[ ]?\d{2}[ ]?\d{2}$|^\d{6,14}$`)

	titleCaser = cases.Title(language.English, cases.NoLower)
)

// DisplayTitle converts a recording file path into a human-readable title.
// Separators become spaces, numeric timestamp chunks and recorder prefixes
// are dropped, and the remainder is title-cased. Paths with nothing left
// after cleanup fall back to the bare filename.
func DisplayTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(name) == "" {
		return base
	}

	cleaned := separatorPattern.ReplaceAllString(name, " ")
	cleaned = spacePattern.ReplaceAllString(strings.TrimSpace(cleaned), " ")

	words := strings.Split(cleaned, " ")
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if datePattern.MatchString(word) {
			continue
		}
		kept = append(kept, word)
	}
	candidate := strings.Join(kept, " ")
	if candidate == "" || noisePattern.MatchString(candidate) {
		candidate = cleaned
	}

	return titleCaser.String(strings.ToLower(candidate))
}
