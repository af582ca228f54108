package citation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fields holds the raw bibliographic fields returned by a stage collaborator.
type Fields map[string]string

// ParseFields decodes the metadata JSON blob stored on an item.
func ParseFields(metadataJSON string) (Fields, error) {
	if strings.TrimSpace(metadataJSON) == "" {
		return Fields{}, nil
	}
	var fields Fields
	if err := json.Unmarshal([]byte(metadataJSON), &fields); err != nil {
		return nil, fmt.Errorf("parse metadata fields: %w", err)
	}
	return fields, nil
}

// Encode serializes fields back to the stored JSON form.
func (f Fields) Encode() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode metadata fields: %w", err)
	}
	return string(data), nil
}

// Result reports which required elements a citation is missing.
type Result struct {
	Complete bool
	Missing  []string
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// HasYear checks whether a citation string carries a four-digit year.
func HasYear(citation string) bool {
	return yearPattern.MatchString(citation)
}

// Validate checks a formatted citation plus its raw fields for the elements
// an archived reference must carry: a non-empty citation with a year, a
// title, an author or creator, and a resolvable URL.
func Validate(citationText string, fields Fields) Result {
	var missing []string

	citationText = strings.TrimSpace(citationText)
	switch {
	case citationText == "":
		missing = append(missing, "citation")
	case !HasYear(citationText):
		missing = append(missing, "year")
	}

	if strings.TrimSpace(fields["title"]) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(fields["author"]) == "" && strings.TrimSpace(fields["creators"]) == "" {
		missing = append(missing, "author")
	}
	if strings.TrimSpace(fields["url"]) == "" {
		missing = append(missing, "url")
	}

	return Result{Complete: len(missing) == 0, Missing: missing}
}

var titleCaser = cases.Title(language.English)

// NormalizeTitle repairs shouty or lowercased titles while leaving
// mixed-case titles untouched.
func NormalizeTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return title
	}
	hasUpper := strings.ContainsFunc(title, unicode.IsUpper)
	hasLower := strings.ContainsFunc(title, unicode.IsLower)
	if hasUpper && hasLower {
		return title
	}
	return titleCaser.String(strings.ToLower(title))
}

// Format builds a display citation of the form "Author (Year). Title." from
// whatever fields are available. Missing elements are simply omitted; the
// result may still fail Validate.
func Format(fields Fields) string {
	author := strings.TrimSpace(fields["author"])
	if author == "" {
		author = strings.TrimSpace(fields["creators"])
	}
	year := extractYear(fields["date"])
	if year == "" {
		year = extractYear(fields["year"])
	}
	title := NormalizeTitle(fields["title"])

	var parts []string
	if author != "" {
		parts = append(parts, author)
	}
	if year != "" {
		parts = append(parts, "("+year+")")
	}
	joined := strings.Join(parts, " ")
	if title != "" {
		if joined != "" {
			joined += ". "
		}
		joined += title
	}
	if joined != "" && !strings.HasSuffix(joined, ".") {
		joined += "."
	}
	return joined
}

func extractYear(value string) string {
	return yearPattern.FindString(value)
}
