package extractor

import (
	"regexp"
	"strings"
)

// Type is the semantic tag of an extracted link.
type Type string

// Link types produced by the default families.
const (
	TypeMarkdown Type = "markdown"
	TypeURL      Type = "url"
	TypeEmail    Type = "email"
	TypeLinkedIn Type = "linkedin"
	TypeGitHub   Type = "github"
)

// Family IDs of the default families, in priority order.
const (
	FamilyMarkdown = "markdown"
	FamilyURL      = "url"
	FamilyEmail    = "email"
	FamilyWWW      = "www"
	FamilyLinkedIn = "linkedin"
	FamilyGitHub   = "github"
)

// Match is one regular expression match inside a single line.
type Match struct {
	Text   string   // full matched substring
	Groups []string // capture groups; Groups[0] is Text
	Start  int      // byte offset of the match in the line
	End    int
}

// Family is one category of link pattern. Families carry no state between
// calls; Matches may be used concurrently.
type Family struct {
	ID      string
	Type    Type
	Pattern *regexp.Regexp
	// Derive returns the label and target for a match.
	Derive func(m Match) (linkText, url string)
	// Refines names the type this family specializes. When overlaps are
	// suppressed, a match landing on an already emitted record of that
	// type retypes the record instead of producing a new one.
	Refines Type
}

// Matches returns all non-overlapping matches of the family in line, left
// to right.
func (f Family) Matches(line string) []Match {
	all := f.Pattern.FindAllStringSubmatchIndex(line, -1)
	if all == nil {
		return nil
	}

	matches := make([]Match, 0, len(all))
	for _, loc := range all {
		groups := make([]string, len(loc)/2)
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = line[loc[2*g]:loc[2*g+1]]
			}
		}
		matches = append(matches, Match{
			Text:   groups[0],
			Groups: groups,
			Start:  loc[0],
			End:    loc[1],
		})
	}
	return matches
}

// Go's \s is ASCII-only; text lifted from PDFs often carries no-break spaces.
const notSpace = `[^\s\p{Zs}`

var (
	markdownPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	bareURLPattern  = regexp.MustCompile(`https?://` + notSpace + `\]]+`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	wwwPattern      = regexp.MustCompile(`www\.[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}` + notSpace + `]*`)
	linkedInPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?linkedin\.com/in/` + notSpace + `\]]+`)
	gitHubPattern   = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?github\.com/` + notSpace + `/\]]+`)
)

// DefaultFamilies returns the built-in families in priority order:
// markdown, bare URL, email, www address, LinkedIn profile, GitHub profile.
func DefaultFamilies() []Family {
	return []Family{
		{
			ID:      FamilyMarkdown,
			Type:    TypeMarkdown,
			Pattern: markdownPattern,
			Derive: func(m Match) (string, string) {
				return m.Groups[1], m.Groups[2]
			},
		},
		{
			ID:      FamilyURL,
			Type:    TypeURL,
			Pattern: bareURLPattern,
			Derive: func(m Match) (string, string) {
				return m.Text, m.Text
			},
		},
		{
			ID:      FamilyEmail,
			Type:    TypeEmail,
			Pattern: emailPattern,
			Derive: func(m Match) (string, string) {
				return m.Text, "mailto:" + m.Text
			},
		},
		{
			ID:      FamilyWWW,
			Type:    TypeURL,
			Pattern: wwwPattern,
			Derive:  deriveWithScheme,
		},
		{
			ID:      FamilyLinkedIn,
			Type:    TypeLinkedIn,
			Pattern: linkedInPattern,
			Derive:  deriveWithScheme,
			Refines: TypeURL,
		},
		{
			ID:      FamilyGitHub,
			Type:    TypeGitHub,
			Pattern: gitHubPattern,
			Derive:  deriveWithScheme,
			Refines: TypeURL,
		},
	}
}

// FamilyIDs returns the IDs of the default families in priority order.
func FamilyIDs() []string {
	families := DefaultFamilies()
	ids := make([]string, len(families))
	for i, f := range families {
		ids[i] = f.ID
	}
	return ids
}

func deriveWithScheme(m Match) (string, string) {
	return m.Text, WithScheme(m.Text)
}

// WithScheme prepends https:// unless s already starts with an http or
// https scheme.
func WithScheme(s string) string {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + s
}
