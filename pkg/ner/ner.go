// Package ner finds people and organisations mentioned in document text
// using prose.
package ner

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// Entity labels stored with mentions.
const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
)

// Entity represents a named entity found in text.
type Entity struct {
	Text  string
	Label string // PERSON, GPE (org/location), etc.
}

// Terms commonly misidentified as people in résumés and profiles.
var notPeople = map[string]bool{
	// Section headings
	"curriculum vitae": true,
	"resume":           true,
	"references":       true,
	"skills":           true,
	"experience":       true,
	"education":        true,
	"summary":          true,
	"contact":          true,
	"portfolio":        true,
	"projects":         true,

	// Platforms
	"linkedin":       true,
	"github":         true,
	"gitlab":         true,
	"stack overflow": true,
	"twitter":        true,
	"medium":         true,

	// Technologies
	"python":     true,
	"javascript": true,
	"typescript": true,
	"go":         true,
	"golang":     true,
	"java":       true,
	"react":      true,
	"docker":     true,
	"kubernetes": true,
	"sql":        true,
	"aws":        true,

	// Boilerplate
	"available upon request": true,
	"references available":   true,
	"phone":                  true,
	"email":                  true,
}

// ExtractEntities extracts all named entities from text.
func ExtractEntities(text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return []Entity{}
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return []Entity{}
	}

	var entities []Entity
	for _, ent := range doc.Entities() {
		entities = append(entities, Entity{
			Text:  ent.Text,
			Label: ent.Label,
		})
	}

	return entities
}

// ExtractPeople extracts unique person names from text.
// Filters out section headings, platforms and technologies.
func ExtractPeople(text string) []string {
	return people(ExtractEntities(text))
}

func people(entities []Entity) []string {
	seen := make(map[string]bool)
	var names []string

	for _, ent := range entities {
		if ent.Label != "PERSON" {
			continue
		}
		name := normalizeName(ent.Text)
		nameLower := strings.ToLower(name)

		// Skip blocklisted terms
		if notPeople[nameLower] {
			continue
		}

		// Skip single words (usually false positives)
		if !strings.Contains(name, " ") && len(name) < 10 {
			continue
		}

		if !seen[nameLower] {
			seen[nameLower] = true
			names = append(names, name)
		}
	}

	return names
}

// ExtractOrganizations extracts unique organization names from text.
func ExtractOrganizations(text string) []string {
	return organizations(ExtractEntities(text))
}

func organizations(entities []Entity) []string {
	seen := make(map[string]bool)
	var orgs []string

	for _, ent := range entities {
		// prose uses GPE for geopolitical entities (orgs, places)
		if ent.Label != "GPE" && ent.Label != "ORG" {
			continue
		}
		name := strings.TrimSpace(ent.Text)
		if name == "" || notPeople[strings.ToLower(name)] {
			continue
		}
		if !seen[name] {
			seen[name] = true
			orgs = append(orgs, name)
		}
	}

	return orgs
}

// Mentions returns the people and organisations in text, people first,
// labelled LabelPerson and LabelOrg. The document is tagged once.
func Mentions(text string) []Entity {
	entities := ExtractEntities(text)

	var mentions []Entity
	for _, name := range people(entities) {
		mentions = append(mentions, Entity{Text: name, Label: LabelPerson})
	}
	for _, name := range organizations(entities) {
		mentions = append(mentions, Entity{Text: name, Label: LabelOrg})
	}
	return mentions
}

// normalizeName cleans up a person's name.
func normalizeName(name string) string {
	// Remove possessives
	name = strings.TrimSuffix(name, "'s")
	name = strings.TrimSuffix(name, "’s")
	return strings.TrimSpace(name)
}
