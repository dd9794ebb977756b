package ner

import (
	"testing"
)

func TestExtractEntities_People(t *testing.T) {
	text := `I've been impressed by Hamel Husain's work on LLM evals.
	Simon Willison built amazing tools. Nathan Lambert wrote the RLHF book.`

	entities := ExtractEntities(text)

	people := filterByLabel(entities, "PERSON")
	if len(people) < 2 {
		t.Errorf("Expected at least 2 people, got %d: %v", len(people), people)
	}

	names := entityNames(people)
	if !contains(names, "Hamel Husain") {
		t.Error("Expected to find Hamel Husain")
	}
	if !contains(names, "Simon Willison") {
		t.Error("Expected to find Simon Willison")
	}
}

func TestExtractEntities_Empty(t *testing.T) {
	entities := ExtractEntities("")
	if len(entities) != 0 {
		t.Errorf("Expected 0 entities for empty input, got %d", len(entities))
	}
	if entities := ExtractEntities("   \n\t"); len(entities) != 0 {
		t.Errorf("Expected 0 entities for blank input, got %d", len(entities))
	}
}

func TestExtractEntities_NoEntities(t *testing.T) {
	text := "This is a simple sentence without any named entities."
	entities := ExtractEntities(text)
	// Should return empty or minimal false positives
	people := filterByLabel(entities, "PERSON")
	if len(people) > 0 {
		t.Errorf("Expected no people in generic text, got %d", len(people))
	}
}

func TestExtractPeople(t *testing.T) {
	text := `Hamel Husain and Eugene Yan work on AI evals.
	The conference was in New York.`

	people := ExtractPeople(text)

	if len(people) != 2 {
		t.Errorf("Expected 2 people, got %d: %v", len(people), people)
	}
}

func TestExtractPeople_Deduplicates(t *testing.T) {
	text := `Simon Willison wrote about LLMs. Later, Simon Willison shared more insights.`

	people := ExtractPeople(text)

	if len(people) != 1 {
		t.Errorf("Expected 1 unique person, got %d: %v", len(people), people)
	}
}

func TestPeople_FiltersBlocklistAndSingleWords(t *testing.T) {
	entities := []Entity{
		{Text: "Curriculum Vitae", Label: "PERSON"},
		{Text: "Jane", Label: "PERSON"},
		{Text: "Jane Doe's", Label: "PERSON"},
		{Text: "jane doe", Label: "PERSON"},
		{Text: "Acme", Label: "GPE"},
	}

	got := people(entities)
	if len(got) != 1 || got[0] != "Jane Doe" {
		t.Errorf("Expected [Jane Doe], got %v", got)
	}
}

func TestOrganizations_Dedupes(t *testing.T) {
	entities := []Entity{
		{Text: "Acme", Label: "GPE"},
		{Text: "Acme", Label: "ORG"},
		{Text: "LinkedIn", Label: "ORG"},
		{Text: "Jane Doe", Label: "PERSON"},
	}

	got := organizations(entities)
	if len(got) != 1 || got[0] != "Acme" {
		t.Errorf("Expected [Acme], got %v", got)
	}
}

func TestMentions_Labels(t *testing.T) {
	text := `Simon Willison wrote about LLMs. Later, Simon Willison shared more insights.`

	for _, m := range Mentions(text) {
		if m.Label != LabelPerson && m.Label != LabelOrg {
			t.Errorf("Unexpected label %q for %q", m.Label, m.Text)
		}
	}
}

// Helper functions
func filterByLabel(entities []Entity, label string) []Entity {
	var filtered []Entity
	for _, e := range entities {
		if e.Label == label {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func entityNames(entities []Entity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Text
	}
	return names
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
