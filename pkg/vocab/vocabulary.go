// Package vocab loads the closed relation vocabulary and validates fact
// relations against it.
package vocab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Relation is one entry in the vocabulary file.
type Relation struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	// Enabled defaults to true when omitted; only an explicit false disables.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled returns true unless the relation is explicitly disabled.
func (r Relation) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// vocabularyFile is the on-disk YAML shape.
type vocabularyFile struct {
	Relations []Relation `yaml:"relations"`
}

// Vocabulary is the loaded relation vocabulary. It is immutable after Load
// and safe for concurrent use.
type Vocabulary struct {
	relations map[string]Relation
	order     []string
}

// Load reads and parses the vocabulary YAML at the given path.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Vocabulary from raw YAML bytes.
func Parse(data []byte) (*Vocabulary, error) {
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary YAML: %w", err)
	}
	if len(file.Relations) == 0 {
		return nil, fmt.Errorf("vocabulary contains no relations")
	}

	v := &Vocabulary{
		relations: make(map[string]Relation, len(file.Relations)),
		order:     make([]string, 0, len(file.Relations)),
	}
	for _, r := range file.Relations {
		if r.ID == "" {
			return nil, fmt.Errorf("vocabulary relation with empty id")
		}
		if _, exists := v.relations[r.ID]; exists {
			return nil, fmt.Errorf("duplicate relation id %q", r.ID)
		}
		v.relations[r.ID] = r
		v.order = append(v.order, r.ID)
	}
	return v, nil
}

// Result describes the outcome of validating one relation tag.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Relation string   `json:"relation"`
	Enabled  bool     `json:"relation_enabled"`
}

// Validate checks a relation tag against the vocabulary. It is pure: no
// side effects, no I/O.
func (v *Vocabulary) Validate(relation string) Result {
	result := Result{Relation: relation}

	if relation == "" {
		result.Errors = append(result.Errors, "relation is empty")
		return result
	}

	r, ok := v.relations[relation]
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("relation %q is not in the vocabulary", relation))
		return result
	}

	result.Enabled = r.IsEnabled()
	if !result.Enabled {
		result.Errors = append(result.Errors, fmt.Sprintf("relation %q is disabled", relation))
		return result
	}

	result.Valid = true
	return result
}

// EnabledRelations returns the ids of all enabled relations in file order.
func (v *Vocabulary) EnabledRelations() []string {
	ids := make([]string, 0, len(v.order))
	for _, id := range v.order {
		if v.relations[id].IsEnabled() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Describe returns the description for a relation id, or empty string.
func (v *Vocabulary) Describe(relation string) string {
	return v.relations[relation].Description
}
