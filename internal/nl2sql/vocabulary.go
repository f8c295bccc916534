package nl2sql

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary maps English category tokens to the Portuguese labels stored in
// product_category_name.
type Vocabulary map[string]string

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"electronics":   "eletronicos",
		"furniture":     "moveis_decoracao",
		"fashion":       "fashion_bolsas_e_acessorios",
		"health_beauty": "beleza_saude",
		"toys":          "brinquedos",
		"books":         "livros_tecnicos",
	}
}

type vocabularyFile struct {
	Categories map[string]string `yaml:"categories"`
}

// LoadVocabulary reads a YAML file of the form
//
//	categories:
//	  electronics: eletronicos
//
// and layers its entries over the defaults. An empty path returns the defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	vocabulary := DefaultVocabulary()
	path = strings.TrimSpace(path)
	if path == "" {
		return vocabulary, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	return vocabulary.merge(raw)
}

func (v Vocabulary) merge(raw []byte) (Vocabulary, error) {
	var parsed vocabularyFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode vocabulary file: %w", err)
	}
	merged := make(Vocabulary, len(v)+len(parsed.Categories))
	for english, native := range v {
		merged[english] = native
	}
	for english, native := range parsed.Categories {
		english = strings.TrimSpace(english)
		native = strings.TrimSpace(native)
		if english == "" || native == "" {
			return nil, fmt.Errorf("vocabulary entry %q: english and native labels are required", english)
		}
		if strings.ContainsRune(english, '\'') || strings.ContainsRune(native, '\'') {
			return nil, fmt.Errorf("vocabulary entry %q: quotes are not allowed", english)
		}
		merged[english] = native
	}
	return merged, nil
}

// terms returns the English keys longest first so overlapping tokens resolve
// deterministically.
func (v Vocabulary) terms() []string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
