// Package objection matches a prospect's words against a fixed corpus of
// objection categories and returns suggested handlers.
package objection

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sales-copilot/internal/domain"
)

//go:embed corpus.yaml
var defaultCorpus []byte

// Handler is a suggested reply for one matched category.
type Handler struct {
	Category     string              `json:"category"`
	ResponseType domain.ResponseType `json:"responseType"`
	Response     string              `json:"response"`
	Matched      string              `json:"matched"`
}

type category struct {
	Name         string              `yaml:"category"`
	ResponseType domain.ResponseType `yaml:"response_type"`
	Keywords     []string            `yaml:"keywords"`
	Responses    []string            `yaml:"responses"`
}

type corpus struct {
	Categories []category `yaml:"categories"`
}

// Index is an immutable keyword index. Safe for concurrent use.
type Index struct {
	categories []category
}

// Default returns the index built from the embedded corpus.
func Default() *Index {
	idx, err := Parse(defaultCorpus)
	if err != nil {
		panic(fmt.Sprintf("objection: embedded corpus: %v", err))
	}
	return idx
}

// Load reads a corpus file. An empty path yields the embedded corpus.
func Load(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objection: read corpus %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds an index from YAML corpus bytes.
func Parse(raw []byte) (*Index, error) {
	var c corpus
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("objection: decode corpus: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, errors.New("objection: corpus has no categories")
	}
	for i := range c.Categories {
		cat := &c.Categories[i]
		if cat.Name == "" {
			return nil, fmt.Errorf("objection: category %d has no name", i)
		}
		if !cat.ResponseType.IsObjection() {
			return nil, fmt.Errorf("objection: category %q maps to non-objection response type %q", cat.Name, cat.ResponseType)
		}
		if len(cat.Keywords) == 0 || len(cat.Responses) == 0 {
			return nil, fmt.Errorf("objection: category %q needs keywords and responses", cat.Name)
		}
		for j, kw := range cat.Keywords {
			cat.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	return &Index{categories: c.Categories}, nil
}

// FindHandlers returns one handler per matching category, in corpus order.
// No match is a normal result and yields an empty slice.
func (x *Index) FindHandlers(text string) []Handler {
	text = normalize(text)
	if text == "" {
		return []Handler{}
	}
	out := []Handler{}
	for _, cat := range x.categories {
		kw, ok := firstKeyword(text, cat.Keywords)
		if !ok {
			continue
		}
		for _, resp := range cat.Responses {
			out = append(out, Handler{
				Category:     cat.Name,
				ResponseType: cat.ResponseType,
				Response:     resp,
				Matched:      kw,
			})
		}
	}
	return out
}

// Classify returns the response type of the first matching category.
func (x *Index) Classify(text string) (domain.ResponseType, bool) {
	hs := x.FindHandlers(text)
	if len(hs) == 0 {
		return "", false
	}
	return hs[0].ResponseType, true
}

func firstKeyword(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// normalize lowercases and collapses whitespace and curly apostrophes.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "’", "'")
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
