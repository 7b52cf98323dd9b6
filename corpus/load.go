package corpus

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// fileFormat is the on-disk corpus layout. JSON files load as well since
// JSON is valid YAML.
//
//	categories:
//	  BOOK:
//	    - [[0.1, 2.3], [0.2, 2.1]]   # one sequence, two frames
//	    - [[0.3, 1.9]]
type fileFormat struct {
	Categories map[string][]Sequence `yaml:"categories" json:"categories"`
}

// Load reads a corpus file and builds the index.
func Load(path string) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	idx, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

// Decode parses corpus file contents.
func Decode(b []byte) (Index, error) {
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidCorpus)
	}
	return NewIndex(f.Categories)
}

// Encode renders an index in the corpus file format.
func Encode(idx Index) ([]byte, error) {
	f := fileFormat{Categories: make(map[string][]Sequence, len(idx))}
	for name, c := range idx {
		f.Categories[name] = c.Sequences
	}
	return yaml.Marshal(f)
}
