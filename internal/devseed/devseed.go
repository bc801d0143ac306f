// Package devseed loads fixtures for the in-memory API used by tests and the
// sandbox. A seed file is YAML and may hold several documents, which are
// merged in order:
//
//	keys:
//	  - key: dev-key
//	    endpoints: [PROJETOS, procedure/matricula]
//	tables:
//	  - name: PROJETOS
//	    primary_key: [ID_PROJETO]
//	    required: [NOME]
//	    rows:
//	      - {ID_PROJETO: 1, NOME: alpha}
//	procedures:
//	  - name: matricula
//	    required: [MATR_ALUNO]
//	    result: [{STATUS: ok}]
package devseed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeySeed grants an API key access to endpoints. An empty list grants every
// endpoint.
type KeySeed struct {
	Key       string   `yaml:"key"`
	Endpoints []string `yaml:"endpoints"`
}

// TableSeed describes a table and its initial rows.
type TableSeed struct {
	Name       string           `yaml:"name"`
	PrimaryKey []string         `yaml:"primary_key"`
	Required   []string         `yaml:"required"`
	Columns    []string         `yaml:"columns"`
	Rows       []map[string]any `yaml:"rows"`
}

// ProcedureSeed describes a stored procedure returning a fixed result.
type ProcedureSeed struct {
	Name     string   `yaml:"name"`
	Required []string `yaml:"required"`
	Result   any      `yaml:"result"`
}

// Seed is the decoded content of a seed file.
type Seed struct {
	Keys       []KeySeed       `yaml:"keys"`
	Tables     []TableSeed     `yaml:"tables"`
	Procedures []ProcedureSeed `yaml:"procedures"`
}

// Load reads a seed file from disk.
func Load(path string) (*Seed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("devseed: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	seed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("devseed: %s: %w", path, err)
	}
	return seed, nil
}

// Parse decodes one or more YAML documents into a single Seed.
func Parse(data []byte) (*Seed, error) {
	out := &Seed{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc Seed
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
		out.Keys = append(out.Keys, doc.Keys...)
		out.Tables = append(out.Tables, doc.Tables...)
		out.Procedures = append(out.Procedures, doc.Procedures...)
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Seed) validate() error {
	for i, k := range s.Keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("keys[%d]: key is required", i)
		}
	}
	seen := make(map[string]bool, len(s.Tables))
	for i, t := range s.Tables {
		name := strings.ToUpper(strings.TrimSpace(t.Name))
		if name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("tables[%d]: duplicate table %q", i, t.Name)
		}
		seen[name] = true
	}
	for i, p := range s.Procedures {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("procedures[%d]: name is required", i)
		}
	}
	return nil
}
