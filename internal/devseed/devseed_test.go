package devseed

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `
keys:
  - key: dev-key
tables:
  - name: PROJETOS
    primary_key: [ID_PROJETO]
    rows:
      - {ID_PROJETO: 1, NOME: alpha}
      - {ID_PROJETO: 2, NOME: beta}
---
keys:
  - key: limited
    endpoints: [PROJETOS]
procedures:
  - name: matricula
    required: [MATR_ALUNO]
    result: [{STATUS: ok}]
`

func TestParseMergesDocuments(t *testing.T) {
	seed, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(seed.Keys) != 2 || seed.Keys[1].Endpoints[0] != "PROJETOS" {
		t.Fatalf("unexpected keys: %#v", seed.Keys)
	}
	if len(seed.Tables) != 1 || len(seed.Tables[0].Rows) != 2 {
		t.Fatalf("unexpected tables: %#v", seed.Tables)
	}
	if seed.Tables[0].Rows[1]["NOME"] != "beta" {
		t.Fatalf("unexpected row: %#v", seed.Tables[0].Rows[1])
	}
	if len(seed.Procedures) != 1 || seed.Procedures[0].Required[0] != "MATR_ALUNO" {
		t.Fatalf("unexpected procedures: %#v", seed.Procedures)
	}
}

func TestParseRejectsInvalidSeeds(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty key", body: "keys:\n  - key: ''\n"},
		{name: "unnamed table", body: "tables:\n  - rows: []\n"},
		{name: "duplicate table", body: "tables:\n  - name: A\n  - name: a\n"},
		{name: "unnamed procedure", body: "procedures:\n  - required: [X]\n"},
		{name: "bad yaml", body: "keys: [\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	seed, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(seed.Tables) != 1 {
		t.Fatalf("expected one table, got %d", len(seed.Tables))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
