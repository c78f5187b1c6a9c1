package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const schemaYAML = `models:
  - type: person
    refs:
      pets:
        model: pet
        many: true
  - type: pet
    refs:
      owner: person
`

const seedJSON = `[
  {"__type__": "person", "id": 1, "name": "Ada", "pets": [10, 11]},
  {"__type__": "pet", "id": 10, "name": "Rex", "owner": 1},
  {"__type__": "pet", "id": 11, "name": "Tom", "owner": 1}
]`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func fixtures(t *testing.T) (schema, seed string) {
	t.Helper()
	dir := t.TempDir()
	return writeTestFile(t, dir, "schema.yaml", schemaYAML), writeTestFile(t, dir, "seed.json", seedJSON)
}

func TestCheckPrintsCounts(t *testing.T) {
	schema, seed := fixtures(t)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"check", "--schema", schema, "--seed", seed}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	want := "person\t1\npet\t2\ntotal\t3\n"
	if stdout.String() != want {
		t.Fatalf("unexpected output %q, want %q", stdout.String(), want)
	}
	if !strings.Contains(stderr.String(), "graphstore runtime ready") {
		t.Fatalf("expected startup log on stderr, got %q", stderr.String())
	}
}

func TestDumpRoundTrips(t *testing.T) {
	schema, seed := fixtures(t)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"dump", "--schema", schema, "--seed", seed}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	var got []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	var want []map[string]any
	if err := json.Unmarshal([]byte(seedJSON), &want); err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	if got[0]["name"] != "Ada" || len(got[0]["pets"].([]any)) != 2 {
		t.Fatalf("unexpected first record %v", got[0])
	}
}

func TestReplayAppliesJournal(t *testing.T) {
	schema, seed := fixtures(t)
	journal := writeTestFile(t, t.TempDir(), "patches.jsonl",
		`{"type":"pet","id":10,"op":"replace","path":"/name","value":"Rover","old_value":"Rex","at":"2024-01-01T00:00:00Z"}`+"\n")

	var stdout, stderr bytes.Buffer
	code := cli([]string{"dump", "--schema", schema, "--seed", seed, "--replay", journal}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"Rover"`) {
		t.Fatalf("expected replayed name in dump, got %s", stdout.String())
	}
}

func TestFailures(t *testing.T) {
	schema, seed := fixtures(t)
	dir := t.TempDir()
	badSeed := writeTestFile(t, dir, "bad.json", `{"not": "an array"}`)
	badJournal := writeTestFile(t, dir, "bad.jsonl",
		`{"type":"pet","id":99,"op":"replace","path":"/name","value":"x"}`+"\n")

	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"missing seed", []string{"check", "--seed", filepath.Join(dir, "absent.json")}, 1, "read seed"},
		{"bad seed", []string{"check", "--seed", badSeed}, 1, "parse seed"},
		{"missing schema", []string{"check", "--schema", filepath.Join(dir, "absent.yaml")}, 1, "read schema"},
		{"missing config", []string{"check", "--config", filepath.Join(dir, "absent.yaml")}, 1, "reading config"},
		{"replay unknown record", []string{"check", "--schema", schema, "--seed", seed, "--replay", badJournal}, 1, "not found"},
		{"unknown flag", []string{"check", "--bogus"}, 2, "unknown flag"},
		{"extra args", []string{"check", "extra"}, 1, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := cli(tt.args, &stdout, &stderr)
			if code != tt.code {
				t.Fatalf("expected exit code %d, got %d (stderr %q)", tt.code, code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.msg) {
				t.Fatalf("expected %q in stderr, got %q", tt.msg, stderr.String())
			}
		})
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"graphstore", "check"}
	main()
	os.Args = []string{"graphstore", "check", "--config", filepath.Join(t.TempDir(), "absent.yaml")}
	main()

	if len(codes) != 2 || codes[0] != 0 || codes[1] != 1 {
		t.Fatalf("unexpected exit codes: %v", codes)
	}
}
