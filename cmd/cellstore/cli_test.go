package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const counterConfig = `
port: 8080
poll_interval: 10s

initial_state:
  count: 0

validators:
  - path: count
    rule: min:0

events:
  - name: inc
    op: inc
    path: count

subscriptions:
  - name: count
    path: count

script:
  - subscribe: count
  - dispatch: inc
  - dispatch: inc
    args: [5]
  - dispatch: inc
    args: [-100]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// execute runs the root command with args and returns captured output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		_ = replayCmd.Flags().Set("strict", "false")
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunValidate_ValidConfig(t *testing.T) {
	output, err := execute(t, "validate", "-c", writeConfig(t, counterConfig))
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Port:          8080",
		"Poll interval: 10s",
		"Events:        1",
		"Subscriptions: 1",
		"Validators:    1",
		"Script steps:  4",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing event name",
			content: `
events:
  - op: set
`,
			wantErr: "name is required",
		},
		{
			name: "initial state fails a validator",
			content: `
initial_state:
  count: -1
validators:
  - path: count
    rule: min:0
events:
  - name: inc
    op: inc
    path: count
`,
			wantErr: "initial_state: rejected by validator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "validate", "-c", writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("validate command expected error for invalid config, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "-c", "/nonexistent/path/store.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestRunReplay(t *testing.T) {
	output, err := execute(t, "replay", "-c", writeConfig(t, counterConfig))
	if err != nil {
		t.Fatalf("replay command error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	want := []string{
		`{"step":0,"op":"subscribe","name":"count","value":0}`,
		`{"step":1,"op":"dispatch","name":"inc"}`,
		`{"step":1,"op":"notify","name":"count","value":1}`,
		`{"step":2,"op":"dispatch","name":"inc","args":[5]}`,
		`{"step":2,"op":"notify","name":"count","value":6}`,
		`{"step":3,"op":"dispatch","name":"inc","args":[-100]}`,
		"", // rejected, checked below
		`{"step":4,"op":"state","value":{"count":6}}`,
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d\n%s", len(lines), len(want), output)
	}
	for i, w := range want {
		if w != "" && lines[i] != w {
			t.Errorf("line %d = %s, want %s", i, lines[i], w)
		}
	}

	var rejected replayLine
	if err := json.Unmarshal([]byte(lines[6]), &rejected); err != nil {
		t.Fatalf("decode line 6: %v", err)
	}
	if rejected.Op != "rejected" || !strings.Contains(rejected.Error, `rejected by validator "count min:0"`) {
		t.Errorf("line 6 = %+v, want a min:0 rejection", rejected)
	}
}

func TestRunReplay_Strict(t *testing.T) {
	_, err := execute(t, "replay", "--strict", "-c", writeConfig(t, counterConfig))
	if err == nil {
		t.Fatal("replay --strict expected error for a rejected step, got nil")
	}
	if !strings.Contains(err.Error(), "1 of 4 steps failed") {
		t.Errorf("error = %v, want step count", err)
	}
}

func TestRunReplay_RenewsEveryTuple(t *testing.T) {
	content := `
initial_state:
  scores: {a: 1, b: 2}
events:
  - name: score
    op: set
    path: scores
subscriptions:
  - name: score
    path: scores
script:
  - subscribe: score
    args: [a]
  - subscribe: score
    args: [b]
  - subscribe: score
    args: [a]
  - dispatch: score
    args: [b, 5]
`
	output, err := execute(t, "replay", "-c", writeConfig(t, content))
	if err != nil {
		t.Fatalf("replay command error = %v", err)
	}

	// the duplicate tuple is held once; one change renews both tuples
	var notifies []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.Contains(line, `"op":"notify"`) {
			notifies = append(notifies, line)
		}
	}
	want := []string{
		`{"step":3,"op":"notify","name":"score","args":["a"],"value":1}`,
		`{"step":3,"op":"notify","name":"score","args":["b"],"value":5}`,
	}
	if strings.Join(notifies, "\n") != strings.Join(want, "\n") {
		t.Errorf("notify lines =\n%s\nwant\n%s", strings.Join(notifies, "\n"), strings.Join(want, "\n"))
	}
}

func TestVersion(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(output, "cellstore dev") {
		t.Errorf("output = %q", output)
	}
}
