package main

import (
	"strings"
	"testing"
)

func TestYesFlag_AcceptsShorthand(t *testing.T) {
	withMemPrefs(t)
	cases := []struct {
		name string
		args []string
	}{
		{name: "root_shorthand", args: []string{"-y", "--ratio", "bad", "x"}},
		{name: "root_long", args: []string{"--yes", "--ratio", "bad", "x"}},
		{name: "run_shorthand", args: []string{"run", "-y", "--ratio", "bad", "x"}},
		{name: "env_delete_long", args: []string{"env", "delete", "--yes", "extra"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := executeCommand(t, tc.args...)
			if err == nil {
				t.Fatalf("expected command error, got nil")
			}
			if strings.Contains(out, "unknown shorthand flag: 'y'") || strings.Contains(out, "unknown flag: --yes") {
				t.Fatalf("expected --yes/-y to be parsed, got output: %s", out)
			}
		})
	}
}

func TestRoot_HelpShowsPromptForm(t *testing.T) {
	out, err := executeCommand(t)
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if !strings.Contains(out, `imagine "<prompt>" [flags]`) {
		t.Fatalf("usage missing prompt form: %s", out)
	}
}

func TestAbout(t *testing.T) {
	out, err := executeCommand(t, "about")
	if err != nil || !strings.Contains(out, "imagine") {
		t.Fatalf("about: %v %s", err, out)
	}
}

func TestRoot_FlagsWithoutPrompt(t *testing.T) {
	_, err := executeCommand(t, "--zip")
	if err == nil || !strings.Contains(err.Error(), "prompt is required") {
		t.Fatalf("expected prompt error, got %v", err)
	}
}
