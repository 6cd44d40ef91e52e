package main

import (
	"strings"
	"testing"
)

func TestSpeakInputFromArgs(t *testing.T) {
	text, err := speakInput([]string{"hello", "there"}, strings.NewReader(""))
	if err != nil {
		t.Fatalf("speakInput: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestSpeakInputFromStdin(t *testing.T) {
	text, err := speakInput(nil, strings.NewReader("  piped text\n"))
	if err != nil {
		t.Fatalf("speakInput: %v", err)
	}
	if text != "piped text" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestSpeakInputEmpty(t *testing.T) {
	if _, err := speakInput(nil, strings.NewReader("   \n")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestBuildRootCommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"serve": false, "install": false, "start": false, "stop": false,
		"restart": false, "status": false, "logs": false, "voices": false, "speak": false,
	}
	for _, cmd := range root.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
