package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestColorizePlainWhenNotTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "captured"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// A regular file is what the stream looks like under a pipe or
	// redirect: no escape sequences may reach it.
	if got := colorize(f, "compiled", "32"); got != "compiled" {
		t.Errorf("colorize to non-terminal = %q, want plain text", got)
	}
}
