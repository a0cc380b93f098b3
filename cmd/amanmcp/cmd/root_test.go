package cmd

import (
	"bytes"
	"testing"
)

func TestNewRootCmdHasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"search", "searchd", "logs", "version"}
	for _, name := range want {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("expected a %q subcommand: %v", name, err)
		}
	}
}

func TestNewRootCmdHelpRunsWithoutArgs(t *testing.T) {
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected help text to be written")
	}
}

func TestStartStopLoggingNoopWithoutDebugFlag(t *testing.T) {
	debugMode = false
	if err := startLogging(nil, nil); err != nil {
		t.Fatalf("startLogging: %v", err)
	}
	if err := stopLogging(nil, nil); err != nil {
		t.Fatalf("stopLogging: %v", err)
	}
}
