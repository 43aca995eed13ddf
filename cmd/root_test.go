package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"serve", "index", "query", "version"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing subcommand %q", name)
		}
	}
}

func TestVersionCmd_Output(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestIndexCmd_RequiresNamespace(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"index", "transcript.json"})

	err := root.Execute()
	if err == nil {
		t.Fatal("Execute() succeeded without --namespace")
	}
	if !strings.Contains(err.Error(), "namespace") {
		t.Errorf("Execute() error = %v, want mention of namespace", err)
	}
}
