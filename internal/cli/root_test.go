package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/matzehuels/linkage/pkg/buildinfo"
)

func TestSetVersion(t *testing.T) {
	v, c, d := buildinfo.Version, buildinfo.Commit, buildinfo.Date
	defer SetVersion(v, c, d)

	SetVersion("1.0.0", "abc123", "2024-01-01")

	if buildinfo.Version != "1.0.0" {
		t.Errorf("version = %q, want %q", buildinfo.Version, "1.0.0")
	}
	if buildinfo.Commit != "abc123" {
		t.Errorf("commit = %q, want %q", buildinfo.Commit, "abc123")
	}
	if buildinfo.Date != "2024-01-01" {
		t.Errorf("date = %q, want %q", buildinfo.Date, "2024-01-01")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"solve", "check", "loads", "drive", "sweep", "jog", "convert", "params", "runs", "cache", "serve", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCommandConfigFlag(t *testing.T) {
	var out bytes.Buffer
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", "/nonexistent/linkage.toml", "cache", "path"})
	if err := root.Execute(); err == nil {
		t.Error("missing explicit config should fail")
	}
}
