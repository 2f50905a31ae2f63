package sandbox

import (
	"context"
	"testing"

	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
)

func TestExecRunSuccess(t *testing.T) {
	e := NewExec()
	req := Request{
		Command: opgraph.CommandInfo{
			WorkingDirectory: "/",
			Executable:       "/bin/sh",
			Arguments:        "-c true",
		},
		AllowedReads:  []fsstate.Path{"/"},
		AllowedWrites: nil,
	}
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("expected success, got exit code %d", res.ExitCode)
	}
}

func TestExecRunFailureExitCode(t *testing.T) {
	e := NewExec()
	req := Request{
		Command: opgraph.CommandInfo{
			WorkingDirectory: "/",
			Executable:       "/bin/sh",
			Arguments:        "-c false",
		},
	}
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Succeeded() {
		t.Fatalf("expected failure")
	}
}
