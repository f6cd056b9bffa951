package gpu

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	out := "1234, python, 512 MiB\n" +
		"  77 , miner.exe , [N/A]\n" +
		"abc, bad, 1 MiB\n" +
		"only, two\n" +
		"\n" +
		"9, a,b, 3 MiB\n"
	got := Parse(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 processes, got %#v", got)
	}
	if got[0].PID != 1234 || got[0].Name != "python" || got[0].MemoryMB == nil || *got[0].MemoryMB != 512 {
		t.Fatalf("unexpected first process %#v", got[0])
	}
	if got[1].PID != 77 || got[1].Name != "miner.exe" || got[1].MemoryMB != nil {
		t.Fatalf("unexpected second process %#v", got[1])
	}
}

func TestParseEmpty(t *testing.T) {
	if got := Parse(""); len(got) != 0 {
		t.Fatalf("expected no processes, got %#v", got)
	}
}

func TestProcessesUnavailable(t *testing.T) {
	i := NewInspector(nil)
	i.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	procs, err := i.Processes(context.Background())
	if !errors.Is(err, ErrUnavailable) || procs != nil {
		t.Fatalf("expected ErrUnavailable, got %v (%v)", procs, err)
	}
}

func TestProcessesRunsQuery(t *testing.T) {
	i := NewInspector(nil)
	i.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	var gotName string
	var gotArgs []string
	i.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("42, render, 100 MiB\n"), nil
	}
	procs, err := i.Processes(context.Background())
	if err != nil {
		t.Fatalf("processes: %v", err)
	}
	if gotName != "/usr/bin/nvidia-smi" || !reflect.DeepEqual(gotArgs, queryArgs) {
		t.Fatalf("unexpected invocation %s %v", gotName, gotArgs)
	}
	if len(procs) != 1 || procs[0].PID != 42 || *procs[0].MemoryMB != 100 {
		t.Fatalf("unexpected processes %#v", procs)
	}
}

func TestProcessesToolFailure(t *testing.T) {
	i := NewInspector(nil)
	i.lookPath = func(name string) (string, error) { return name, nil }
	boom := errors.New("driver mismatch")
	i.run = func(context.Context, string, ...string) ([]byte, error) { return nil, boom }
	if _, err := i.Processes(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
