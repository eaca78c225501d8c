package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type testState struct {
	Phase string
	Log   []string
}

type testUpdate struct {
	Phase string
	Log   []string
}

func applyTest(s testState, u testUpdate) testState {
	if u.Phase != "" {
		s.Phase = u.Phase
	}
	s.Log = append(s.Log, u.Log...)
	return s
}

func record(phase string, entries ...string) NodeFunc[testState, testUpdate] {
	return func(ctx context.Context, s testState) (testUpdate, error) {
		return testUpdate{Phase: phase, Log: entries}, nil
	}
}

func TestRun_LinearMerge(t *testing.T) {
	g := New(applyTest)
	g.AddNode("a", record("one", "a ran"))
	g.AddNode("b", record("two", "b ran"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", End)

	final, err := g.Run(context.Background(), testState{}, "s1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final.Phase != "two" {
		t.Errorf("expected last-writer-wins phase \"two\", got %q", final.Phase)
	}
	if len(final.Log) != 2 || final.Log[0] != "a ran" || final.Log[1] != "b ran" {
		t.Errorf("expected concatenated log in order, got %v", final.Log)
	}
}

func TestRun_ConditionalRouting(t *testing.T) {
	g := New(applyTest)
	g.AddNode("entry", record("", "checked"))
	g.AddNode("happy", record("done", "happy"))
	g.AddNode("sad", record("aborted", "sad"))
	g.SetEntryPoint("entry")
	g.AddConditionalEdges("entry", func(s testState) string {
		if len(s.Log) > 0 && strings.Contains(s.Log[0], "checked") {
			return "ok"
		}
		return "fail"
	}, map[string]string{"ok": "happy", "fail": "sad"})
	g.AddEdge("happy", End)
	g.AddEdge("sad", End)

	final, err := g.Run(context.Background(), testState{}, "s1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final.Phase != "done" {
		t.Errorf("expected happy branch, got phase %q", final.Phase)
	}
}

func TestRun_UnknownBranchIsFatal(t *testing.T) {
	g := New(applyTest)
	g.AddNode("entry", record("", "x"))
	g.SetEntryPoint("entry")
	g.AddConditionalEdges("entry", func(s testState) string {
		return "nope"
	}, map[string]string{"ok": End})

	_, err := g.Run(context.Background(), testState{}, "s1")
	if err == nil || !strings.Contains(err.Error(), "unknown branch") {
		t.Errorf("expected unknown branch error, got %v", err)
	}
}

func TestRun_NodeErrorReturnsState(t *testing.T) {
	boom := errors.New("boom")
	g := New(applyTest)
	g.AddNode("a", record("one", "a ran"))
	g.AddNode("b", func(ctx context.Context, s testState) (testUpdate, error) {
		return testUpdate{}, boom
	})
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", End)

	final, err := g.Run(context.Background(), testState{}, "s1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped node error, got %v", err)
	}
	// State from the successful node survives.
	if final.Phase != "one" || len(final.Log) != 1 {
		t.Errorf("expected state from node a, got %+v", final)
	}
}

func TestRun_MissingEntry(t *testing.T) {
	g := New(applyTest)
	if _, err := g.Run(context.Background(), testState{}, "s1"); err == nil {
		t.Error("expected error without entry point")
	}
}

func TestRun_Checkpointing(t *testing.T) {
	saver := NewMemorySaver[testState]()
	g := New(applyTest)
	g.AddNode("a", record("one", "a"))
	g.AddNode("b", record("two", "b"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", End)
	g.SetCheckpointer(saver)

	if _, err := g.Run(context.Background(), testState{}, "session-7"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, ok, err := saver.Get("session-7")
	if err != nil || !ok {
		t.Fatalf("checkpoint not found: %v", err)
	}
	if got.Phase != "two" || len(got.Log) != 2 {
		t.Errorf("checkpoint is not the final state: %+v", got)
	}

	if _, ok, _ := saver.Get("other-session"); ok {
		t.Error("unexpected cross-session checkpoint")
	}
}

func TestRun_CanceledContext(t *testing.T) {
	g := New(applyTest)
	g.AddNode("a", record("one"))
	g.SetEntryPoint("a")
	g.AddEdge("a", End)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Run(ctx, testState{}, "s1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
