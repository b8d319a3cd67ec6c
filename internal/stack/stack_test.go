package stack

import (
	"testing"

	"github.com/haasonsaas/stateflow/pkg/models"
)

func TestInitializeAndUpdate(t *testing.T) {
	m := New(nil)
	m.Initialize("demo", "Main", "Start")

	top := m.Top()
	if top == nil || top.PlanName != "Main" || top.DialogStateName != "Start" {
		t.Fatalf("unexpected top frame: %+v", top)
	}
	if top.LastHandlerIndex != -1 || top.EntryExecuted {
		t.Fatalf("fresh frame bookkeeping wrong: %+v", top)
	}

	m.RecordHandlerIndex(3)
	m.MarkEntryExecuted()
	m.UpdateCurrentState("Next")

	top = m.Top()
	if m.Depth() != 1 {
		t.Fatalf("same-plan transition must not push a frame, depth=%d", m.Depth())
	}
	if top.DialogStateName != "Next" || top.LastHandlerIndex != -1 || top.EntryExecuted {
		t.Fatalf("state update did not reset progress: %+v", top)
	}
}

func TestSwitchToPlanRecordsResumeInfo(t *testing.T) {
	m := New(nil)
	m.Initialize("demo", "Main", "A")
	m.MarkEntryExecuted()

	m.SwitchToPlan("Scene1", "Start", 1, "A")

	if m.Depth() != 2 {
		t.Fatalf("expected 2 frames, got %d", m.Depth())
	}
	caller := m.Frames()[0]
	if caller.DialogStateName != "A" || caller.LastHandlerIndex != 1 || !caller.EntryExecuted {
		t.Fatalf("caller resume info not recorded: %+v", caller)
	}
	top := m.Top()
	if top.PlanName != "Scene1" || top.DialogStateName != "Start" || top.EntryExecuted {
		t.Fatalf("pushed frame wrong: %+v", top)
	}
	if top.ScenarioName != "demo" {
		t.Fatalf("scenario name should carry into the new frame: %+v", top)
	}
}

func TestEndScenarioResumesAfterSwitchingHandler(t *testing.T) {
	m := New(nil)
	m.Initialize("demo", "Main", "A")
	m.MarkEntryExecuted()
	m.SwitchToPlan("Scene1", "Start", 1, "A")

	resume, ok := m.HandleEndScenario()
	if !ok {
		t.Fatal("expected a resume point")
	}
	if resume.Frame.PlanName != "Main" || resume.Frame.DialogStateName != "A" {
		t.Fatalf("resumed wrong frame: %+v", resume.Frame)
	}
	if resume.NextHandlerIndex != 2 {
		t.Fatalf("resume index = %d, want lastExecuted+1 = 2", resume.NextHandlerIndex)
	}
	if !resume.EntryExecuted {
		t.Fatal("entry action already ran for the caller frame")
	}
}

func TestEndScenarioCollapsesDuplicatePlanFrames(t *testing.T) {
	m := New(nil)
	m.Initialize("demo", "Main", "A")
	m.SwitchToPlan("Scene1", "S1", 0, "A")
	m.SwitchToPlan("Scene1", "S2", 0, "S1")

	resume, ok := m.HandleEndScenario()
	if !ok {
		t.Fatal("expected resume point after collapsing duplicates")
	}
	if resume.Frame.PlanName != "Main" {
		t.Fatalf("duplicate Scene1 frames should collapse, resumed %q", resume.Frame.PlanName)
	}
	if m.Depth() != 1 {
		t.Fatalf("expected single remaining frame, got %d", m.Depth())
	}
}

func TestEndScenarioOnLastFrameEndsSession(t *testing.T) {
	m := New(nil)
	m.Initialize("demo", "Main", "A")

	if _, ok := m.HandleEndScenario(); ok {
		t.Fatal("popping the last frame must signal session end")
	}
	if _, ok := m.HandleEndScenario(); ok {
		t.Fatal("empty stack must keep signalling session end")
	}
}

func TestSubPlanTransitionsDoNotClobberCallerIndex(t *testing.T) {
	m := New(nil)
	m.Initialize("demo", "Main", "A")
	m.SwitchToPlan("Scene1", "Start", 1, "A")

	// Progress inside the sub-plan must only touch the top frame.
	m.UpdateCurrentState("Mid")
	m.RecordHandlerIndex(4)
	m.UpdateCurrentState("End")

	resume, ok := m.HandleEndScenario()
	if !ok || resume.NextHandlerIndex != 2 {
		t.Fatalf("caller index clobbered by sub-plan: %+v ok=%v", resume, ok)
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	frames := []models.Frame{
		{ScenarioName: "demo", PlanName: "Main", DialogStateName: "A", LastHandlerIndex: 2, EntryExecuted: true},
	}
	m := New(frames)
	if m.Depth() != 1 || m.Top().LastHandlerIndex != 2 {
		t.Fatalf("snapshot restore lost state: %+v", m.Top())
	}
}
