package types

import "testing"

func TestLineCounts_Percent(t *testing.T) {
	tests := []struct {
		name   string
		counts LineCounts
		want   float64
	}{
		{"eighty percent", LineCounts{Covered: 80, Missed: 20}, 80.00},
		{"zero total", LineCounts{}, 0.00},
		{"rounds to two decimals", LineCounts{Covered: 1, Missed: 2}, 33.33},
		{"rounds up", LineCounts{Covered: 2, Missed: 1}, 66.67},
		{"full", LineCounts{Covered: 7}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.counts.Percent(); got != tt.want {
				t.Errorf("Percent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewStepResult(t *testing.T) {
	res := NewStepResult(4, LineCounts{Covered: 80, Missed: 20})
	if res.Step != 4 {
		t.Errorf("Step = %d, want 4", res.Step)
	}
	if res.TotalLines != 100 {
		t.Errorf("TotalLines = %d, want 100", res.TotalLines)
	}
	if res.CoveragePercent != 80 {
		t.Errorf("CoveragePercent = %v, want 80", res.CoveragePercent)
	}
}

func TestCoverageRun_RecordAndFailAreExclusive(t *testing.T) {
	run := NewCoverageRun("s1", 3)
	run.Fail(1, "tool exited with code 1")
	run.Record(StepResult{Step: 1, CoveragePercent: 10})

	if _, failed := run.Failed[1]; failed {
		t.Error("step 1 should no longer be failed after Record")
	}

	run.Fail(1, "again")
	if _, ok := run.Steps[1]; ok {
		t.Error("step 1 should no longer have a result after Fail")
	}
}

func TestCoverageRun_Complete(t *testing.T) {
	run := NewCoverageRun("s1", 3)
	if run.Complete() {
		t.Fatal("empty run should not be complete")
	}
	if got := run.NextUnresolved(); got != 0 {
		t.Errorf("NextUnresolved = %d, want 0", got)
	}

	run.Record(StepResult{Step: 0})
	run.Fail(1, "x")
	if got := run.NextUnresolved(); got != 2 {
		t.Errorf("NextUnresolved = %d, want 2", got)
	}

	run.Record(StepResult{Step: 2})
	if !run.Complete() {
		t.Error("run with all steps resolved should be complete")
	}
	if got := run.FailedIndices(); len(got) != 1 || got[0] != 1 {
		t.Errorf("FailedIndices = %v, want [1]", got)
	}
	if got := run.StepIndices(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("StepIndices = %v, want [0 2]", got)
	}
}

func TestStepKey_RoundTrip(t *testing.T) {
	if got := StepKey(12); got != "Step_12" {
		t.Errorf("StepKey(12) = %q", got)
	}

	n, err := ParseStepKey("Step_12")
	if err != nil {
		t.Fatalf("ParseStepKey: %v", err)
	}
	if n != 12 {
		t.Errorf("ParseStepKey = %d, want 12", n)
	}

	for _, bad := range []string{"12", "Step_", "Step_x", "Step_-1", "step_1"} {
		if _, err := ParseStepKey(bad); err == nil {
			t.Errorf("ParseStepKey(%q) should fail", bad)
		}
	}
}

func TestStepRecord_Apply(t *testing.T) {
	run := NewCoverageRun("s1", 2)

	ok := &StepRecord{Step: 0, Status: StepSucceeded, Result: &StepResult{Step: 0, CoveragePercent: 42}}
	ok.Apply(run)
	bad := &StepRecord{Step: 1, Status: StepExhausted, Reason: "report missing"}
	bad.Apply(run)

	if run.Steps[0].CoveragePercent != 42 {
		t.Errorf("step 0 percent = %v, want 42", run.Steps[0].CoveragePercent)
	}
	if run.Failed[1] != "report missing" {
		t.Errorf("step 1 reason = %q", run.Failed[1])
	}
}
