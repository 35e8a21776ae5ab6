package lode

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/policy"
	"github.com/pithecene-io/ordo/types"
)

// sharedFactory returns a StoreFactory that always returns the given store,
// so write and read datasets share one in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(runID string) Config {
	return Config{
		Dataset: "ordo",
		Project: "auth-service",
		Day:     "2026-10-17",
		RunID:   runID,
	}
}

func succeeded(step int, pct float64) *types.StepRecord {
	return &types.StepRecord{
		RunID:    "run-1",
		Strategy: "strategy1",
		Step:     step,
		Tests:    []types.TestID{"A#a"},
		Status:   types.StepSucceeded,
		Attempts: 1,
		Result: &types.StepResult{
			Step:            step,
			CoveredLines:    8,
			MissedLines:     2,
			TotalLines:      10,
			CoveragePercent: pct,
			Attempts:        1,
			Units: map[string]types.UnitCoverage{
				"com.acme.Auth": {Covered: 8, Missed: 2, Total: 10},
			},
		},
	}
}

func TestLodeClient_StepsRoundTrip(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("run-1"), sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory: %v", err)
	}

	exhausted := &types.StepRecord{
		RunID:    "run-1",
		Strategy: "strategy1",
		Step:     1,
		Tests:    []types.TestID{"A#a", "B#b"},
		Status:   types.StepExhausted,
		Attempts: 3,
		Reason:   "tool_failed: exit status 1",
	}

	ctx := t.Context()
	if err := client.WriteSteps(ctx, "strategy1", []*types.StepRecord{succeeded(0, 80)}); err != nil {
		t.Fatalf("WriteSteps: %v", err)
	}
	if err := client.WriteSteps(ctx, "strategy1", []*types.StepRecord{exhausted}); err != nil {
		t.Fatalf("WriteSteps: %v", err)
	}
	if err := client.WriteSteps(ctx, "strategy2", []*types.StepRecord{succeeded(0, 50)}); err != nil {
		t.Fatalf("WriteSteps: %v", err)
	}

	ds, err := NewReadDataset("ordo", sharedFactory(store))
	if err != nil {
		t.Fatalf("NewReadDataset: %v", err)
	}

	got, err := QuerySteps(ctx, ds, Filter{RunID: "run-1", Strategy: "strategy1"})
	if err != nil {
		t.Fatalf("QuerySteps: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}

	if diff := cmp.Diff(succeeded(0, 80), got[0]); diff != "" {
		t.Errorf("step 0 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(exhausted, got[1]); diff != "" {
		t.Errorf("step 1 mismatch (-want +got):\n%s", diff)
	}

	all, err := QuerySteps(ctx, ds, Filter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QuerySteps all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered query returned %d records, want 3", len(all))
	}
}

func TestQuerySteps_RunIDIsExact(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("run-10"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.WriteSteps(t.Context(), "strategy1", []*types.StepRecord{succeeded(0, 80)}); err != nil {
		t.Fatal(err)
	}

	ds, err := NewReadDataset("ordo", sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	_, err = QuerySteps(t.Context(), ds, Filter{RunID: "run-1"})
	if !errors.Is(err, ErrNoRecordsFound) {
		t.Errorf("expected ErrNoRecordsFound for run-1, got %v", err)
	}
}

func TestLodeClient_ScoresAndMetrics(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("run-2"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()

	scores := []types.StrategyScore{
		{Strategy: "strategy1", DisplayName: "TF-IDF Based", Value: 61.5, Steps: 4, FailedSteps: 1},
		{Strategy: "strategy2", NoData: true, FailedSteps: 5},
	}
	if err := client.WriteScores(ctx, scores); err != nil {
		t.Fatalf("WriteScores: %v", err)
	}

	coll := metrics.NewCollector("strict", "maven", "memory", "run-2", "strategy1")
	coll.IncAttempt()
	coll.IncAttemptFailure("report_missing")
	if err := client.WriteMetrics(ctx, "strategy1", coll.Snapshot()); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	ds, err := NewReadDataset("ordo", sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}

	gotScores, err := QueryScores(ctx, ds, Filter{RunID: "run-2"})
	if err != nil {
		t.Fatalf("QueryScores: %v", err)
	}
	if diff := cmp.Diff(scores, gotScores); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}

	snap, err := QueryLatestMetrics(ctx, ds, Filter{RunID: "run-2", Strategy: "strategy1"})
	if err != nil {
		t.Fatalf("QueryLatestMetrics: %v", err)
	}
	if snap.Attempts != 1 || snap.FailuresByReason["report_missing"] != 1 || snap.Strategy != "strategy1" {
		t.Errorf("metrics snapshot = %+v", snap)
	}
}

func TestLodeClient_WriteOrdering(t *testing.T) {
	client, err := NewLodeClientWithFactory(testConfig("run-3"), lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}
	rec := OrderingRecord{
		Strategy: "strategy4",
		Tests:    []string{"A#a", "A#a"},
		Errors:   []string{`duplicate test "A#a" at position 1`},
	}
	if err := client.WriteOrdering(t.Context(), rec); err != nil {
		t.Fatalf("WriteOrdering: %v", err)
	}
}

func TestLodeClient_InitFailureIsClassified(t *testing.T) {
	_, err := NewLodeClientWithFactory(testConfig("run-4"), func() (lode.Store, error) {
		return nil, errors.New("permission denied")
	})
	if err == nil {
		// Lode may defer store creation to the first write.
		return
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "init" {
		t.Errorf("expected init StorageError, got %v", err)
	}
}

func TestStoreFileWriter_HivePath(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("run-5"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}

	fw := client.FileWriter("combined")
	if err := fw.PutFile(t.Context(), "logs/step_0_attempt1.log", "text/plain", []byte("BUILD SUCCESS")); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	want := "datasets/ordo/partitions/project=auth-service/strategy=combined/day=2026-10-17/run_id=run-5/files/logs/step_0_attempt1.log"
	rc, err := store.Get(t.Context(), want)
	if err != nil {
		t.Fatalf("Get(%s): %v", want, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "BUILD SUCCESS" {
		t.Errorf("stored data = %q", data)
	}

	if err := fw.PutFile(t.Context(), "../escape.log", "text/plain", nil); err == nil {
		t.Error("expected error for escaping name")
	}
}

func TestDirFileWriter_AndTee(t *testing.T) {
	dir := t.TempDir()
	stub := NewStubFileWriter()
	tee := TeeFileWriter{NewDirFileWriter(dir), stub}

	if err := tee.PutFile(t.Context(), "xmls/step_2.xml", "application/xml", []byte("<report/>")); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "xmls", "step_2.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<report/>" {
		t.Errorf("file content = %q", data)
	}
	if diff := cmp.Diff([]string{"xmls/step_2.xml"}, stub.Names()); diff != "" {
		t.Errorf("stub names mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateFileName(t *testing.T) {
	valid := []string{"a.log", "logs/step_0_attempt1.log", "execs/step_3.exec"}
	invalid := []string{"", "/abs", "a/../b", "..", "a//b", `a\b`, "./a"}

	for _, name := range valid {
		if err := ValidateFileName(name); err != nil {
			t.Errorf("ValidateFileName(%q) = %v", name, err)
		}
	}
	for _, name := range invalid {
		if err := ValidateFileName(name); err == nil {
			t.Errorf("ValidateFileName(%q) = nil, want error", name)
		}
	}
}

func TestSink_BindsStrategy(t *testing.T) {
	client := NewStubClient()
	coll := metrics.NewCollector("strict", "maven", "fs", "run-6", "strategy3")
	sink := NewInstrumentedSink(NewSink(client, "strategy3"), coll)
	pol := policy.NewStrictPolicy(sink)

	if err := pol.IngestStep(t.Context(), succeeded(0, 10)); err != nil {
		t.Fatalf("IngestStep: %v", err)
	}
	if len(client.Steps["strategy3"]) != 1 {
		t.Errorf("steps for strategy3 = %d, want 1", len(client.Steps["strategy3"]))
	}

	client.Err = errors.New("store down")
	if err := pol.IngestStep(t.Context(), succeeded(1, 20)); err == nil {
		t.Fatal("expected error")
	}

	snap := coll.Snapshot()
	if snap.LodeWriteSuccess != 1 || snap.LodeWriteFailure != 1 {
		t.Errorf("lode writes = %d/%d, want 1/1", snap.LodeWriteSuccess, snap.LodeWriteFailure)
	}

	if err := pol.Close(); err != nil {
		t.Fatal(err)
	}
	if client.Closed {
		t.Error("sink close must not close the shared client")
	}
}
