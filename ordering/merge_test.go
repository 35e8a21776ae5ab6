package ordering

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pithecene-io/ordo/types"
)

func TestMerge_DropsRejectedAndAggregatesRest(t *testing.T) {
	candidates := []Candidate{
		{Name: "strategy1", Tokens: []string{"A#a", "B#b", "C#c"}},
		{Name: "strategy2", Tokens: []string{"A#a", "A#a", "C#c"}},
		{Name: "strategy3", Tokens: []string{"C#c", "B#b", "A#a"}},
	}

	res, err := Merge(candidates, abcSet())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if len(res.Accepted) != 2 {
		t.Fatalf("accepted = %d, want 2", len(res.Accepted))
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Name != "strategy2" {
		t.Fatalf("rejected = %+v, want strategy2", res.Rejected)
	}
	if len(res.Rejected[0].Errors) < 2 {
		t.Errorf("expected every reason for strategy2, got %d", len(res.Rejected[0].Errors))
	}

	// A: 0+2, B: 1+1, C: 2+0 -> all tied at 1; first occurrence decides.
	want := types.Ordering{"A#a", "B#b", "C#c"}
	if diff := cmp.Diff(want, res.Consensus); diff != "" {
		t.Errorf("consensus mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_AllRejected(t *testing.T) {
	candidates := []Candidate{
		{Name: "strategy1", Tokens: []string{"A#a"}},
		{Name: "strategy2", Tokens: nil},
	}

	res, err := Merge(candidates, abcSet())
	if !errors.Is(err, ErrEmptyConsensus) {
		t.Fatalf("expected ErrEmptyConsensus, got %v", err)
	}
	if len(res.Rejected) != 2 {
		t.Errorf("rejections must be reported on failure, got %d", len(res.Rejected))
	}
	if res.Consensus != nil {
		t.Errorf("consensus = %v, want nil", res.Consensus)
	}
}

func TestParseCandidate_StripsDecoration(t *testing.T) {
	text := strings.Join([]string{
		"1. AuthServiceTest#testRegister_Success",
		"",
		"  • JwtServiceTest#testGenerateAccessToken: covers token creation",
		"* UserControllerTest#testGetUser",
		"- 12) VaultTest#testEncrypt",
		"**PasswordTest#testHash**",
		"   ",
	}, "\n")

	got := ParseCandidate(text)
	want := []string{
		"AuthServiceTest#testRegister_Success",
		"JwtServiceTest#testGenerateAccessToken",
		"UserControllerTest#testGetUser",
		"VaultTest#testEncrypt",
		"PasswordTest#testHash",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCandidate_KeepsTrailingDigits(t *testing.T) {
	got := ParseCandidate("FooTest#test1\nFooTest#test2")
	want := []string{"FooTest#test1", "FooTest#test2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInventory(t *testing.T) {
	list := strings.Join([]string{
		"AuthServiceTest#testRegister - registers a user",
		"JwtServiceTest#testGenerate – issues a token",
		"Heading without an id",
		"VaultTest#testNoDescription",
		"UserTest#testGet - fetches",
	}, "\n")
	mandatory := "UserTest#testGet\n\n"

	inv, err := LoadInventory(strings.NewReader(list), strings.NewReader(mandatory))
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}

	want := []types.TestID{"AuthServiceTest#testRegister", "JwtServiceTest#testGenerate", "UserTest#testGet"}
	if diff := cmp.Diff(want, inv.Set.IDs()); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if len(inv.Lines) != 3 {
		t.Errorf("lines = %d, want 3", len(inv.Lines))
	}
	if len(inv.Mandatory) != 1 || inv.Mandatory[0] != "UserTest#testGet" {
		t.Errorf("mandatory = %v", inv.Mandatory)
	}
}

func TestLoadInventory_UnknownMandatory(t *testing.T) {
	_, err := LoadInventory(strings.NewReader("A#a - x"), strings.NewReader("B#b"))
	if err == nil || !strings.Contains(err.Error(), "B#b") {
		t.Fatalf("expected error naming B#b, got %v", err)
	}
}

func TestWriteReadFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	o := types.Ordering{"B#b", "A#a"}

	path, err := WriteFile(dir, CombinedName, o)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if filepath.Base(path) != "sorted_test_combined.txt" {
		t.Errorf("file name = %s", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "B#b\nA#a" {
		t.Errorf("file content = %q", raw)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff(o, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if StrategyFromFileName(path) != CombinedName {
		t.Errorf("StrategyFromFileName = %q", StrategyFromFileName(path))
	}
	if StrategyFromFileName("/x/tests_input.txt") != "tests_input" {
		t.Errorf("fallback name = %q", StrategyFromFileName("/x/tests_input.txt"))
	}
}
