package ordering

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/types"
)

// CombinedName is the strategy name used for the consensus ordering.
const CombinedName = "combined"

// FileName returns the ordering file name for a strategy.
func FileName(strategy string) string {
	return "sorted_test_" + strategy + ".txt"
}

// StrategyFromFileName reverses FileName, falling back to the base name
// without extension for other file names.
func StrategyFromFileName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if name, ok := strings.CutPrefix(base, "sorted_test_"); ok && name != "" {
		return name
	}
	return base
}

// Write writes one identifier per line, newline-separated with no trailing newline.
func Write(w io.Writer, o types.Ordering) error {
	_, err := io.WriteString(w, strings.Join(o.Strings(), "\n"))
	return err
}

// WriteFile writes the ordering to dir/FileName(strategy) and returns the path.
func WriteFile(dir, strategy string, o types.Ordering) (string, error) {
	path := filepath.Join(dir, FileName(strategy))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create ordering file: %w", err)
	}
	defer iox.DiscardClose(f)

	if err := Write(f, o); err != nil {
		return "", fmt.Errorf("write ordering file %s: %w", path, err)
	}
	return path, f.Close()
}

// Read reads a plain ordering file: one identifier per non-blank line.
// Unlike ParseCandidate it does no stripping beyond whitespace.
func Read(r io.Reader) (types.Ordering, error) {
	var o types.Ordering
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		o = append(o, types.TestID(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ordering: %w", err)
	}
	return o, nil
}

// ReadFile reads an ordering file from disk.
func ReadFile(path string) (types.Ordering, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ordering file: %w", err)
	}
	defer iox.DiscardClose(f)
	return Read(f)
}
