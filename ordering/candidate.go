package ordering

import (
	"bufio"
	"strings"
)

// leadingDecoration is stripped from the front of each candidate line:
// bullets, list numbering and markdown emphasis.
const leadingDecoration = "•*-0123456789.) \t`"

// ParseCandidate tokenizes free-form producer output into raw tokens.
//
// Per line: blank lines are skipped, leading bullets and numbering are
// removed, and anything from the first ':' on is dropped. The result is
// not validated; pass it to Validate.
func ParseCandidate(text string) []string {
	var tokens []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, leadingDecoration)
		if before, _, ok := strings.Cut(line, ":"); ok {
			line = before
		}
		line = strings.TrimRight(strings.TrimSpace(line), "`*")
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	return tokens
}
