package parser

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
)

var (
	// questionStartRegex matches a line opening a numbered question ("12. ").
	questionStartRegex = regexp.MustCompile(`(?m)^\d+\.\s`)
	leadingNumberRegex = regexp.MustCompile(`^(\d+)\.`)
)

// Block is a contiguous span of text believed to belong to one numbered question.
type Block struct {
	Number  int // 0 when the block has no leading question number
	RawText string
}

// Segment splits text at every line that starts with a question number.
// The number stays at the start of the block it introduces. Blocks that are
// empty after trimming are skipped. The returned sequence can be iterated
// any number of times.
func Segment(text string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		starts := questionStartRegex.FindAllStringIndex(text, -1)
		cuts := make([]int, 0, len(starts)+2)
		cuts = append(cuts, 0)
		for _, s := range starts {
			if s[0] > 0 {
				cuts = append(cuts, s[0])
			}
		}
		cuts = append(cuts, len(text))

		for i := 0; i < len(cuts)-1; i++ {
			raw := text[cuts[i]:cuts[i+1]]
			if strings.TrimSpace(raw) == "" {
				continue
			}
			n, _ := leadingNumber(strings.TrimSpace(raw))
			if !yield(Block{Number: n, RawText: raw}) {
				return
			}
		}
	}
}

// leadingNumber parses the "N." prefix of s.
func leadingNumber(s string) (int, bool) {
	m := leadingNumberRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
