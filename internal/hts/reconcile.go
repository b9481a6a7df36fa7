package hts

import (
	"fmt"

	"github.com/nadzzz/htsbridge/internal/utterance"
)

// Mismatch records a segment whose name disagrees with the engine's label.
type Mismatch struct {
	Index   int
	Segment string
	Label   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("segment %d: %q does not match engine label %q", m.Index, m.Segment, m.Label)
}

// Reconcile walks the caller's segments and the engine's timed labels in
// lock-step and writes each matching label's end time onto its segment.
// Mismatches are returned and do not stop the walk. The walk ends when either
// sequence runs out; trailing entries of the longer one are left untouched.
func Reconcile(segs []*utterance.Segment, timed []TimedSegment) (matched int, mismatches []Mismatch) {
	for i := 0; i < len(segs) && i < len(timed); i++ {
		if PhoneName(timed[i].Label) == segs[i].Name {
			segs[i].End = timed[i].End
			matched++
			continue
		}
		mismatches = append(mismatches, Mismatch{Index: i, Segment: segs[i].Name, Label: timed[i].Label})
	}
	return matched, mismatches
}
