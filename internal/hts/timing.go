package hts

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/htsbridge/internal/engine"
)

// htkUnit is the HTK label time unit.
const htkUnit = 100 * time.Nanosecond

// TimedSegment is one label with its boundaries as produced by duration modelling.
type TimedSegment struct {
	Start time.Duration
	End   time.Duration
	Label string
}

// Align converts the engine's state durations into timed labels. Frame
// indices are scaled by fperiod*1e7/samplingRate and truncated to whole HTK
// units, so boundaries match the engine's own label output.
func Align(a engine.Alignment, fperiod, samplingRate int) ([]TimedSegment, error) {
	if a.NumStates <= 0 {
		return nil, fmt.Errorf("alignment has %d states per label", a.NumStates)
	}
	if want := len(a.Labels) * a.NumStates; len(a.StateDurations) != want {
		return nil, fmt.Errorf("alignment has %d state durations, want %d", len(a.StateDurations), want)
	}
	rate := float64(fperiod) * 1e7 / float64(samplingRate)

	segs := make([]TimedSegment, len(a.Labels))
	frame, state := 0, 0
	for i, label := range a.Labels {
		duration := 0
		for j := 0; j < a.NumStates; j++ {
			duration += a.StateDurations[state]
			state++
		}
		segs[i] = TimedSegment{
			Start: time.Duration(int64(float64(frame)*rate)) * htkUnit,
			End:   time.Duration(int64(float64(frame+duration)*rate)) * htkUnit,
			Label: label,
		}
		frame += duration
	}
	return segs, nil
}

// WriteLabels writes segments in HTK label format: "start end label" per line
// with times in 100ns units.
func WriteLabels(w io.Writer, segs []TimedSegment) error {
	bw := bufio.NewWriter(w)
	for _, s := range segs {
		if _, err := fmt.Fprintf(bw, "%d %d %s\n", s.Start/htkUnit, s.End/htkUnit, s.Label); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseLabels reads HTK label lines. A line may omit the start time, in which
// case the previous end is used. Blank lines are skipped.
func ParseLabels(r io.Reader) ([]TimedSegment, error) {
	var (
		segs []TimedSegment
		prev time.Duration
		n    int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		n++
		fields := strings.Fields(sc.Text())
		var start, end time.Duration
		var label string
		var err error
		switch len(fields) {
		case 0:
			continue
		case 2:
			start = prev
			end, err = parseHTKTime(fields[0])
			label = fields[1]
		case 3:
			if start, err = parseHTKTime(fields[0]); err == nil {
				end, err = parseHTKTime(fields[1])
			}
			label = fields[2]
		default:
			return nil, fmt.Errorf("label line %d: expected \"start end label\", got %q", n, sc.Text())
		}
		if err != nil {
			return nil, fmt.Errorf("label line %d: %w", n, err)
		}
		segs = append(segs, TimedSegment{Start: start, End: end, Label: label})
		prev = end
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	return segs, nil
}

func parseHTKTime(s string) (time.Duration, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return time.Duration(v) * htkUnit, nil
}

// PhoneName extracts the context-independent phone from a context-dependent
// label: the text between the last '-' and the first '+' of the label.
func PhoneName(label string) string {
	if i := strings.IndexByte(label, '+'); i >= 0 {
		label = label[:i]
	}
	if i := strings.LastIndexByte(label, '-'); i >= 0 {
		label = label[i+1:]
	}
	return label
}
