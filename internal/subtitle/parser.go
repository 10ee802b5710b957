package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"subtitle-indexer/internal/textutil"
)

// Cue is one parsed SRT block. Times are milliseconds from the start of
// the media.
type Cue struct {
	Index   int
	StartMS int64
	EndMS   int64
	Text    string
}

var timingLine = regexp.MustCompile(`^(\d+:\d{1,2}:\d{1,2}(?:[,.]\d+)?)\s*-->\s*(\d+:\d{1,2}:\d{1,2}(?:[,.]\d+)?)`)

type parseState int

const (
	stateIndex parseState = iota
	stateTiming
	stateText
)

// Parse reads SRT blocks from r. Blocks with a malformed timing line or an
// end before their start are dropped, as are blocks without text. The
// index line is optional: a timing line seen where an index is expected
// starts a block on its own.
func Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		cues    []Cue
		current Cue
		text    []string
		state   = stateIndex
	)

	flush := func() {
		if len(text) > 0 {
			current.Text = strings.Join(text, "\n")
			cues = append(cues, current)
		}
		current = Cue{}
		text = nil
		state = stateIndex
	}

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)

		switch state {
		case stateIndex:
			if line == "" {
				continue
			}
			if start, end, ok := parseTiming(line); ok {
				current.StartMS, current.EndMS = start, end
				state = stateText
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			current.Index = index
			state = stateTiming

		case stateTiming:
			if line == "" {
				continue
			}
			start, end, ok := parseTiming(line)
			if !ok {
				current = Cue{}
				state = stateIndex
				continue
			}
			current.StartMS, current.EndMS = start, end
			state = stateText

		case stateText:
			if line == "" {
				flush()
				continue
			}
			text = append(text, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle: %w", err)
	}
	if state == stateText {
		flush()
	}

	return cues, nil
}

func parseTiming(line string) (start, end int64, ok bool) {
	m := timingLine.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	start, err := textutil.ParseTimestamp(m[1])
	if err != nil {
		return 0, 0, false
	}
	end, err = textutil.ParseTimestamp(m[2])
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}
