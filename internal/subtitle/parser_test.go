package subtitle

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Cue
	}{
		{
			name:  "single block",
			input: "1\n00:00:01,000 --> 00:00:02,500\nHello\n",
			want:  []Cue{{Index: 1, StartMS: 1000, EndMS: 2500, Text: "Hello"}},
		},
		{
			name:  "multi line text and CRLF",
			input: "1\r\n00:00:01,000 --> 00:00:02,000\r\nLine one\r\nLine two\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000\r\nNext\r\n",
			want: []Cue{
				{Index: 1, StartMS: 1000, EndMS: 2000, Text: "Line one\nLine two"},
				{Index: 2, StartMS: 3000, EndMS: 4000, Text: "Next"},
			},
		},
		{
			name:  "byte order mark",
			input: "\ufeff1\n00:00:01,000 --> 00:00:02,000\nHi\n",
			want:  []Cue{{Index: 1, StartMS: 1000, EndMS: 2000, Text: "Hi"}},
		},
		{
			name:  "missing index line",
			input: "00:00:01,000 --> 00:00:02,000\nNo index\n",
			want:  []Cue{{StartMS: 1000, EndMS: 2000, Text: "No index"}},
		},
		{
			name:  "dot separator and position suffix",
			input: "1\n00:00:01.5 --> 00:00:02.250 X1:10 X2:20\nDot\n",
			want:  []Cue{{Index: 1, StartMS: 1500, EndMS: 2250, Text: "Dot"}},
		},
		{
			name:  "end before start is dropped",
			input: "1\n00:00:05,000 --> 00:00:01,000\nBackwards\n\n2\n00:00:06,000 --> 00:00:07,000\nForwards\n",
			want:  []Cue{{Index: 2, StartMS: 6000, EndMS: 7000, Text: "Forwards"}},
		},
		{
			name:  "malformed timing is dropped",
			input: "1\nnot a timing line\nText\n\n2\n00:00:06,000 --> 00:00:07,000\nKept\n",
			want:  []Cue{{Index: 2, StartMS: 6000, EndMS: 7000, Text: "Kept"}},
		},
		{
			name:  "block without text",
			input: "1\n00:00:01,000 --> 00:00:02,000\n\n",
			want:  nil,
		},
		{
			name:  "not srt",
			input: "just some prose\nwith lines\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() returned %d cues, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("cue %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
