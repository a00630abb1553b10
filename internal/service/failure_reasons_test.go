package service

import (
	"testing"
)

func TestParseFailureReasons(t *testing.T) {
	tests := []struct {
		name    string
		reasons []string
		want    []DocumentFailure
	}{
		{
			name:    "empty input",
			reasons: nil,
			want:    nil,
		},
		{
			name:    "block without files is dropped",
			reasons: []string{"Encountered error: something went wrong"},
			want:    nil,
		},
		{
			name: "single block single file",
			reasons: []string{
				"Encountered error: Ignored 3 files because their format is unsupported [Files: s3://bucket/materials/c1/lecture.mp3]",
			},
			want: []DocumentFailure{
				{
					FileURI:      "s3://bucket/materials/c1/lecture.mp3",
					ErrorMessage: "Ignored file because its format is unsupported.",
				},
			},
		},
		{
			name: "single block multiple files",
			reasons: []string{
				"Encountered error: Ignored 2 files because their format is unsupported [Files: s3://b/a.mp3, s3://b/b.mp4]",
			},
			want: []DocumentFailure{
				{FileURI: "s3://b/a.mp3", ErrorMessage: "Ignored file because its format is unsupported."},
				{FileURI: "s3://b/b.mp4", ErrorMessage: "Ignored file because its format is unsupported."},
			},
		},
		{
			name: "multiple blocks in one reason",
			reasons: []string{
				"Encountered error: Ignored 1 files because their size exceeds the limit [Files: s3://b/big.pdf] " +
					"Encountered error: Document parsing failed [Files: s3://b/broken.epub]",
			},
			want: []DocumentFailure{
				{FileURI: "s3://b/big.pdf", ErrorMessage: "Ignored file because its size exceeds the limit."},
				{FileURI: "s3://b/broken.epub", ErrorMessage: "Document parsing failed."},
			},
		},
		{
			name: "multiple reasons",
			reasons: []string{
				"Encountered error: First problem [Files: s3://b/one.pdf]",
				"Encountered error: Second problem [Files: s3://b/two.pdf]",
			},
			want: []DocumentFailure{
				{FileURI: "s3://b/one.pdf", ErrorMessage: "First problem."},
				{FileURI: "s3://b/two.pdf", ErrorMessage: "Second problem."},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFailureReasons(tt.reasons)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d failures, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("failure %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}
