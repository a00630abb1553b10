package external

import (
	"reflect"
	"testing"
)

func TestExtractTagged(t *testing.T) {
	tests := []struct {
		name string
		text string
		tag  string
		want string
	}{
		{
			name: "simple",
			text: "preamble <summary_output>A short summary.</summary_output> trailer",
			tag:  "summary_output",
			want: "A short summary.",
		},
		{
			name: "multiline content",
			text: "<summary_output>\nLine one.\nLine two.\n</summary_output>",
			tag:  "summary_output",
			want: "Line one.\nLine two.",
		},
		{
			name: "missing tag",
			text: "the model ignored the template entirely",
			tag:  "summary_output",
			want: "",
		},
		{
			name: "first occurrence wins",
			text: "<q>one</q><q>two</q>",
			tag:  "q",
			want: "one",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTagged(tt.text, tt.tag); got != tt.want {
				t.Errorf("ExtractTagged() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanQuestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "numbered list",
			raw:  "1. What is a derivative?\n2. How are limits defined?",
			want: []string{"What is a derivative?", "How are limits defined?"},
		},
		{
			name: "bullets and html",
			raw:  "<ul><li>- What is entropy?</li>\n<li>* Why does it increase?</li></ul>",
			want: []string{"What is entropy?", "Why does it increase?"},
		},
		{
			name: "forces question mark",
			raw:  "Explain the chain rule.\nName two integration techniques!",
			want: []string{"Explain the chain rule?", "Name two integration techniques?"},
		},
		{
			name: "dedupes case insensitively",
			raw:  "What is a matrix?\nwhat is a matrix?\nWhat is a vector?",
			want: []string{"What is a matrix?", "What is a vector?"},
		},
		{
			name: "caps at five",
			raw:  "one?\ntwo?\nthree?\nfour?\nfive?\nsix?",
			want: []string{"one?", "two?", "three?", "four?", "five?"},
		},
		{
			name: "tagged output preferred",
			raw:  "Sure! Here are questions:\n<questions_output>\n1) What is recursion?\n</questions_output>",
			want: []string{"What is recursion?"},
		},
		{
			name: "blank input",
			raw:  "\n \n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanQuestions(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanQuestions() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
