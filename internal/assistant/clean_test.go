package assistant_test

import (
	"testing"

	"github.com/MrWong99/auricle/internal/assistant"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text unchanged",
			in:   "It is nine thirty.",
			want: "It is nine thirty.",
		},
		{
			name: "quotes and asterisks removed",
			in:   `The "answer" is *four*.`,
			want: "The answer is four.",
		},
		{
			name: "think span removed",
			in:   "<think>the user asks for the time</think>It is noon.",
			want: "It is noon.",
		},
		{
			name: "multiline think span removed",
			in:   "<think>line one\nline two</think>Done.",
			want: "Done.",
		},
		{
			name: "emoji removed",
			in:   "Great job!😀🚀",
			want: "Great job!",
		},
		{
			name: "everything combined",
			in:   "<think>hmm</think>*Sure!*🎉",
			want: "Sure!",
		},
		{
			name: "all emoji yields empty",
			in:   "🎉🎉",
			want: "",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := assistant.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
