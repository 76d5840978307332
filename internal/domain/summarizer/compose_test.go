package summarizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	long := strings.Repeat("abcdefghij", 450)
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{name: "empty stays empty", text: "", limit: 4000, want: ""},
		{name: "short text unchanged", text: "short", limit: 4000, want: "short"},
		{name: "exactly at limit unchanged", text: long[:4000], limit: 4000, want: long[:4000]},
		{name: "long text cut without ellipsis", text: long, limit: 4000, want: long[:4000]},
		{name: "runes counted not bytes", text: "héllo wörld", limit: 4, want: "héll"},
		{name: "zero limit", text: "text", limit: 0, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Truncate(tt.text, tt.limit))
		})
	}
}

func TestTruncateBoundsLength(t *testing.T) {
	for _, n := range []int{0, 1, 3999, 4000, 4001, 12000} {
		text := strings.Repeat("ü", n)
		got := Truncate(text, DefaultMaxTranscriptChars)
		if n <= DefaultMaxTranscriptChars {
			require.Equal(t, text, got)
			continue
		}
		require.Equal(t, DefaultMaxTranscriptChars, utf8.RuneCountInString(got))
		require.True(t, strings.HasPrefix(text, got))
	}
}

func TestCompose(t *testing.T) {
	conv := Compose("You are a helpful summarizer.", "Alice and Bob discussed the Q3 budget.")
	require.Equal(t, Conversation{
		{Role: RoleSystem, Content: "You are a helpful summarizer."},
		{Role: RoleUser, Content: "Summarize this transcript:\n\nAlice and Bob discussed the Q3 budget."},
	}, conv)
}

func TestConversationValidate(t *testing.T) {
	tests := []struct {
		name    string
		conv    Conversation
		wantErr string
	}{
		{name: "composed is valid", conv: Compose("sys", "hello")},
		{name: "too many turns", conv: append(Compose("sys", "hi"), Turn{Role: RoleUser, Content: "again"}), wantErr: "must have 2 turns"},
		{name: "wrong order", conv: Conversation{{Role: RoleUser, Content: "x"}, {Role: RoleSystem, Content: "y"}}, wantErr: "system then user"},
		{name: "over budget", conv: Compose("sys", "123456"), wantErr: "exceeds budget of 5"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.conv.Validate(5)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
