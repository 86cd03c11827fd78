package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// TestModerator_Censor
// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"scam", "fixed", "bookie"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "This match is fixed lol",
			expected: "This match is ***** lol",
			words:    []string{"fixed"},
		},
		{
			name:     "Multiple occurrences",
			input:    "scam scam scam",
			expected: "**** **** ****",
			words:    []string{"scam", "scam", "scam"},
		},
		{
			name:     "Leet speak and internal punctuation",
			input:    "my b.0.0.k.1.€ says 2.1",
			expected: "my *********** says 2.1",
			words:    []string{"bookie"},
		},
		{
			name:     "Uppercase and dashes",
			input:    "S-C-A-M alert",
			expected: "******* alert",
			words:    []string{"scam"},
		},
		{
			name:     "Accents are preserved",
			input:    "Un été de scam",
			expected: "Un été de ****",
			words:    []string{"scam"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "total scam!",
			expected: "total ****!",
			words:    []string{"scam"},
		},
		{
			name:     "Nothing to censor",
			input:    "Navi wins 2-0",
			expected: "Navi wins 2-0",
			words:    nil,
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content, "test=%s,", tt.name)
			req.Equal(tt.words, words, "expected=%s,words=%s", tt.expected, words)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given real noise and not leet speak in the dictionary
	dictionary := []string{"...", ",,,", "", "scam"}

	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	// Then the sentence is censored
	content, words := mod.Censor("The scam is obvious")
	req.Equal("The **** is obvious", content)
	req.Equal([]string{"scam"}, words)

	// Then real noise is uncensored
	content, words = mod.Censor("Hello ...")
	req.Equal("Hello ...", content)
	req.Nil(words)
}

func TestModerator_Empty_Dictionary_Lets_Everything_Through(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator(nil, replacementChar, slog.Default())
	req.NoError(err)

	content, words := mod.Censor("anything goes")
	req.Equal("anything goes", content)
	req.Nil(words)

	var missing *Moderator
	content, _ = missing.Censor("nil moderator")
	req.Equal("nil moderator", content)
}
