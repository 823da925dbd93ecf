package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		expected      string
	}{
		{name: "under limit unchanged", input: "short", maxLen: 10, expected: "short"},
		{name: "hard cut", input: "abcdefghij", maxLen: 8, expected: "abcde..."},
		{name: "word boundary", input: "the quick brown fox", maxLen: 14, preserveWords: true, expected: "the quick..."},
		{name: "zero length", input: "anything", maxLen: 0, expected: ""},
		{name: "tiny limit", input: "anything", maxLen: 2, expected: ".."},
		{name: "utf8 safe", input: "日本語のテキストです", maxLen: 6, expected: "日本語..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateString(tt.input, tt.maxLen, tt.preserveWords))
		})
	}
}
