package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple", "Hello World", []string{"hello", "world"}},
		{"empty", "", nil},
		{"punctuation dropped", "stocks, bonds; (and) futures!", []string{"stocks", "bonds", "and", "futures"}},
		{"accents stripped", "café résumé naïve", []string{"cafe", "resume", "naive"}},
		{"cjk split", "你好", []string{"你", "好"}},
		{"control chars removed", "a\x00b\tc", []string{"ab", "c"}},
		{"numbers kept", "rates rose 0.25 points", []string{"rates", "rose", "0", "25", "points"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Words(tt.text))
		})
	}
}

func TestBasicTokensKeepPunctuation(t *testing.T) {
	assert.Equal(t, []string{"a", "]", "b", "[", "c"}, basicTokens("a]b[c"))
}
