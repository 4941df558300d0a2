package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exact multiple", "abcd", 1},
		{"rounds up", "abcde", 2},
		{"whitespace counts", "    ", 1},
		{"runes not bytes", "世界世界", 1},
		{"long", strings.Repeat("x", 401), 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.text)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}

func TestFinalTotal(t *testing.T) {
	assert.Equal(t, 7, FinalTotal(7, "some generated text that is long"))
	assert.Equal(t, 3, FinalTotal(0, "hello world!"), "zero chunk count with text falls back to estimate")
	assert.Equal(t, 0, FinalTotal(0, ""))
	assert.Equal(t, 5, FinalTotal(5, ""))
	assert.Equal(t, 0, FinalTotal(-1, ""))
}

func TestCount(t *testing.T) {
	c := Count("12345678", "abc")
	assert.Equal(t, Counts{Input: 2, Output: 1}, c)
	assert.Equal(t, 3, c.Total())
}
