// Package tokens approximates token counts from text.
//
// The same heuristic is applied to every provider so counts stay comparable
// across providers, even though it matches no real tokenizer.
package tokens

import "unicode/utf8"

// CharsPerToken is the fixed character-to-token ratio.
const CharsPerToken = 4

// Estimate returns ceil(runes/CharsPerToken). Estimate("") is 0.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

// FinalTotal reconciles a running chunk count with the text estimate.
// The chunk count wins unless it is zero while text is non-empty, which
// means chunks were not counted rather than that nothing was generated.
func FinalTotal(chunkCount int, text string) int {
	if chunkCount == 0 && text != "" {
		return Estimate(text)
	}
	if chunkCount < 0 {
		return 0
	}
	return chunkCount
}

// Counts holds the approximate input and output token counts of a request.
type Counts struct {
	Input  int `json:"inputTokens"`
	Output int `json:"outputTokens"`
}

// Total is the combined running total.
func (c Counts) Total() int {
	return c.Input + c.Output
}

// Count estimates both sides of a completion.
func Count(prompt, generated string) Counts {
	return Counts{Input: Estimate(prompt), Output: Estimate(generated)}
}

// Combined is the running total of input and output tokens.
func Combined(input, output int) int {
	return Counts{Input: input, Output: output}.Total()
}
