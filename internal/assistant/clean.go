package assistant

import (
	"regexp"
	"strings"
)

var (
	// thinkPattern matches the chain-of-thought spans some local models emit
	// before their answer.
	thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

	// emojiPattern covers the common emoji blocks: emoticons, symbols and
	// pictographs, transport, flags, misc symbols, dingbats.
	emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}` +
		`\x{1F300}-\x{1F5FF}` +
		`\x{1F680}-\x{1F6FF}` +
		`\x{1F1E0}-\x{1F1FF}` +
		`\x{2600}-\x{26FF}` +
		`\x{2700}-\x{27BF}]+`)

	quoteAsterisk = strings.NewReplacer(`"`, "", "*", "")
)

// Clean normalises a model answer for speech output. Quote and asterisk
// characters are removed (models emit them as emphasis, which a voice cannot
// render), <think> reasoning spans are cut, and emoji are stripped.
func Clean(text string) string {
	text = quoteAsterisk.Replace(text)
	text = thinkPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	return emojiPattern.ReplaceAllString(text, "")
}
