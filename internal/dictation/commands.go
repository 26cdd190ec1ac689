package dictation

import "regexp"

// spokenCommand rewrites a dictated command word into its symbol, taking the
// whitespace before it and, for line breaks, after it.
type spokenCommand struct {
	re          *regexp.Regexp
	replacement string
}

func (c spokenCommand) Apply(input string) (string, bool) {
	output := c.re.ReplaceAllLiteralString(input, c.replacement)
	return output, output != input
}

func spokenCommandRules() []compiledRule {
	return []compiledRule{
		spokenCommand{re: regexp.MustCompile(`(?i)[ \t]*\bnew paragraph\b[ \t]*`), replacement: "\n\n"},
		spokenCommand{re: regexp.MustCompile(`(?i)[ \t]*\bnew line\b[ \t]*`), replacement: "\n"},
		spokenCommand{re: regexp.MustCompile(`(?i)[ \t]*\bcomma\b`), replacement: ","},
		spokenCommand{re: regexp.MustCompile(`(?i)[ \t]*\b(?:period|full stop)\b`), replacement: "."},
		spokenCommand{re: regexp.MustCompile(`(?i)[ \t]*\bquestion mark\b`), replacement: "?"},
		spokenCommand{re: regexp.MustCompile(`(?i)[ \t]*\bexclamation (?:mark|point)\b`), replacement: "!"},
	}
}
