package dictation

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrUnstable is returned when the rules keep rewriting the text past the
// iteration limit, e.g. "a => b" together with "b => a".
var ErrUnstable = errors.New("dictation rules did not settle")

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser parses one line into a compiled rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (compiledRule, error)
}

// Options configures an Engine.
type Options struct {
	// RulesPath is an optional user rules file. A missing file is not an error.
	RulesPath string
	LoopLimit int
	// SpokenCommands enables the built-in punctuation and line break commands.
	SpokenCommands bool
}

// Engine rewrites finished transcripts with spoken commands and user rules.
type Engine struct {
	rules     []compiledRule
	loopLimit int
}

func New(opts Options) (*Engine, error) {
	return NewWithParsers(opts, defaultRuleParsers())
}

// NewWithParsers allows parser extension without engine changes.
func NewWithParsers(opts Options, parsers []RuleParser) (*Engine, error) {
	if opts.LoopLimit <= 0 {
		opts.LoopLimit = 30
	}
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}

	var rules []compiledRule
	if opts.SpokenCommands {
		rules = append(rules, spokenCommandRules()...)
	}

	user, err := loadRulesFile(opts.RulesPath, parsers)
	if err != nil {
		return nil, err
	}
	rules = append(rules, user...)

	return &Engine{rules: rules, loopLimit: opts.LoopLimit}, nil
}

func loadRulesFile(path string, parsers []RuleParser) ([]compiledRule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	rules, err := parseRules(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return rules, nil
}

// Apply rewrites text until no rule changes it.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return strings.TrimSpace(result), nil
		}
	}

	return "", fmt.Errorf("%w after %d passes", ErrUnstable, e.loopLimit)
}

func parseRules(contents string, parsers []RuleParser) ([]compiledRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]compiledRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			rule, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rules = append(rules, rule)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
	}

	return rules, nil
}

func defaultRuleParsers() []RuleParser {
	return []RuleParser{regexRuleParser{}, phraseRuleParser{}}
}

type phraseRuleParser struct{}

func (phraseRuleParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (phraseRuleParser) Parse(line string) (compiledRule, error) {
	return parsePhraseRule(line)
}

type regexRuleParser struct{}

func (regexRuleParser) CanParse(line string) bool {
	return looksLikeRegexRule(line)
}

func (regexRuleParser) Parse(line string) (compiledRule, error) {
	return parseRegexRule(line)
}

// phraseRule replaces a spoken phrase case-insensitively. Phrases that start
// or end with a word character only match on word boundaries, so "and" does
// not rewrite "candle".
type phraseRule struct {
	replacement string
	re          *regexp.Regexp
}

func parsePhraseRule(line string) (compiledRule, error) {
	parts := strings.SplitN(line, "=>", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid phrase rule")
	}
	from := strings.TrimSpace(parts[0])
	to := strings.TrimSpace(parts[1])
	if from == "" {
		return nil, errors.New("phrase rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordByte(from[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(from[len(from)-1]) {
		pattern += `\b`
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid phrase source: %w", err)
	}

	return phraseRule{replacement: to, re: re}, nil
}

func (r phraseRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (compiledRule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := line[1]
	if isAlphaNumericOrSpace(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	var global, multiLine, dotAll bool
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm':
			multiLine = true
		case 's':
			dotAll = true
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	// Spoken text has no reliable casing, so matching is always case-insensitive.
	prefixFlags := "i"
	if multiLine {
		prefixFlags += "m"
	}
	if dotAll {
		prefixFlags += "s"
	}

	re, err := regexp.Compile("(?" + prefixFlags + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}

	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}

	segment := input[loc[0]:loc[1]]
	replaced := r.re.ReplaceAllString(segment, r.replacement)
	output := input[:loc[0]] + replaced + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			builder.WriteByte(char)
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}

func isAlphaNumericOrSpace(char byte) bool {
	return isWordByte(char) && char != '_' || char == ' ' || char == '\t'
}

func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isAlphaNumericOrSpace(line[1])
}
