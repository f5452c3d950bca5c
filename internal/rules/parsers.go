package rules

import (
	"fmt"
	"regexp"
	"strings"
)

func defaultRuleParsers() []RuleParser {
	return []RuleParser{regexRuleParser{}, annotationRuleParser{}}
}

// annotationRule drops segments containing a literal marker, case-insensitive.
type annotationRule struct {
	needle string
}

func (r annotationRule) Drop(text string) bool {
	return strings.Contains(strings.ToLower(text), r.needle)
}

// annotationRuleParser accepts any plain line as a literal marker.
type annotationRuleParser struct{}

func (annotationRuleParser) CanParse(line string) bool { return line != "" }

func (annotationRuleParser) Parse(line string) (compiledRule, error) {
	return annotationRule{needle: strings.ToLower(line)}, nil
}

// regexRule drops segments matching a pattern.
type regexRule struct {
	re *regexp.Regexp
}

func (r regexRule) Drop(text string) bool { return r.re.MatchString(text) }

// regexRuleParser accepts /pattern/ lines.
type regexRuleParser struct{}

func (regexRuleParser) CanParse(line string) bool {
	return len(line) > 2 && strings.HasPrefix(line, "/") && strings.HasSuffix(line, "/")
}

func (regexRuleParser) Parse(line string) (compiledRule, error) {
	pattern := line[1 : len(line)-1]
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	return regexRule{re: re}, nil
}
