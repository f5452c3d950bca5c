// Package rules filters transcription output before it reaches the segment
// store: non-speech annotations emitted by the model and mic segments that
// are echoes of system audio.
package rules

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"notedeck/internal/domain"
)

type compiledRule interface {
	Drop(text string) bool
}

// RuleParser parses one filter-file line into a compiled rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (compiledRule, error)
}

// Engine decides which transcript segments are worth keeping.
type Engine struct {
	rules []compiledRule
}

// Annotations the transcription model emits for non-speech audio.
var builtinAnnotations = []string{
	"[blank_audio]",
	"[inaudible]",
	"[ inaudible ]",
	"[silence]",
	"[music]",
	"[applause]",
	"[laughter]",
}

// NewEngine builds the engine with the built-in annotation rules.
func NewEngine() *Engine {
	rules := make([]compiledRule, 0, len(builtinAnnotations))
	for _, a := range builtinAnnotations {
		rules = append(rules, annotationRule{needle: a})
	}
	return &Engine{rules: rules}
}

// NewEngineFromFile adds user-defined rules from path on top of the
// built-ins. A missing path yields the built-ins alone.
func NewEngineFromFile(path string) (*Engine, error) {
	return newEngineFromFile(path, defaultRuleParsers())
}

func newEngineFromFile(path string, parsers []RuleParser) (*Engine, error) {
	engine := NewEngine()
	if path == "" {
		return engine, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine, nil
		}
		return nil, fmt.Errorf("open filter rules: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed := false
		for _, p := range parsers {
			if !p.CanParse(line) {
				continue
			}
			rule, err := p.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("filter rules line %d: %w", lineNo, err)
			}
			engine.rules = append(engine.rules, rule)
			parsed = true
			break
		}
		if !parsed {
			return nil, fmt.Errorf("filter rules line %d: unrecognized rule %q", lineNo, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read filter rules: %w", err)
	}
	return engine, nil
}

// KeepSegment reports whether text carries actual speech.
func (e *Engine) KeepSegment(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, rule := range e.rules {
		if rule.Drop(text) {
			return false
		}
	}
	return true
}

// IsEcho reports whether a mic segment is likely an echo of system audio:
// it overlaps a system segment by at least a second and shares its opening
// words. First-words comparison keeps the check cheap.
func (e *Engine) IsEcho(micText string, micStart, micEnd float64, system []domain.TimedText) bool {
	if len(system) == 0 {
		return false
	}
	micWords := firstWords(micText, 5)
	if len(micWords) == 0 {
		return false
	}

	for _, sys := range system {
		overlapStart := micStart
		if sys.Start > overlapStart {
			overlapStart = sys.Start
		}
		overlapEnd := micEnd
		if sys.End < overlapEnd {
			overlapEnd = sys.End
		}
		if overlapEnd-overlapStart < 1.0 {
			continue
		}

		sysWords := firstWords(sys.Text, 5)
		if len(sysWords) < 3 || len(micWords) < 3 {
			continue
		}
		matches := 0
		for i := 0; i < len(micWords) && i < len(sysWords); i++ {
			if micWords[i] == sysWords[i] {
				matches++
			}
		}
		if matches >= 3 {
			return true
		}
	}
	return false
}

func firstWords(text string, n int) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) > n {
		words = words[:n]
	}
	return words
}
