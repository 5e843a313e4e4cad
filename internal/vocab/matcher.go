package vocab

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/storylinehq/storyline/internal/model"
)

// aliasStoplist drops aliases that collide with common short English
// words, so country/org codes like "IN" (India), "US" (after "U.S."
// loses its periods), or "WHO" never fire on ordinary prose.
var aliasStoplist = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "can": {}, "do": {}, "for": {},
	"i": {}, "if": {}, "in": {}, "is": {}, "it": {}, "no": {},
	"not": {}, "of": {}, "on": {}, "or": {}, "so": {}, "the": {},
	"to": {}, "us": {}, "was": {}, "who": {},
}

// pattern is one compiled alias. Aliases in scripts without word
// boundaries (CJK, Thai) match by substring; everything else matches
// on word boundaries.
type pattern struct {
	canonicalID string
	group       string
	re          *regexp.Regexp // nil for substring patterns
	substr      string
}

// Enricher completes an entity list with inferred countries.
type Enricher interface {
	Enrich(entities []string) []string
}

// Result is the matcher verdict for one headline.
type Result struct {
	IsStrategic bool
	Entities    []string // Display names, first-occurrence order
	EventType   string   // Name of the first GO group that matched
}

// Matcher classifies text as strategic/non-strategic and extracts
// entity hits. Patterns are compiled once at construction.
type Matcher struct {
	goPatterns   []pattern
	stopPatterns []pattern
	displayByID  map[string]string
	enricher     Enricher
	log          *zap.Logger
}

// NewMatcher compiles the GO groups (in the given precedence order)
// and the STOP group. enricher may be nil to skip country completion.
func NewMatcher(goGroups []model.VocabularyGroup, stop model.VocabularyGroup, enricher Enricher, log *zap.Logger) (*Matcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Matcher{
		displayByID: make(map[string]string),
		enricher:    enricher,
		log:         log,
	}

	for _, group := range goGroups {
		compiled, err := m.compileGroup(group)
		if err != nil {
			return nil, fmt.Errorf("compile go group %q: %w", group.Name, err)
		}
		m.goPatterns = append(m.goPatterns, compiled...)
	}

	compiled, err := m.compileGroup(stop)
	if err != nil {
		return nil, fmt.Errorf("compile stop group %q: %w", stop.Name, err)
	}
	m.stopPatterns = compiled

	m.log.Info("vocabulary compiled",
		zap.Int("go_patterns", len(m.goPatterns)),
		zap.Int("stop_patterns", len(m.stopPatterns)),
		zap.Int("entities", len(m.displayByID)))

	return m, nil
}

// compileGroup compiles every alias of every entry in the group.
func (m *Matcher) compileGroup(group model.VocabularyGroup) ([]pattern, error) {
	var patterns []pattern

	for _, entry := range group.Entries {
		display := entry.DisplayName

		// Language keys sorted so "first alias seen" is deterministic.
		langs := make([]string, 0, len(entry.Aliases))
		for lang := range entry.Aliases {
			langs = append(langs, lang)
		}
		sort.Strings(langs)

		for _, lang := range langs {
			for _, alias := range entry.Aliases[lang] {
				normalized := Normalize(alias)
				if normalized == "" {
					continue
				}
				if display == "" {
					display = alias // First alias seen becomes the display name
				}
				if _, blocked := aliasStoplist[normalized]; blocked {
					m.log.Debug("alias dropped by stoplist",
						zap.String("alias", alias),
						zap.String("entity", entry.CanonicalID))
					continue
				}

				p := pattern{canonicalID: entry.CanonicalID, group: group.Name}
				if containsUnspacedScript(normalized) {
					p.substr = normalized
				} else {
					re, err := regexp.Compile(`\b` + regexp.QuoteMeta(normalized) + `\b`)
					if err != nil {
						return nil, fmt.Errorf("alias %q: %w", alias, err)
					}
					p.re = re
				}
				patterns = append(patterns, p)
			}
		}

		if display == "" {
			display = entry.CanonicalID
		}
		if _, ok := m.displayByID[entry.CanonicalID]; !ok {
			m.displayByID[entry.CanonicalID] = display
		}
	}

	return patterns, nil
}

// Classify runs the strategic gate over one headline.
// STOP always wins: if any stop pattern matches, the result is
// non-strategic with no entities, independent of GO matches.
func (m *Matcher) Classify(text string) Result {
	normalized := Normalize(text)
	if normalized == "" {
		return Result{}
	}

	for _, p := range m.stopPatterns {
		if p.matches(normalized) {
			return Result{}
		}
	}

	var result Result
	seen := make(map[string]struct{})

	for _, p := range m.goPatterns {
		if !p.matches(normalized) {
			continue
		}
		if !result.IsStrategic {
			result.IsStrategic = true
			result.EventType = p.group
		}
		if _, dup := seen[p.canonicalID]; dup {
			continue
		}
		seen[p.canonicalID] = struct{}{}
		result.Entities = append(result.Entities, m.displayByID[p.canonicalID])
	}

	if result.IsStrategic && m.enricher != nil {
		result.Entities = m.enricher.Enrich(result.Entities)
	}

	return result
}

// DisplayName resolves a canonical id to its display name.
func (m *Matcher) DisplayName(canonicalID string) (string, bool) {
	name, ok := m.displayByID[canonicalID]
	return name, ok
}

func (p *pattern) matches(normalized string) bool {
	if p.re != nil {
		return p.re.MatchString(normalized)
	}
	return strings.Contains(normalized, p.substr)
}

// containsUnspacedScript reports whether the alias contains CJK or
// Thai code points, which have no word boundaries to anchor on.
func containsUnspacedScript(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r) ||
			unicode.Is(unicode.Thai, r) {
			return true
		}
	}
	return false
}
