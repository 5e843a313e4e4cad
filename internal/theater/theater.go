// Package theater converts an entity multiset into a geopolitical
// theater label with a confidence score.
package theater

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Confidence levels for the degenerate cases.
const (
	confidenceNoEntities   = 0.3
	confidenceNoCountries  = 0.4
	confidenceTechNoGeo    = 0.7
	confidenceTechOverride = 0.6
	bilateralCap           = 0.95
	bilateralFloor         = 0.2 // Each of the top-2 must exceed this share
	dominanceThreshold     = 0.6
	ambiguityPenalty       = 0.8
)

// Engine infers a primary theater from extracted entities.
type Engine struct {
	countries map[string]struct{}
	tech      map[string]struct{}
	log       *zap.Logger
}

// NewEngine builds the inference engine from the static tables.
// The country set is the static list unioned with every country
// named in the bilateral table.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		countries: make(map[string]struct{}, len(countryNames)),
		tech:      make(map[string]struct{}, len(techIndicators)),
		log:       log,
	}

	for _, name := range countryNames {
		e.countries[strings.ToLower(name)] = struct{}{}
	}
	for key := range bilateralTheaters {
		for _, name := range strings.SplitN(key, "|", 2) {
			e.countries[name] = struct{}{}
		}
	}
	for _, name := range techIndicators {
		e.tech[strings.ToLower(name)] = struct{}{}
	}

	return e
}

// countryCount is one distinct country with its mention frequency,
// kept in first-appearance order for stable tie-breaking.
type countryCount struct {
	name  string // Display casing of the first mention
	count int
}

// Infer returns the primary theater and a confidence in [0, 1].
//
// Precedence: bilateral pair > single-country dominance >
// tech/global override > penalized top country.
func (e *Engine) Infer(entities []string, eventType string) (string, float64) {
	if len(entities) == 0 {
		return "Global", confidenceNoEntities
	}

	counts := e.countCountries(entities)
	if len(counts) == 0 {
		if e.hasTechIndicator(entities, eventType) {
			return "Global", confidenceTechNoGeo
		}
		return "Global", confidenceNoCountries
	}

	total := 0
	for _, c := range counts {
		total += c.count
	}

	// Stable sort: ties keep first-appearance order.
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})

	topPct := float64(counts[0].count) / float64(total)

	if len(counts) >= 2 {
		secondPct := float64(counts[1].count) / float64(total)
		if topPct > bilateralFloor && secondPct > bilateralFloor {
			if name, ok := bilateralTheaters[pairKey(counts[0].name, counts[1].name)]; ok {
				confidence := topPct + secondPct
				if confidence > bilateralCap {
					confidence = bilateralCap
				}
				e.log.Debug("bilateral theater",
					zap.String("theater", name),
					zap.Float64("confidence", confidence))
				return name, confidence
			}
		}
	}

	if topPct > dominanceThreshold {
		return counts[0].name, topPct
	}

	if e.hasTechIndicator(entities, eventType) {
		return "Global", confidenceTechOverride
	}

	return counts[0].name, topPct * ambiguityPenalty
}

// countCountries filters the entity multiset down to recognized
// countries and builds a frequency count in first-appearance order.
func (e *Engine) countCountries(entities []string) []countryCount {
	var counts []countryCount
	index := make(map[string]int)

	for _, entity := range entities {
		key := strings.ToLower(strings.TrimSpace(entity))
		if _, ok := e.countries[key]; !ok {
			continue
		}
		if i, seen := index[key]; seen {
			counts[i].count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, countryCount{name: strings.TrimSpace(entity), count: 1})
	}

	return counts
}

// hasTechIndicator reports whether any entity is a known tech company
// or the event type is technology-flavored.
func (e *Engine) hasTechIndicator(entities []string, eventType string) bool {
	if strings.Contains(strings.ToLower(eventType), "technology") {
		return true
	}
	for _, entity := range entities {
		if _, ok := e.tech[strings.ToLower(strings.TrimSpace(entity))]; ok {
			return true
		}
	}
	return false
}
