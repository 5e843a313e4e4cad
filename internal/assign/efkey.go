package assign

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/storylinehq/storyline/internal/vocab"
)

// efKeyActors is how many actors participate in the identity hash.
const efKeyActors = 3

// DeriveEFKey derives the stable identity key of an event family from
// its theater, event type, and leading actors. Two families tracking
// the same storyline derive the same key, which the active-only
// uniqueness index then catches at seeding time.
func DeriveEFKey(theater, eventType string, actors []string) string {
	top := make([]string, 0, efKeyActors)
	seen := make(map[string]struct{}, efKeyActors)

	for _, actor := range actors {
		key := strings.ToLower(strings.TrimSpace(actor))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		top = append(top, key)
		if len(top) == efKeyActors {
			break
		}
	}
	sort.Strings(top)

	material := vocab.Normalize(theater) + "|" + vocab.Normalize(eventType) + "|" + strings.Join(top, "|")
	hash := sha256.Sum256([]byte(material))
	return hex.EncodeToString(hash[:])[:16]
}
