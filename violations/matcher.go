package violations

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// =============================================================================
// NAME MATCHER - normalized name -> client
// =============================================================================

// CollisionPolicy decides what happens when two clients share a normalized
// name or alias.
type CollisionPolicy string

const (
	LastWins         CollisionPolicy = "last-wins"
	FirstWins        CollisionPolicy = "first-wins"
	RejectCollisions CollisionPolicy = "reject"
)

// ParseCollisionPolicy maps a config value to a policy. Empty means LastWins.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return LastWins, nil
	case LastWins, FirstWins, RejectCollisions:
		return p, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q", s)
	}
}

// NormalizeName trims surrounding whitespace and case-folds.
func NormalizeName(s string) string {
	// Casers are stateful, so one per call.
	return cases.Fold().String(strings.TrimSpace(s))
}

// AliasMap is a disposable lookup built fresh for every sweep.
type AliasMap struct {
	byName     map[string]Client
	collisions []Collision
}

// BuildAliasMap inserts the canonical name and every alias of every client,
// in roster order.
func BuildAliasMap(clients []Client, policy CollisionPolicy) (*AliasMap, error) {
	m := &AliasMap{byName: make(map[string]Client)}

	for _, c := range clients {
		names := make([]string, 0, len(c.Aliases)+1)
		names = append(names, c.Name)
		names = append(names, c.Aliases...)

		for _, raw := range names {
			key := NormalizeName(raw)
			if key == "" {
				continue
			}
			m.insert(key, c, policy)
		}
	}

	if policy == RejectCollisions && len(m.collisions) > 0 {
		return nil, &AliasCollisionError{Collisions: m.Collisions()}
	}
	return m, nil
}

func (m *AliasMap) insert(key string, c Client, policy CollisionPolicy) {
	existing, ok := m.byName[key]
	if !ok || existing.ID == c.ID {
		m.byName[key] = c
		return
	}

	switch policy {
	case FirstWins:
		m.collisions = append(m.collisions, Collision{Name: key, Kept: existing.ID, Rejected: c.ID})
	default:
		m.collisions = append(m.collisions, Collision{Name: key, Kept: c.ID, Rejected: existing.ID})
		m.byName[key] = c
	}
}

// Lookup matches a respondent name exactly after normalization.
func (m *AliasMap) Lookup(name string) (Client, bool) {
	c, ok := m.byName[NormalizeName(name)]
	return c, ok
}

// Len returns the number of distinct normalized names.
func (m *AliasMap) Len() int {
	return len(m.byName)
}

// Collisions returns every collision seen while building, in insertion order.
func (m *AliasMap) Collisions() []Collision {
	out := make([]Collision, len(m.collisions))
	copy(out, m.collisions)
	return out
}
