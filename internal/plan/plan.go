// Package plan describes subscription tiers and the limits they grant.
package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

type ID string

const (
	Free       ID = "free"
	Premium    ID = "premium"
	Pro        ID = "pro"
	Enterprise ID = "enterprise"
)

// Unlimited is used for ceilings that do not apply.
const Unlimited = math.MaxInt

// UnlimitedInFile is how a plans file spells Unlimited.
const UnlimitedInFile = -1

var order = map[ID]int{Free: 0, Premium: 1, Pro: 2, Enterprise: 3}

func ParseID(s string) (ID, error) {
	id := ID(s)
	if _, ok := order[id]; !ok {
		return "", fmt.Errorf("invalid plan id: %q", s)
	}
	return id, nil
}

type Plan struct {
	ID                 ID     `json:"id"`
	Name               string `json:"name"`
	MaxGroups          int    `json:"maxGroups"`
	MaxPlayersPerGroup int    `json:"maxPlayersPerGroup"`
	Price              int    `json:"price"` // monthly, USD
}

// Catalog maps plan ids to their limits. It is passed to whatever needs it
// so that tiers can be swapped per deployment or per test.
type Catalog map[ID]Plan

func DefaultCatalog() Catalog {
	return Catalog{
		Free:       {ID: Free, Name: "Free", MaxGroups: 1, MaxPlayersPerGroup: 8, Price: 0},
		Premium:    {ID: Premium, Name: "Premium", MaxGroups: 1, MaxPlayersPerGroup: 24, Price: 15},
		Pro:        {ID: Pro, Name: "Pro", MaxGroups: 5, MaxPlayersPerGroup: Unlimited, Price: 30},
		Enterprise: {ID: Enterprise, Name: "Enterprise", MaxGroups: Unlimited, MaxPlayersPerGroup: Unlimited, Price: 50},
	}
}

func (c Catalog) Lookup(id ID) (Plan, bool) {
	p, ok := c[id]
	return p, ok
}

// Plans returns the catalog entries cheapest tier first.
func (c Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c))
	for _, p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].ID] < order[out[j].ID] })
	return out
}

// Effective returns the plan that governs a user with the given
// subscription. Lapsed or missing subscriptions fall back to free, and so
// does a tier the catalog no longer carries.
func (c Catalog) Effective(planID, status string) (Plan, error) {
	id := Free
	if planID != "" && (status == "active" || status == "cancel_at_period_end") {
		parsed, err := ParseID(planID)
		if err != nil {
			return Plan{}, err
		}
		id = parsed
	}
	if p, ok := c.Lookup(id); ok {
		return p, nil
	}
	p, ok := c.Lookup(Free)
	if !ok {
		return Plan{}, fmt.Errorf("plan %q missing from catalog", Free)
	}
	return p, nil
}

// LoadCatalog reads a JSON array of plans. Limits must be positive, or -1
// for unlimited.
func LoadCatalog(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	var plans []Plan
	if err := json.Unmarshal(b, &plans); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	c := Catalog{}
	for _, p := range plans {
		if _, err := ParseID(string(p.ID)); err != nil {
			return nil, err
		}
		var err error
		if p.MaxGroups, err = fileLimit(p.ID, "maxGroups", p.MaxGroups); err != nil {
			return nil, err
		}
		if p.MaxPlayersPerGroup, err = fileLimit(p.ID, "maxPlayersPerGroup", p.MaxPlayersPerGroup); err != nil {
			return nil, err
		}
		c[p.ID] = p
	}
	if _, ok := c[Free]; !ok {
		return nil, fmt.Errorf("plans: %s tier is required", Free)
	}
	return c, nil
}

func fileLimit(id ID, field string, n int) (int, error) {
	switch {
	case n == UnlimitedInFile:
		return Unlimited, nil
	case n <= 0:
		return 0, fmt.Errorf("plans: %s %s must be positive or %d, got %d", id, field, UnlimitedInFile, n)
	}
	return n, nil
}
