package credit

import (
	"encoding/json"
	"strings"
)

// Profile prices one tool: a base cost per invocation, an optional
// per-unit cost driven by a numeric parameter, and flat surcharges for
// boolean option parameters.
type Profile struct {
	Base       int64
	PerUnit    int64
	UnitParam  string
	Surcharges map[string]int64
}

// defaultCost applies to tools without a registered profile.
const defaultCost = 10

// Estimator computes the pre-execution cost estimate for a tool call.
type Estimator struct {
	profiles map[string]Profile
}

// NewEstimator returns an estimator seeded with the standard pricing
// table.
func NewEstimator() *Estimator {
	return &Estimator{profiles: defaultProfiles()}
}

// NewEstimatorWith returns an estimator using the given table. Missing
// tools fall back to the default cost.
func NewEstimatorWith(profiles map[string]Profile) *Estimator {
	return &Estimator{profiles: profiles}
}

// Estimate prices a tool invocation from its parameters. The first unit
// is covered by the base cost; additional units add PerUnit each.
func (e *Estimator) Estimate(tool string, params map[string]json.RawMessage) int64 {
	p, ok := e.profiles[tool]
	if !ok {
		return defaultCost
	}

	total := p.Base

	if p.UnitParam != "" {
		if units := intParam(params, p.UnitParam); units > 1 {
			total += p.PerUnit * (units - 1)
		}
	}

	for param, surcharge := range p.Surcharges {
		if truthyParam(params, param) {
			total += surcharge
		}
	}

	return total
}

// Actual re-prices a call from the quantity the tool actually
// produced. Tools that cannot report output volume pass units<=0 and
// are billed the estimate.
func (e *Estimator) Actual(tool string, params map[string]json.RawMessage, units int64) int64 {
	if units <= 0 {
		return e.Estimate(tool, params)
	}

	p, ok := e.profiles[tool]
	if !ok {
		return defaultCost
	}

	total := p.Base
	if p.UnitParam != "" && units > 1 {
		total += p.PerUnit * (units - 1)
	}
	for param, surcharge := range p.Surcharges {
		if truthyParam(params, param) {
			total += surcharge
		}
	}
	return total
}

// defaultProfiles is the standard pricing table. Generation tools are
// expensive, campaign mutations cheap, reads in between.
func defaultProfiles() map[string]Profile {
	return map[string]Profile{
		"generate_creative": {
			Base: 100, PerUnit: 80, UnitParam: "count",
			Surcharges: map[string]int64{"with_images": 50},
		},
		"batch_generate_creatives": {
			Base: 100, PerUnit: 80, UnitParam: "count",
			Surcharges: map[string]int64{"with_images": 50},
		},
		"create_campaign":        {Base: 10},
		"update_campaign_budget": {Base: 5},
		"pause_campaign":         {Base: 5},
		"resume_campaign":        {Base: 5},
		"pause_all_campaigns":    {Base: 5},
		"get_campaign_report":    {Base: 20, Surcharges: map[string]int64{"detailed": 20}},
		"create_landing_page":    {Base: 150, Surcharges: map[string]int64{"with_seo": 50}},
		"get_market_insight":     {Base: 50},
	}
}

// intParam reads a numeric parameter, returning 0 when absent or not a
// number.
func intParam(params map[string]json.RawMessage, name string) int64 {
	raw, ok := params[name]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// truthyParam reports whether a parameter is present and not false,
// null, zero or empty.
func truthyParam(params map[string]json.RawMessage, name string) bool {
	raw, ok := params[name]
	if !ok {
		return false
	}
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
