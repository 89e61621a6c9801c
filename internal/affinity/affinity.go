// Package affinity checks whether a candidate replica set is spread
// across enough distinct topology domains, per spec.md §4.5. It is a
// pure function of its inputs: no ring, no mutation, no state.
package affinity

import "placementcore/internal/topology"

// Rule is one spread constraint: at least MinSpread distinct values of
// Level across the candidate set. Required rules that fail cause
// CheckAffinity to return false; non-required ("soft") rules are
// still evaluated and reported in the Report, but never flip the
// overall verdict (see DESIGN.md's Open Question resolution).
type Rule struct {
	Level      topology.SpreadLevel
	MinSpread  int
	Required   bool
}

// RackSpread requires at least n distinct racks.
func RackSpread(n int) Rule { return Rule{Level: topology.LevelRack, MinSpread: n, Required: true} }

// AZSpread requires at least n distinct availability zones.
func AZSpread(n int) Rule {
	return Rule{Level: topology.LevelAvailabilityZone, MinSpread: n, Required: true}
}

// RegionSpread requires at least n distinct regions.
func RegionSpread(n int) Rule {
	return Rule{Level: topology.LevelRegion, MinSpread: n, Required: true}
}

// RuleResult is one rule's evaluated outcome, used for diagnostics.
type RuleResult struct {
	Rule         Rule
	DistinctSeen int
	Satisfied    bool
}

// Report is the full outcome of CheckAffinity: the overall verdict
// (driven only by required rules) plus a per-rule breakdown so a
// caller can inspect soft-rule outcomes without them affecting Ok.
type Report struct {
	Ok      bool
	Results []RuleResult
}

// CheckAffinity extracts the field named by each rule's Level from
// every location, counts distinct values, and compares against
// MinSpread. All required rules must be satisfied for Ok to be true;
// soft (non-required) rules are evaluated and recorded in Results but
// can never make Ok false on their own.
func CheckAffinity(locations []topology.Location, rules []Rule) Report {
	report := Report{Ok: true}
	for _, rule := range rules {
		distinct := make(map[uint32]struct{})
		for _, loc := range locations {
			distinct[loc.ValueAt(rule.Level)] = struct{}{}
		}
		satisfied := len(distinct) >= rule.MinSpread
		report.Results = append(report.Results, RuleResult{
			Rule:         rule,
			DistinctSeen: len(distinct),
			Satisfied:    satisfied,
		})
		if rule.Required && !satisfied {
			report.Ok = false
		}
	}
	return report
}
