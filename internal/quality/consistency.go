package quality

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"persona/internal/persona"
)

// consistencyRule flags one kind of internal contradiction.
type consistencyRule struct {
	name  string
	check func(c *persona.Candidate) (violated bool, detail string)
}

var consistencyRules = []consistencyRule{
	{
		name: "age_unparseable",
		check: func(c *persona.Candidate) (bool, string) {
			if strings.TrimSpace(c.Age) == "" {
				return false, ""
			}
			if _, _, ok := parseAge(c.Age); !ok {
				return true, fmt.Sprintf("age %q is not a number or range", c.Age)
			}
			return false, ""
		},
	},
	{
		name: "retired_young",
		check: func(c *persona.Candidate) (bool, string) {
			lo, _, ok := parseAge(c.Age)
			if !ok {
				return false, ""
			}
			if lo < 45 && strings.Contains(strings.ToLower(c.Occupation), "retired") {
				return true, fmt.Sprintf("stated age %s conflicts with retired occupation", c.Age)
			}
			return false, ""
		},
	},
	{
		name: "working_minor",
		check: func(c *persona.Candidate) (bool, string) {
			_, hi, ok := parseAge(c.Age)
			if !ok {
				return false, ""
			}
			if hi < 16 && nonTrivial(c.Occupation) && !strings.Contains(strings.ToLower(c.Occupation), "student") {
				return true, fmt.Sprintf("stated age %s conflicts with occupation %q", c.Age, c.Occupation)
			}
			return false, ""
		},
	},
	{
		name: "goal_is_pain_point",
		check: func(c *persona.Candidate) (bool, string) {
			pains := make(map[string]struct{}, len(c.PainPoints))
			for _, p := range c.PainPoints {
				pains[normalizeText(p)] = struct{}{}
			}
			for _, g := range c.Goals {
				if _, clash := pains[normalizeText(g)]; clash && nonTrivial(g) {
					return true, fmt.Sprintf("%q appears as both a goal and a pain point", g)
				}
			}
			return false, ""
		},
	},
	{
		name: "duplicate_goals",
		check: func(c *persona.Candidate) (bool, string) {
			seen := make(map[string]struct{}, len(c.Goals))
			for _, g := range c.Goals {
				key := normalizeText(g)
				if key == "" {
					continue
				}
				if _, dup := seen[key]; dup {
					return true, fmt.Sprintf("goal %q is listed twice", g)
				}
				seen[key] = struct{}{}
			}
			return false, ""
		},
	},
}

// consistencyMetric runs rule-based contradiction checks. Each violation
// subtracts a fixed penalty from a perfect score, floored at zero.
type consistencyMetric struct{}

func (m *consistencyMetric) Dimension() persona.Dimension {
	return persona.DimConsistency
}

func (m *consistencyMetric) Evaluate(_ context.Context, in Input) (Evaluation, error) {
	score := 1.0
	var issues []string
	for _, rule := range consistencyRules {
		if violated, detail := rule.check(in.Candidate); violated {
			score -= in.Config.ConsistencyPenalty
			issues = append(issues, detail)
		}
	}
	if score < 0 {
		score = 0
	}
	return Evaluation{Score: score, Issues: issues}, nil
}

var agePattern = regexp.MustCompile(`^\s*(\d{1,3})(?:\s*[-–]\s*(\d{1,3}))?\s*$`)

// parseAge accepts "34" or a range like "25-34" and returns its bounds.
func parseAge(age string) (lo, hi int, ok bool) {
	match := agePattern.FindStringSubmatch(age)
	if match == nil {
		return 0, 0, false
	}
	lo, _ = strconv.Atoi(match[1])
	hi = lo
	if match[2] != "" {
		hi, _ = strconv.Atoi(match[2])
		if hi < lo {
			return 0, 0, false
		}
	}
	return lo, hi, true
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
