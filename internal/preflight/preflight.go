// Package preflight runs advisory semantic checks over a structurally valid
// manifest. Issues are data: a clean run means "preflight passed", not that a
// deployment is guaranteed to succeed, and nothing here blocks compilation.
package preflight

import (
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// Rule inspects the whole manifest once. Rules are independent of each other.
type Rule struct {
	Name  string
	Check func(m models.Manifest) []models.PreflightIssue
}

// Rules is the fixed battery, in reporting order.
var Rules = []Rule{
	{"workflow-shape", checkWorkflowShape},
	{"email-needs-id", checkEmailNeedsID},
	{"spawn-target-exists", checkSpawnTargets},
	{"pii-needs-security", checkPIINeedsSecurity},
	{"adapter-config", checkAdapterConfig},
	{"unique-states", checkUniqueStates},
	{"task-adapter-exists", checkTaskAdapters},
}

// ReferentialRules check cross-block references the fixed battery leaves
// alone. They run after Rules, and only with WithReferentialChecks.
var ReferentialRules = []Rule{
	{"relationship-endpoints", checkRelationshipEndpoints},
	{"ref-targets", checkRefTargets},
	{"transition-states", checkTransitionStates},
	{"fulfillment-target", checkFulfillmentTargets},
	{"security-entities", checkSecurityEntities},
}

type runConfig struct {
	referential bool
}

// Option tunes Run.
type Option func(*runConfig)

// WithReferentialChecks appends ReferentialRules to the battery.
func WithReferentialChecks() Option {
	return func(c *runConfig) { c.referential = true }
}

// Run applies every rule and concatenates their issues in rule order.
func Run(m models.Manifest, opts ...Option) []models.PreflightIssue {
	cfg := runConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	issues := []models.PreflightIssue{}
	for _, r := range Rules {
		issues = append(issues, r.Check(m)...)
	}
	if cfg.referential {
		for _, r := range ReferentialRules {
			issues = append(issues, r.Check(m)...)
		}
	}
	return issues
}

// Summary tallies issues by severity.
type Summary struct {
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`
	Infos    int  `json:"infos"`
	Passed   bool `json:"passed"`
}

// Summarize counts issues. Passed is true when there are no issues at all.
func Summarize(issues []models.PreflightIssue) Summary {
	var s Summary
	for _, is := range issues {
		switch is.Severity {
		case models.SeverityError:
			s.Errors++
		case models.SeverityWarning:
			s.Warnings++
		case models.SeverityInfo:
			s.Infos++
		}
	}
	s.Passed = len(issues) == 0
	return s
}

// HasErrors reports whether any issue is error-graded.
func HasErrors(issues []models.PreflightIssue) bool {
	for _, is := range issues {
		if is.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// Filter returns the issues of one severity.
func Filter(issues []models.PreflightIssue, sev models.Severity) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, is := range issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}
