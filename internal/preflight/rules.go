package preflight

import (
	"fmt"
	"strings"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// RequiredAdapterKeys lists the config keys each vendor needs.
var RequiredAdapterKeys = map[models.Vendor][]string{
	models.VendorOkta:     {"baseUrl", "token"},
	models.VendorWorkday:  {"tenant", "username", "password"},
	models.VendorIntune:   {"tenantId", "clientId", "clientSecret"},
	models.VendorDocuSign: {"accountId", "apiKey"},
	models.VendorCustom:   {},
}

func issue(sev models.Severity, blockID, field, format string, args ...any) models.PreflightIssue {
	return models.PreflightIssue{
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		BlockID:  blockID,
		Field:    field,
	}
}

func checkWorkflowShape(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, w := range m.Workflows() {
		if len(w.States) < 2 {
			out = append(out, issue(models.SeverityError, w.ID, "states",
				"Workflow %q must have at least 2 states", w.Name))
		}
		if len(w.Transitions) == 0 {
			out = append(out, issue(models.SeverityWarning, w.ID, "transitions",
				"Workflow %q has no transitions", w.Name))
		}
	}
	return out
}

func checkEmailNeedsID(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, e := range m.Entities() {
		hasEmail, hasID := false, false
		for _, f := range e.Fields {
			if f.Name == "email" {
				hasEmail = true
			}
			if f.Name == "id" || strings.Contains(f.Name, "Id") {
				hasID = true
			}
		}
		if hasEmail && !hasID {
			out = append(out, issue(models.SeverityError, e.ID, "email",
				"Entity %q has an email field but no id field", e.Name))
		}
	}
	return out
}

func checkSpawnTargets(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, r := range m.Rules() {
		for i, a := range r.Then {
			if a.Type != models.ActionSpawnTaskGraph {
				continue
			}
			if _, ok := m.BlockByID(a.Value); !ok {
				out = append(out, issue(models.SeverityError, r.ID, fmt.Sprintf("then.%d.value", i),
					"Rule %q spawns task graph %q which does not exist", r.Name, a.Value))
			}
		}
	}
	return out
}

// checkPIINeedsSecurity is manifest-wide: any security block anywhere
// satisfies every entity. One issue is reported per entity carrying PII.
func checkPIINeedsSecurity(m models.Manifest) []models.PreflightIssue {
	if m.CountByType()[models.BlockTypeSecurity] > 0 {
		return nil
	}
	var out []models.PreflightIssue
	for _, e := range m.Entities() {
		var pii []string
		for _, f := range e.Fields {
			if f.PII {
				pii = append(pii, f.Name)
			}
		}
		if len(pii) > 0 {
			out = append(out, issue(models.SeverityError, e.ID, pii[0],
				"Entity %q has PII fields (%s) but no security block is defined", e.Name, strings.Join(pii, ", ")))
		}
	}
	return out
}

func checkAdapterConfig(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, a := range m.Adapters() {
		var missing []string
		for _, key := range RequiredAdapterKeys[a.Vendor] {
			if strings.TrimSpace(a.Config[key]) == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			out = append(out, issue(models.SeverityWarning, a.ID, "config",
				"Adapter %q (%s) is missing config: %s", a.Name, a.Vendor, strings.Join(missing, ", ")))
		}
	}
	return out
}

func checkUniqueStates(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, w := range m.Workflows() {
		seen := make(map[string]int, len(w.States))
		var dups []string
		for _, s := range w.States {
			seen[s]++
			if seen[s] == 2 {
				dups = append(dups, s)
			}
		}
		if len(dups) > 0 {
			out = append(out, issue(models.SeverityError, w.ID, "states",
				"Workflow %q has duplicate states: %s", w.Name, strings.Join(dups, ", ")))
		}
	}
	return out
}

func checkTaskAdapters(m models.Manifest) []models.PreflightIssue {
	adapters := make(map[string]bool)
	for _, a := range m.Adapters() {
		adapters[a.ID] = true
	}
	var out []models.PreflightIssue
	for _, b := range m.Blocks {
		g, ok := b.(models.TaskGraphBlock)
		if !ok {
			continue
		}
		for i, t := range g.Tasks {
			if t.Type != models.TaskAdapterAction || adapters[t.AdapterID] {
				continue
			}
			out = append(out, issue(models.SeverityError, g.ID, fmt.Sprintf("tasks.%d.adapterId", i),
				"Task %d (%q) in %q references unknown adapter %q", i, t.Name, g.Name, t.AdapterID))
		}
	}
	return out
}

func entityNames(m models.Manifest) map[string]bool {
	names := make(map[string]bool)
	for _, e := range m.Entities() {
		names[e.Name] = true
	}
	return names
}

func checkRelationshipEndpoints(m models.Manifest) []models.PreflightIssue {
	names := entityNames(m)
	var out []models.PreflightIssue
	for _, b := range m.Blocks {
		r, ok := b.(models.RelationshipBlock)
		if !ok {
			continue
		}
		if !names[r.FromEntity] {
			out = append(out, issue(models.SeverityWarning, r.ID, "fromEntity",
				"Relationship %q starts at unknown entity %q", r.Name, r.FromEntity))
		}
		if !names[r.ToEntity] {
			out = append(out, issue(models.SeverityWarning, r.ID, "toEntity",
				"Relationship %q points at unknown entity %q", r.Name, r.ToEntity))
		}
	}
	return out
}

func checkRefTargets(m models.Manifest) []models.PreflightIssue {
	names := entityNames(m)
	var out []models.PreflightIssue
	for _, e := range m.Entities() {
		for i, f := range e.Fields {
			if f.Type != models.FieldTypeRef {
				continue
			}
			if f.Ref == nil || !names[f.Ref.Entity] {
				target := ""
				if f.Ref != nil {
					target = f.Ref.Entity
				}
				out = append(out, issue(models.SeverityWarning, e.ID, fmt.Sprintf("fields.%d.ref", i),
					"Field %q of %q references unknown entity %q", f.Name, e.Name, target))
			}
		}
	}
	return out
}

func checkTransitionStates(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, w := range m.Workflows() {
		states := make(map[string]bool, len(w.States))
		for _, s := range w.States {
			states[s] = true
		}
		for i, t := range w.Transitions {
			if !states[t.From] {
				out = append(out, issue(models.SeverityWarning, w.ID, fmt.Sprintf("transitions.%d.from", i),
					"Workflow %q transition %d starts at undeclared state %q", w.Name, i, t.From))
			}
			if !states[t.To] {
				out = append(out, issue(models.SeverityWarning, w.ID, fmt.Sprintf("transitions.%d.to", i),
					"Workflow %q transition %d ends at undeclared state %q", w.Name, i, t.To))
			}
		}
	}
	return out
}

func checkFulfillmentTargets(m models.Manifest) []models.PreflightIssue {
	var out []models.PreflightIssue
	for _, b := range m.Blocks {
		c, ok := b.(models.CatalogItemBlock)
		if !ok || c.Fulfillment.Type != models.FulfillmentTaskGraph {
			continue
		}
		if c.Fulfillment.TaskGraphID == "" {
			out = append(out, issue(models.SeverityWarning, c.ID, "fulfillment.taskGraphId",
				"Catalog item %q is fulfilled by a task graph but names none; the default graph is used", c.Name))
			continue
		}
		target, ok := m.BlockByID(c.Fulfillment.TaskGraphID)
		if !ok || target.Kind() != models.BlockTypeTaskGraph {
			out = append(out, issue(models.SeverityError, c.ID, "fulfillment.taskGraphId",
				"Catalog item %q references unknown task graph %q", c.Name, c.Fulfillment.TaskGraphID))
		}
	}
	return out
}

func checkSecurityEntities(m models.Manifest) []models.PreflightIssue {
	names := entityNames(m)
	var out []models.PreflightIssue
	for _, b := range m.Blocks {
		s, ok := b.(models.SecurityBlock)
		if !ok {
			continue
		}
		for i, v := range s.Visibility {
			if !names[v.EntityName] {
				out = append(out, issue(models.SeverityInfo, s.ID, fmt.Sprintf("visibility.%d.entityName", i),
					"Security block %q grants visibility on unknown entity %q", s.Name, v.EntityName))
			}
		}
	}
	return out
}
