package plan

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// Plan categories, in the order diffs report them.
const (
	CategoryProjects     = "projects"
	CategoryRequestTypes = "requestTypes"
	CategoryWorkflows    = "workflows"
	CategoryAutomations  = "automations"
	CategoryAdapters     = "adapters"
	CategorySecurity     = "security"
)

// Categories lists every plan category in report order.
var Categories = []string{
	CategoryProjects,
	CategoryRequestTypes,
	CategoryWorkflows,
	CategoryAutomations,
	CategoryAdapters,
	CategorySecurity,
}

type row struct {
	name  string
	value any
}

func rowsOf[T any](items []T, name func(T) string) []row {
	out := make([]row, len(items))
	for i, it := range items {
		out[i] = row{name: name(it), value: it}
	}
	return out
}

func categoryRows(p models.DryRunPlan) map[string][]row {
	return map[string][]row{
		CategoryProjects:     rowsOf(p.Projects, func(x models.ProjectPlan) string { return x.Name }),
		CategoryRequestTypes: rowsOf(p.RequestTypes, func(x models.RequestTypePlan) string { return x.Name }),
		CategoryWorkflows:    rowsOf(p.Workflows, func(x models.WorkflowPlan) string { return x.Name }),
		CategoryAutomations:  rowsOf(p.Automations, func(x models.AutomationPlan) string { return x.Name }),
		CategoryAdapters:     rowsOf(p.Adapters, func(x models.AdapterPlan) string { return x.Name }),
		CategorySecurity:     rowsOf(p.Security, func(x models.SecurityPlan) string { return x.Entity }),
	}
}

type diffConfig struct {
	detectChanges bool
}

// DiffOption tunes Diff.
type DiffOption func(*diffConfig)

// WithChangeDetection compares rows that match by name field by field and
// reports "changed" when any field differs. Without it, rows present in both
// plans are always "unchanged".
func WithChangeDetection() DiffOption {
	return func(c *diffConfig) { c.detectChanges = true }
}

// Diff compares two plans category by category, matching rows by name only.
// A nil prev marks every current row as added. Within a category, current
// rows are reported in order, followed by removed rows in previous order.
func Diff(prev *models.DryRunPlan, cur models.DryRunPlan, opts ...DiffOption) []models.DiffItem {
	cfg := diffConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	curRows := categoryRows(cur)
	items := []models.DiffItem{}
	if prev == nil {
		for _, cat := range Categories {
			for _, r := range curRows[cat] {
				items = append(items, models.DiffItem{Type: models.DiffAdded, Category: cat, Name: r.name})
			}
		}
		return items
	}

	prevRows := categoryRows(*prev)
	for _, cat := range Categories {
		before := make(map[string]row, len(prevRows[cat]))
		for _, r := range prevRows[cat] {
			if _, seen := before[r.name]; !seen {
				before[r.name] = r
			}
		}
		after := make(map[string]bool, len(curRows[cat]))

		for _, r := range curRows[cat] {
			after[r.name] = true
			old, ok := before[r.name]
			switch {
			case !ok:
				items = append(items, models.DiffItem{Type: models.DiffAdded, Category: cat, Name: r.name})
			case cfg.detectChanges:
				if fields := changedFields(old.value, r.value); len(fields) > 0 {
					items = append(items, models.DiffItem{
						Type:     models.DiffChanged,
						Category: cat,
						Name:     r.name,
						Details:  fmt.Sprintf("changed: %s", strings.Join(fields, ", ")),
					})
					continue
				}
				fallthrough
			default:
				items = append(items, models.DiffItem{Type: models.DiffUnchanged, Category: cat, Name: r.name})
			}
		}
		for _, r := range prevRows[cat] {
			if !after[r.name] {
				items = append(items, models.DiffItem{Type: models.DiffRemoved, Category: cat, Name: r.name})
			}
		}
	}
	return items
}

// Changes drops unchanged rows, which is what callers display.
func Changes(items []models.DiffItem) []models.DiffItem {
	out := []models.DiffItem{}
	for _, it := range items {
		if it.Type != models.DiffUnchanged {
			out = append(out, it)
		}
	}
	return out
}

// Count tallies diff rows by type.
func Count(items []models.DiffItem) map[models.DiffType]int {
	counts := make(map[models.DiffType]int, 4)
	for _, it := range items {
		counts[it.Type]++
	}
	return counts
}

// changedFields lists the JSON names of struct fields that differ between two
// rows of the same plan type. A nil slice equals an empty one.
func changedFields(a, b any) []string {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || va.Kind() != reflect.Struct {
		return nil
	}
	var out []string
	t := va.Type()
	for i := 0; i < t.NumField(); i++ {
		if cmp.Equal(va.Field(i).Interface(), vb.Field(i).Interface(), cmpopts.EquateEmpty()) {
			continue
		}
		name := t.Field(i).Name
		if tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]; tag != "" {
			name = tag
		}
		out = append(out, name)
	}
	return out
}
