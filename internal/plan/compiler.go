// Package plan projects manifests into dry-run deployment plans and compares
// successive plans.
package plan

import (
	"sort"
	"strings"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// DefaultTaskGraph is reported for catalog items without a task graph.
const DefaultTaskGraph = "default"

// UnknownTrigger is reported for rules without conditions.
const UnknownTrigger = "unknown"

// Compile projects m into a DryRunPlan in a single pass. It performs no
// validation and is safe to run on manifests that preflight flagged.
func Compile(m models.Manifest) models.DryRunPlan {
	c := &compiler{
		plan: models.DryRunPlan{
			Projects:     []models.ProjectPlan{},
			RequestTypes: []models.RequestTypePlan{},
			Workflows:    []models.WorkflowPlan{},
			Automations:  []models.AutomationPlan{},
			Adapters:     []models.AdapterPlan{},
			Security:     []models.SecurityPlan{},
		},
	}
	for _, b := range m.Blocks {
		models.Visit(b, c)
	}
	if len(c.entities) > 0 {
		c.plan.Projects = append(c.plan.Projects, models.ProjectPlan{
			Key:      ProjectKey(m.Name),
			Name:     m.Name,
			Entities: c.entities,
		})
	}
	return c.plan
}

// ProjectKey derives the project key from a manifest name.
func ProjectKey(name string) string {
	return strings.ReplaceAll(strings.ToUpper(name), " ", "_")
}

type compiler struct {
	plan     models.DryRunPlan
	entities []string
}

func (c *compiler) VisitEntity(b models.EntityBlock) {
	c.entities = append(c.entities, b.Name)
}

func (c *compiler) VisitRelationship(models.RelationshipBlock) {}

func (c *compiler) VisitWorkflow(b models.WorkflowBlock) {
	c.plan.Workflows = append(c.plan.Workflows, models.WorkflowPlan{
		Name:        b.Name,
		States:      append([]string{}, b.States...),
		Transitions: len(b.Transitions),
	})
}

func (c *compiler) VisitCatalogItem(b models.CatalogItemBlock) {
	graph := b.Fulfillment.TaskGraphID
	if graph == "" {
		graph = DefaultTaskGraph
	}
	fields := 0
	for _, s := range b.Form.Sections {
		fields += len(s.Fields)
	}
	c.plan.RequestTypes = append(c.plan.RequestTypes, models.RequestTypePlan{
		Name:       b.Name,
		TaskGraph:  graph,
		FieldCount: fields,
	})
}

func (c *compiler) VisitRule(b models.RuleBlock) {
	trigger := UnknownTrigger
	if len(b.When) > 0 {
		trigger = b.When[0].Field
	}
	actions := make([]string, 0, len(b.Then))
	for _, a := range b.Then {
		actions = append(actions, string(a.Type))
	}
	c.plan.Automations = append(c.plan.Automations, models.AutomationPlan{
		Name:    b.Name,
		Trigger: trigger,
		Actions: actions,
	})
}

func (c *compiler) VisitAdapter(b models.AdapterBlock) {
	keys := make([]string, 0, len(b.Config))
	for k := range b.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c.plan.Adapters = append(c.plan.Adapters, models.AdapterPlan{
		Name:       b.Name,
		Vendor:     b.Vendor,
		ConfigKeys: keys,
	})
}

func (c *compiler) VisitTaskGraph(models.TaskGraphBlock) {}

func (c *compiler) VisitSecurity(b models.SecurityBlock) {
	for _, v := range b.Visibility {
		c.plan.Security = append(c.plan.Security, models.SecurityPlan{
			Entity: v.EntityName,
			Roles:  append([]string{}, v.Roles...),
		})
	}
}
