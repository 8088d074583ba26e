// Package synthetic replays a workflow and the manifest's rules against
// sample ticket data and records an execution trace.
//
// The traversal is a single linear pass over the workflow's transitions in
// declaration order. A transition fires when its source is the current state,
// so transitions later in the list can follow one taken earlier in the same
// pass, but the pass never loops back. This bounds every run to one pass and
// keeps traces reproducible.
package synthetic

import (
	"fmt"
	"time"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// Runner executes synthetic runs. Now stamps every step.
type Runner struct {
	Now func() time.Time
}

// NewRunner returns a Runner on the wall clock.
func NewRunner() *Runner {
	return &Runner{Now: time.Now}
}

// Run executes workflowID with the wall clock.
func Run(m models.Manifest, workflowID string, ticket map[string]any) models.SyntheticRunLog {
	return NewRunner().Run(m, workflowID, ticket)
}

// Run replays the workflow with id workflowID. An unknown id yields a log with
// status "error" and no steps; every other run completes.
func (r *Runner) Run(m models.Manifest, workflowID string, ticket map[string]any) models.SyntheticRunLog {
	now := r.clock()
	log := models.SyntheticRunLog{
		StartTime: now(),
		Steps:     []models.SyntheticStep{},
		Status:    models.RunRunning,
	}

	wf, ok := findWorkflow(m, workflowID)
	if !ok {
		end := now()
		log.EndTime = &end
		log.Status = models.RunError
		log.Error = fmt.Sprintf("workflow %q not found", workflowID)
		return log
	}
	log.WorkflowName = wf.Name

	rules := m.Rules()
	if len(wf.States) == 0 {
		end := now()
		log.EndTime = &end
		log.Status = models.RunCompleted
		return log
	}

	current := wf.States[0]
	visited := map[string]bool{current: true}
	log.Steps = append(log.Steps, models.SyntheticStep{
		Timestamp: now(),
		Type:      models.StepTransition,
		To:        current,
		Details:   fmt.Sprintf("Started in state %q", current),
	})

	for _, t := range wf.Transitions {
		if t.From != current {
			continue
		}
		for _, rule := range rules {
			cond, fired := firstMatch(rule, ticket)
			if !fired {
				continue
			}
			log.Steps = append(log.Steps, models.SyntheticStep{
				Timestamp: now(),
				Type:      models.StepRuleFired,
				RuleName:  rule.Name,
				Details:   fmt.Sprintf("Rule %q matched %s = %q", rule.Name, cond.Field, cond.Value),
			})
			for _, a := range rule.Then {
				log.Steps = append(log.Steps, models.SyntheticStep{
					Timestamp:  now(),
					Type:       models.StepActionExecuted,
					RuleName:   rule.Name,
					ActionType: a.Type,
					Details:    fmt.Sprintf("%s: %s", a.Type, a.Value),
				})
			}
		}
		if visited[t.To] {
			continue
		}
		log.Steps = append(log.Steps, models.SyntheticStep{
			Timestamp: now(),
			Type:      models.StepTransition,
			From:      current,
			To:        t.To,
			Details:   transitionDetails(t),
		})
		current = t.To
		visited[current] = true
	}

	end := now()
	log.EndTime = &end
	log.Status = models.RunCompleted
	return log
}

func (r *Runner) clock() func() time.Time {
	if r.Now != nil {
		return r.Now
	}
	return time.Now
}

func findWorkflow(m models.Manifest, id string) (models.WorkflowBlock, bool) {
	b, ok := m.BlockByID(id)
	if !ok {
		return models.WorkflowBlock{}, false
	}
	wf, ok := b.(models.WorkflowBlock)
	return wf, ok
}

// firstMatch reports the first condition whose ticket value is a string equal
// to the condition value. A rule fires if any condition matches.
func firstMatch(rule models.RuleBlock, ticket map[string]any) (models.RuleCondition, bool) {
	for _, c := range rule.When {
		if v, ok := ticket[c.Field].(string); ok && v == c.Value {
			return c, true
		}
	}
	return models.RuleCondition{}, false
}

func transitionDetails(t models.Transition) string {
	if t.Label != "" {
		return fmt.Sprintf("%s -> %s (%s)", t.From, t.To, t.Label)
	}
	return fmt.Sprintf("%s -> %s", t.From, t.To)
}
