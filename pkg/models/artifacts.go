package models

import "time"

// Severity grades a preflight issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// PreflightIssue is one advisory finding of the preflight pass.
type PreflightIssue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	BlockID  string   `json:"blockId,omitempty"`
	Field    string   `json:"field,omitempty"`
}

// ProjectPlan aggregates every entity into a single deployment project.
type ProjectPlan struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
}

// RequestTypePlan is the projection of a catalog item.
type RequestTypePlan struct {
	Name       string `json:"name"`
	TaskGraph  string `json:"taskGraph"`
	FieldCount int    `json:"fieldCount"`
}

// WorkflowPlan is the projection of a workflow block.
type WorkflowPlan struct {
	Name        string   `json:"name"`
	States      []string `json:"states"`
	Transitions int      `json:"transitions"`
}

// AutomationPlan is the projection of a rule block.
type AutomationPlan struct {
	Name    string   `json:"name"`
	Trigger string   `json:"trigger"`
	Actions []string `json:"actions"`
}

// AdapterPlan is the projection of an adapter block.
type AdapterPlan struct {
	Name       string   `json:"name"`
	Vendor     Vendor   `json:"vendor"`
	ConfigKeys []string `json:"configKeys"`
}

// SecurityPlan is one entity/role-set visibility row.
type SecurityPlan struct {
	Entity string   `json:"entity"`
	Roles  []string `json:"roles"`
}

// DryRunPlan is a manifest projected into deployment categories. Plans are
// derived and disposable; they are never the source of truth.
type DryRunPlan struct {
	Projects     []ProjectPlan     `json:"projects"`
	RequestTypes []RequestTypePlan `json:"requestTypes"`
	Workflows    []WorkflowPlan    `json:"workflows"`
	Automations  []AutomationPlan  `json:"automations"`
	Adapters     []AdapterPlan     `json:"adapters"`
	Security     []SecurityPlan    `json:"security"`
}

// ItemCount is the number of rows across all categories.
func (p DryRunPlan) ItemCount() int {
	return len(p.Projects) + len(p.RequestTypes) + len(p.Workflows) +
		len(p.Automations) + len(p.Adapters) + len(p.Security)
}

// DiffType classifies a plan row across two plans.
type DiffType string

const (
	DiffAdded     DiffType = "added"
	DiffRemoved   DiffType = "removed"
	DiffChanged   DiffType = "changed"
	DiffUnchanged DiffType = "unchanged"
)

// DiffItem is one named row of one category compared across two plans.
type DiffItem struct {
	Type     DiffType `json:"type"`
	Category string   `json:"category"`
	Name     string   `json:"name"`
	Details  string   `json:"details,omitempty"`
}

// SeedRecord is one synthesized record keyed by field name.
type SeedRecord map[string]any

// SeedDataOutput maps entity name to its synthesized records.
type SeedDataOutput map[string][]SeedRecord

// RunStatus is the state of a synthetic run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// StepType classifies one entry in a synthetic run trace.
type StepType string

const (
	StepTransition     StepType = "transition"
	StepRuleFired      StepType = "rule_fired"
	StepActionExecuted StepType = "action_executed"
)

// SyntheticStep is one entry of a run trace.
type SyntheticStep struct {
	Timestamp  time.Time  `json:"timestamp"`
	Type       StepType   `json:"type"`
	From       string     `json:"from,omitempty"`
	To         string     `json:"to,omitempty"`
	RuleName   string     `json:"ruleName,omitempty"`
	ActionType ActionType `json:"actionType,omitempty"`
	Details    string     `json:"details"`
}

// SyntheticRunLog is the trace of one simulated workflow execution.
type SyntheticRunLog struct {
	WorkflowName string          `json:"workflowName"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
	Steps        []SyntheticStep `json:"steps"`
	Status       RunStatus       `json:"status"`
	Error        string          `json:"error,omitempty"`
}
