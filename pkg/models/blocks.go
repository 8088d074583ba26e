// Package models defines the solution IR and the artifacts derived from it.
package models

import (
	"encoding/json"
	"fmt"
)

// BlockType is the discriminator carried in every block's "type" field.
type BlockType string

const (
	BlockTypeEntity       BlockType = "entity"
	BlockTypeRelationship BlockType = "relationship"
	BlockTypeWorkflow     BlockType = "workflow"
	BlockTypeCatalogItem  BlockType = "catalogItem"
	BlockTypeRule         BlockType = "rule"
	BlockTypeAdapter      BlockType = "adapter"
	BlockTypeTaskGraph    BlockType = "taskGraph"
	BlockTypeSecurity     BlockType = "security"
)

// AllBlockTypes is the closed set of block variants.
var AllBlockTypes = []BlockType{
	BlockTypeEntity,
	BlockTypeRelationship,
	BlockTypeWorkflow,
	BlockTypeCatalogItem,
	BlockTypeRule,
	BlockTypeAdapter,
	BlockTypeTaskGraph,
	BlockTypeSecurity,
}

// Valid reports whether t is one of the known block variants.
func (t BlockType) Valid() bool {
	for _, known := range AllBlockTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Block is one typed unit of a solution. The set of implementations is closed;
// the unexported method keeps other packages from adding variants.
type Block interface {
	BlockID() string
	BlockName() string
	Kind() BlockType
	sealed()
}

// Base holds the fields every block shares.
type Base struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (b Base) BlockID() string   { return b.ID }
func (b Base) BlockName() string { return b.Name }
func (Base) sealed()             {}

// FieldType is the data type of an entity field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeEnum    FieldType = "enum"
	FieldTypeRef     FieldType = "ref"
)

// FieldTypes lists the accepted entity field types.
var FieldTypes = []FieldType{FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate, FieldTypeEnum, FieldTypeRef}

// FieldRef points an entity field at another entity by name.
type FieldRef struct {
	Entity string `json:"entity"`
}

// EntityField is one column of an entity.
type EntityField struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	PII         bool      `json:"pii,omitempty"`
	EnumOptions []string  `json:"enumOptions,omitempty"`
	Ref         *FieldRef `json:"ref,omitempty"`
}

// EntityBlock declares a record type.
type EntityBlock struct {
	Base
	Fields []EntityField `json:"fields"`
}

func (EntityBlock) Kind() BlockType { return BlockTypeEntity }

// RelationshipType is the cardinality of a relationship.
type RelationshipType string

const (
	OneToMany  RelationshipType = "oneToMany"
	ManyToMany RelationshipType = "manyToMany"
)

// RelationshipTypes lists the accepted relationship cardinalities.
var RelationshipTypes = []RelationshipType{OneToMany, ManyToMany}

// RelationshipBlock links two entities by name.
type RelationshipBlock struct {
	Base
	FromEntity       string           `json:"fromEntity"`
	ToEntity         string           `json:"toEntity"`
	RelationshipType RelationshipType `json:"relationshipType"`
}

func (RelationshipBlock) Kind() BlockType { return BlockTypeRelationship }

// Transition moves a ticket between two named states.
type Transition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// WorkflowBlock is a state machine over named states.
type WorkflowBlock struct {
	Base
	States      []string     `json:"states"`
	Transitions []Transition `json:"transitions"`
}

func (WorkflowBlock) Kind() BlockType { return BlockTypeWorkflow }

// FormField is one input on a catalog item form.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// FormSection groups form fields under a title.
type FormSection struct {
	Title  string      `json:"title"`
	Fields []FormField `json:"fields"`
}

// Form is the request form of a catalog item.
type Form struct {
	Sections []FormSection `json:"sections"`
}

// FulfillmentType says how a catalog request is fulfilled.
type FulfillmentType string

const (
	FulfillmentTaskGraph FulfillmentType = "taskGraph"
	FulfillmentManual    FulfillmentType = "manual"
)

// FulfillmentTypes lists the accepted fulfillment kinds.
var FulfillmentTypes = []FulfillmentType{FulfillmentTaskGraph, FulfillmentManual}

// Fulfillment binds a catalog item to its execution.
type Fulfillment struct {
	Type        FulfillmentType `json:"type"`
	TaskGraphID string          `json:"taskGraphId,omitempty"`
}

// CatalogItemBlock is a requestable service.
type CatalogItemBlock struct {
	Base
	Form        Form        `json:"form"`
	Fulfillment Fulfillment `json:"fulfillment"`
}

func (CatalogItemBlock) Kind() BlockType { return BlockTypeCatalogItem }

// Operator compares a ticket field against a value.
type Operator string

const (
	OperatorEquals    Operator = "equals"
	OperatorNotEquals Operator = "notEquals"
	OperatorContains  Operator = "contains"
)

// Operators lists the accepted condition operators.
var Operators = []Operator{OperatorEquals, OperatorNotEquals, OperatorContains}

// RuleCondition is one predicate of a rule.
type RuleCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// ActionType is what a rule does when it fires.
type ActionType string

const (
	ActionAssignToQueue  ActionType = "assignToQueue"
	ActionSetSLA         ActionType = "setSLA"
	ActionSpawnTaskGraph ActionType = "spawnTaskGraph"
)

// ActionTypes lists the accepted rule actions.
var ActionTypes = []ActionType{ActionAssignToQueue, ActionSetSLA, ActionSpawnTaskGraph}

// RuleAction is one effect of a rule.
type RuleAction struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value"`
}

// RuleBlock is an automation: conditions and the actions they trigger.
type RuleBlock struct {
	Base
	When []RuleCondition `json:"when"`
	Then []RuleAction    `json:"then"`
}

func (RuleBlock) Kind() BlockType { return BlockTypeRule }

// Vendor identifies an external integration.
type Vendor string

const (
	VendorOkta     Vendor = "okta"
	VendorWorkday  Vendor = "workday"
	VendorIntune   Vendor = "intune"
	VendorDocuSign Vendor = "docusign"
	VendorCustom   Vendor = "custom"
)

// Vendors lists the accepted adapter vendors.
var Vendors = []Vendor{VendorOkta, VendorWorkday, VendorIntune, VendorDocuSign, VendorCustom}

// AdapterBlock configures a vendor integration.
type AdapterBlock struct {
	Base
	Vendor Vendor            `json:"vendor"`
	Config map[string]string `json:"config"`
}

func (AdapterBlock) Kind() BlockType { return BlockTypeAdapter }

// TaskType is how a task is executed.
type TaskType string

const (
	TaskAdapterAction TaskType = "adapterAction"
	TaskManual        TaskType = "manual"
)

// TaskTypes lists the accepted task kinds.
var TaskTypes = []TaskType{TaskAdapterAction, TaskManual}

// Task is one node of a task graph.
type Task struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          TaskType `json:"type"`
	AdapterID     string   `json:"adapterId,omitempty"`
	Action        string   `json:"action,omitempty"`
	ParallelGroup string   `json:"parallelGroup,omitempty"`
}

// TaskGraphBlock is a set of fulfillment tasks.
type TaskGraphBlock struct {
	Base
	Tasks []Task `json:"tasks"`
}

func (TaskGraphBlock) Kind() BlockType { return BlockTypeTaskGraph }

// Visibility grants roles access to an entity.
type Visibility struct {
	EntityName string   `json:"entityName"`
	Roles      []string `json:"roles"`
}

// SecurityBlock declares entity visibility.
type SecurityBlock struct {
	Base
	Visibility []Visibility `json:"visibility"`
}

func (SecurityBlock) Kind() BlockType { return BlockTypeSecurity }

// BlockVisitor has one method per block variant. Consumers that must handle
// every variant implement it; adding a variant breaks them at compile time.
type BlockVisitor interface {
	VisitEntity(EntityBlock)
	VisitRelationship(RelationshipBlock)
	VisitWorkflow(WorkflowBlock)
	VisitCatalogItem(CatalogItemBlock)
	VisitRule(RuleBlock)
	VisitAdapter(AdapterBlock)
	VisitTaskGraph(TaskGraphBlock)
	VisitSecurity(SecurityBlock)
}

// Visit dispatches b to the matching visitor method.
func Visit(b Block, v BlockVisitor) {
	switch blk := b.(type) {
	case EntityBlock:
		v.VisitEntity(blk)
	case RelationshipBlock:
		v.VisitRelationship(blk)
	case WorkflowBlock:
		v.VisitWorkflow(blk)
	case CatalogItemBlock:
		v.VisitCatalogItem(blk)
	case RuleBlock:
		v.VisitRule(blk)
	case AdapterBlock:
		v.VisitAdapter(blk)
	case TaskGraphBlock:
		v.VisitTaskGraph(blk)
	case SecurityBlock:
		v.VisitSecurity(blk)
	default:
		panic(fmt.Sprintf("models: unhandled block %T", b))
	}
}

// MarshalBlock renders a block with its "type" discriminator first.
func MarshalBlock(b Block) ([]byte, error) {
	var body any
	switch blk := b.(type) {
	case EntityBlock:
		type plain EntityBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case RelationshipBlock:
		type plain RelationshipBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case WorkflowBlock:
		type plain WorkflowBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case CatalogItemBlock:
		type plain CatalogItemBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case RuleBlock:
		type plain RuleBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case AdapterBlock:
		type plain AdapterBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case TaskGraphBlock:
		type plain TaskGraphBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	case SecurityBlock:
		type plain SecurityBlock
		body = struct {
			Type BlockType `json:"type"`
			plain
		}{blk.Kind(), plain(blk)}
	default:
		return nil, fmt.Errorf("unknown block %T", b)
	}
	return json.Marshal(body)
}

// UnmarshalBlock decodes one block, picking the variant from its "type" tag.
// It performs no validation beyond the discriminator; untrusted input goes
// through the schema validator instead.
func UnmarshalBlock(data []byte) (Block, error) {
	var head struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case BlockTypeEntity:
		var b EntityBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeRelationship:
		var b RelationshipBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeWorkflow:
		var b WorkflowBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeCatalogItem:
		var b CatalogItemBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeRule:
		var b RuleBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeAdapter:
		var b AdapterBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeTaskGraph:
		var b TaskGraphBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockTypeSecurity:
		var b SecurityBlock
		err := json.Unmarshal(data, &b)
		return b, err
	}
	return nil, fmt.Errorf("unknown block type %q", head.Type)
}
