// Package schema validates untrusted manifest JSON into a typed models.Manifest.
//
// Validation here is structural only: field presence, JSON kinds, enum
// membership and array minimums. Cross-block checks belong to preflight. The
// one exception is block id uniqueness, which downstream stages rely on.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// Issue is one structural problem at a dotted JSON path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Result is the outcome of validation. Manifest is set only when OK is true;
// import is rejected wholesale otherwise.
type Result struct {
	OK       bool             `json:"ok"`
	Manifest *models.Manifest `json:"data,omitempty"`
	Issues   []Issue          `json:"issues,omitempty"`
}

// Validate parses data as JSON and validates it.
func Validate(data []byte) Result {
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return Result{Issues: []Issue{{Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	if dec.More() {
		return Result{Issues: []Issue{{Message: "invalid JSON: trailing data after document"}}}
	}
	return ValidateValue(v)
}

// ValidateValue validates an already decoded JSON value. Maps must be
// map[string]any, which is what encoding/json and yaml.v3 produce.
func ValidateValue(v any) Result {
	w := &walker{}
	m := w.manifest(v)
	if len(w.issues) > 0 {
		return Result{Issues: w.issues}
	}
	return Result{OK: true, Manifest: m}
}

// ValidateBlocks validates a list of raw blocks on their own, with paths
// rooted at "blocks". Id uniqueness is checked within the list only.
func ValidateBlocks(values []any) ([]models.Block, []Issue) {
	w := &walker{}
	blocks := w.blocks("blocks", values)
	if len(w.issues) > 0 {
		return nil, w.issues
	}
	return blocks, nil
}

// Import is Validate under the name used by the export/import contract.
func Import(data []byte) Result {
	return Validate(data)
}

// Export renders m as pretty-printed JSON. Export then Import of a manifest
// that passed validation yields an equal manifest.
func Export(m models.Manifest) ([]byte, error) {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export manifest: %w", err)
	}
	return append(out, '\n'), nil
}

func (w *walker) manifest(v any) *models.Manifest {
	obj, ok := w.object("", v)
	if !ok {
		return nil
	}
	m := &models.Manifest{
		Version:     w.requiredString(obj, "", "version", false),
		Name:        w.requiredString(obj, "", "name", true),
		Description: w.optionalString(obj, "", "description"),
	}
	if items, ok := w.array(obj, "", "blocks", 0); ok {
		m.Blocks = w.blocks("blocks", items)
	}
	return m
}

func (w *walker) blocks(path string, items []any) []models.Block {
	blocks := make([]models.Block, 0, len(items))
	firstSeen := make(map[string]int, len(items))
	for i, item := range items {
		p := index(path, i)
		b := w.block(p, item)
		if b == nil {
			continue
		}
		blocks = append(blocks, b)
		id := b.BlockID()
		if id == "" {
			continue
		}
		if first, dup := firstSeen[id]; dup {
			w.add(join(p, "id"), fmt.Sprintf("duplicate block id %q (first used by %s)", id, index(path, first)))
			continue
		}
		firstSeen[id] = i
	}
	return blocks
}

func (w *walker) block(path string, v any) models.Block {
	obj, ok := w.object(path, v)
	if !ok {
		return nil
	}
	raw, present := obj["type"]
	if !present {
		w.add(join(path, "type"), "Required")
		return nil
	}
	tag, isString := raw.(string)
	if !isString || !models.BlockType(tag).Valid() {
		w.add(join(path, "type"), fmt.Sprintf("unknown block type %v; expected one of %v", describe(raw), models.AllBlockTypes))
		return nil
	}

	base := models.Base{
		ID:   w.requiredString(obj, path, "id", true),
		Name: w.requiredString(obj, path, "name", true),
	}
	switch models.BlockType(tag) {
	case models.BlockTypeEntity:
		return w.entity(path, obj, base)
	case models.BlockTypeRelationship:
		return w.relationship(path, obj, base)
	case models.BlockTypeWorkflow:
		return w.workflow(path, obj, base)
	case models.BlockTypeCatalogItem:
		return w.catalogItem(path, obj, base)
	case models.BlockTypeRule:
		return w.rule(path, obj, base)
	case models.BlockTypeAdapter:
		return w.adapter(path, obj, base)
	case models.BlockTypeTaskGraph:
		return w.taskGraph(path, obj, base)
	case models.BlockTypeSecurity:
		return w.security(path, obj, base)
	}
	return nil
}

func (w *walker) entity(path string, obj map[string]any, base models.Base) models.Block {
	b := models.EntityBlock{Base: base, Fields: []models.EntityField{}}
	items, ok := w.array(obj, path, "fields", 0)
	if !ok {
		return b
	}
	for i, item := range items {
		p := index(join(path, "fields"), i)
		f, ok := w.object(p, item)
		if !ok {
			continue
		}
		field := models.EntityField{
			Name:        w.requiredString(f, p, "name", true),
			Type:        oneOf(w, f, p, "type", models.FieldTypes),
			Required:    w.optionalBool(f, p, "required"),
			PII:         w.optionalBool(f, p, "pii"),
			EnumOptions: w.optionalStrings(f, p, "enumOptions"),
		}
		if rawRef, present := f["ref"]; present && rawRef != nil {
			rp := join(p, "ref")
			if ref, ok := w.object(rp, rawRef); ok {
				field.Ref = &models.FieldRef{Entity: w.requiredString(ref, rp, "entity", true)}
			}
		}
		b.Fields = append(b.Fields, field)
	}
	return b
}

func (w *walker) relationship(path string, obj map[string]any, base models.Base) models.Block {
	return models.RelationshipBlock{
		Base:             base,
		FromEntity:       w.requiredString(obj, path, "fromEntity", true),
		ToEntity:         w.requiredString(obj, path, "toEntity", true),
		RelationshipType: oneOf(w, obj, path, "relationshipType", models.RelationshipTypes),
	}
}

func (w *walker) workflow(path string, obj map[string]any, base models.Base) models.Block {
	b := models.WorkflowBlock{Base: base, States: []string{}, Transitions: []models.Transition{}}
	if items, ok := w.array(obj, path, "states", 2); ok {
		for i, item := range items {
			if s, ok := w.stringItem(index(join(path, "states"), i), item); ok {
				b.States = append(b.States, s)
			}
		}
	}
	if items, ok := w.array(obj, path, "transitions", 0); ok {
		for i, item := range items {
			p := index(join(path, "transitions"), i)
			t, ok := w.object(p, item)
			if !ok {
				continue
			}
			b.Transitions = append(b.Transitions, models.Transition{
				From:  w.requiredString(t, p, "from", false),
				To:    w.requiredString(t, p, "to", false),
				Label: w.optionalString(t, p, "label"),
			})
		}
	}
	return b
}

func (w *walker) catalogItem(path string, obj map[string]any, base models.Base) models.Block {
	b := models.CatalogItemBlock{Base: base, Form: models.Form{Sections: []models.FormSection{}}}

	fp := join(path, "form")
	if form, ok := w.requiredObject(obj, path, "form"); ok {
		if sections, ok := w.array(form, fp, "sections", 0); ok {
			for i, item := range sections {
				sp := index(join(fp, "sections"), i)
				s, ok := w.object(sp, item)
				if !ok {
					continue
				}
				section := models.FormSection{
					Title:  w.requiredString(s, sp, "title", false),
					Fields: []models.FormField{},
				}
				if fields, ok := w.array(s, sp, "fields", 0); ok {
					for j, raw := range fields {
						ffp := index(join(sp, "fields"), j)
						f, ok := w.object(ffp, raw)
						if !ok {
							continue
						}
						section.Fields = append(section.Fields, models.FormField{
							Name:     w.requiredString(f, ffp, "name", true),
							Label:    w.optionalString(f, ffp, "label"),
							Type:     w.requiredString(f, ffp, "type", true),
							Required: w.optionalBool(f, ffp, "required"),
							Options:  w.optionalStrings(f, ffp, "options"),
						})
					}
				}
				b.Form.Sections = append(b.Form.Sections, section)
			}
		}
	}

	if ful, ok := w.requiredObject(obj, path, "fulfillment"); ok {
		up := join(path, "fulfillment")
		b.Fulfillment = models.Fulfillment{
			Type:        oneOf(w, ful, up, "type", models.FulfillmentTypes),
			TaskGraphID: w.optionalString(ful, up, "taskGraphId"),
		}
	}
	return b
}

func (w *walker) rule(path string, obj map[string]any, base models.Base) models.Block {
	b := models.RuleBlock{Base: base, When: []models.RuleCondition{}, Then: []models.RuleAction{}}
	if items, ok := w.array(obj, path, "when", 0); ok {
		for i, item := range items {
			p := index(join(path, "when"), i)
			c, ok := w.object(p, item)
			if !ok {
				continue
			}
			b.When = append(b.When, models.RuleCondition{
				Field:    w.requiredString(c, p, "field", true),
				Operator: oneOf(w, c, p, "operator", models.Operators),
				Value:    w.requiredString(c, p, "value", false),
			})
		}
	}
	if items, ok := w.array(obj, path, "then", 0); ok {
		for i, item := range items {
			p := index(join(path, "then"), i)
			a, ok := w.object(p, item)
			if !ok {
				continue
			}
			b.Then = append(b.Then, models.RuleAction{
				Type:  oneOf(w, a, p, "type", models.ActionTypes),
				Value: w.requiredString(a, p, "value", false),
			})
		}
	}
	return b
}

func (w *walker) adapter(path string, obj map[string]any, base models.Base) models.Block {
	b := models.AdapterBlock{
		Base:   base,
		Vendor: oneOf(w, obj, path, "vendor", models.Vendors),
		Config: map[string]string{},
	}
	cp := join(path, "config")
	if cfg, ok := w.requiredObject(obj, path, "config"); ok {
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := w.stringItem(join(cp, k), cfg[k]); ok {
				b.Config[k] = s
			}
		}
	}
	return b
}

func (w *walker) taskGraph(path string, obj map[string]any, base models.Base) models.Block {
	b := models.TaskGraphBlock{Base: base, Tasks: []models.Task{}}
	items, ok := w.array(obj, path, "tasks", 0)
	if !ok {
		return b
	}
	for i, item := range items {
		p := index(join(path, "tasks"), i)
		t, ok := w.object(p, item)
		if !ok {
			continue
		}
		b.Tasks = append(b.Tasks, models.Task{
			ID:            w.requiredString(t, p, "id", true),
			Name:          w.requiredString(t, p, "name", true),
			Type:          oneOf(w, t, p, "type", models.TaskTypes),
			AdapterID:     w.optionalString(t, p, "adapterId"),
			Action:        w.optionalString(t, p, "action"),
			ParallelGroup: w.optionalString(t, p, "parallelGroup"),
		})
	}
	return b
}

func (w *walker) security(path string, obj map[string]any, base models.Base) models.Block {
	b := models.SecurityBlock{Base: base, Visibility: []models.Visibility{}}
	items, ok := w.array(obj, path, "visibility", 0)
	if !ok {
		return b
	}
	for i, item := range items {
		p := index(join(path, "visibility"), i)
		v, ok := w.object(p, item)
		if !ok {
			continue
		}
		entry := models.Visibility{
			EntityName: w.requiredString(v, p, "entityName", true),
			Roles:      []string{},
		}
		if roles, ok := w.array(v, p, "roles", 0); ok {
			for j, r := range roles {
				if s, ok := w.stringItem(index(join(p, "roles"), j), r); ok {
					entry.Roles = append(entry.Roles, s)
				}
			}
		}
		b.Visibility = append(b.Visibility, entry)
	}
	return b
}
