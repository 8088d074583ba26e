// Package seed synthesizes example records for every entity in a manifest.
// Output depends only on the manifest, the record count and the clock.
package seed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// ErrInvalidCount is returned when fewer than one record is requested.
var ErrInvalidCount = errors.New("records per entity must be a positive integer")

// DateLayout is the ISO calendar date format used for date fields.
const DateLayout = "2006-01-02"

// Generator produces seed data. Now supplies "today" for date fields.
type Generator struct {
	Now func() time.Time
}

// NewGenerator returns a Generator on the wall clock.
func NewGenerator() *Generator {
	return &Generator{Now: time.Now}
}

// Generate synthesizes n records per entity with the wall clock.
func Generate(m models.Manifest, n int) (models.SeedDataOutput, error) {
	return NewGenerator().Generate(m, n)
}

// Generate synthesizes n records for each entity block of m.
func (g *Generator) Generate(m models.Manifest, n int) (models.SeedDataOutput, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, n)
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	today := now().UTC()

	out := make(models.SeedDataOutput)
	for _, e := range m.Entities() {
		records := make([]models.SeedRecord, 0, n)
		for i := 0; i < n; i++ {
			records = append(records, record(e, i, n, today))
		}
		out[e.Name] = records
	}
	return out, nil
}

func record(e models.EntityBlock, i, n int, today time.Time) models.SeedRecord {
	rec := make(models.SeedRecord, len(e.Fields))
	for _, f := range e.Fields {
		if v, ok := value(e, f, i, n, today); ok {
			rec[f.Name] = v
		}
	}
	return rec
}

func value(e models.EntityBlock, f models.EntityField, i, n int, today time.Time) (any, bool) {
	switch f.Type {
	case models.FieldTypeString:
		name := strings.ToLower(f.Name)
		switch {
		case strings.Contains(name, "email"):
			return fmt.Sprintf("user%d@example.com", i+1), true
		case strings.Contains(name, "id"):
			return fmt.Sprintf("%s-%d", strings.ToLower(e.Name), i+1), true
		default:
			return fmt.Sprintf("%s %d", f.Name, i+1), true
		}
	case models.FieldTypeNumber:
		return (i + 1) * 100, true
	case models.FieldTypeBoolean:
		return i%2 == 0, true
	case models.FieldTypeDate:
		return today.AddDate(0, 0, i).Format(DateLayout), true
	case models.FieldTypeEnum:
		if len(f.EnumOptions) == 0 {
			return nil, false
		}
		return f.EnumOptions[i%len(f.EnumOptions)], true
	case models.FieldTypeRef:
		if f.Ref == nil {
			return nil, false
		}
		return fmt.Sprintf("%s-%d", strings.ToLower(f.Ref.Entity), (i%n)+1), true
	}
	return nil, false
}
