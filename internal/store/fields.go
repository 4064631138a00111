package store

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/atlet99/requisition-sync/internal/requisition"
)

// columns is the allow-list of patchable fields: wire name to column name.
var columns = map[string]string{
	requisition.FieldTitle:           "title",
	requisition.FieldDescription:     "description",
	requisition.FieldDepartment:      "department",
	requisition.FieldLocation:        "location",
	requisition.FieldEmploymentType:  "employment_type",
	requisition.FieldStatus:          "status",
	requisition.FieldSalary:          "salary",
	requisition.FieldRequirements:    "requirements",
	requisition.FieldBenefits:        "benefits",
	requisition.FieldCustomFields:    "custom_fields",
	requisition.FieldHeadcountPlanID: "headcount_plan_id",
	requisition.FieldUpdatedAt:       "updated_at",
}

// jsonColumns hold JSON text rather than a plain string
var jsonColumns = map[string]bool{
	"salary":        true,
	"requirements":  true,
	"benefits":      true,
	"custom_fields": true,
}

// applyField sets one wire-named field on r. Values come from
// requisition.Patch.Fields or from the workflow's own field maps.
func applyField(r *requisition.Requisition, name string, value any) error {
	str := func(dst *string) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %s: expected string, got %T", name, value)
		}
		*dst = s
		return nil
	}

	switch name {
	case requisition.FieldTitle:
		return str(&r.Title)
	case requisition.FieldDescription:
		return str(&r.Description)
	case requisition.FieldDepartment:
		return str(&r.Department)
	case requisition.FieldLocation:
		return str(&r.Location)
	case requisition.FieldEmploymentType:
		return str(&r.EmploymentType)
	case requisition.FieldStatus:
		return str(&r.Status)
	case requisition.FieldHeadcountPlanID:
		return str(&r.HeadcountPlanID)
	case requisition.FieldUpdatedAt:
		return str(&r.UpdatedAt)
	case requisition.FieldSalary:
		switch s := value.(type) {
		case requisition.Salary:
			r.Salary = &s
		case *requisition.Salary:
			if s == nil {
				r.Salary = nil
				return nil
			}
			c := *s
			r.Salary = &c
		default:
			return fmt.Errorf("field %s: unexpected type %T", name, value)
		}
	case requisition.FieldRequirements, requisition.FieldBenefits:
		list, ok := value.([]string)
		if !ok {
			return fmt.Errorf("field %s: expected []string, got %T", name, value)
		}
		list = append([]string(nil), list...)
		if name == requisition.FieldRequirements {
			r.Requirements = list
		} else {
			r.Benefits = list
		}
	case requisition.FieldCustomFields:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("field %s: expected map, got %T", name, value)
		}
		r.CustomFields = maps.Clone(m)
	default:
		return fmt.Errorf("field %s cannot be updated", name)
	}
	return nil
}

// columnValue converts a field value into what the SQL column stores.
func columnValue(column string, value any) (any, error) {
	if !jsonColumns[column] {
		return value, nil
	}
	return encodeJSON(value)
}

func encodeJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *requisition.Salary:
		if v == nil {
			return nil, nil
		}
	case []string:
		if v == nil {
			return nil, nil
		}
	case map[string]any:
		if v == nil {
			return nil, nil
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column value: %w", err)
	}
	return string(data), nil
}
