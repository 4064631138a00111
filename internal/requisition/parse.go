package requisition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/atlet99/requisition-sync/internal/errors"
)

// InvalidBodyMessage is the error message for any rejected request body
const InvalidBodyMessage = "Invalid request body"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// salaryInput keeps min and max as pointers so a zero value still counts as supplied.
type salaryInput struct {
	Min      *float64 `json:"min" validate:"required"`
	Max      *float64 `json:"max" validate:"required"`
	Currency string   `json:"currency" validate:"required"`
}

// body is a decoded JSON object plus the problems found while reading it
type body struct {
	raw      map[string]json.RawMessage
	problems []string
}

func decodeBody(data []byte) (*body, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, errors.NewValidationError(InvalidBodyMessage, "request body must be a JSON object")
	}
	return &body{raw: raw}, nil
}

// take removes key from the body and reports whether it carried a non-null value.
func (b *body) take(key string) (json.RawMessage, bool) {
	v, ok := b.raw[key]
	delete(b.raw, key)
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (b *body) str(key string) *string {
	v, ok := b.take(key)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		b.problems = append(b.problems, key+" must be a string")
		return nil
	}
	return &s
}

func (b *body) stringList(key string) []string {
	v, ok := b.take(key)
	if !ok {
		return nil
	}
	out := []string{}
	if err := json.Unmarshal(v, &out); err != nil {
		b.problems = append(b.problems, key+" must be an array of strings")
		return nil
	}
	return out
}

func (b *body) salary() *Salary {
	v, ok := b.take(FieldSalary)
	if !ok {
		return nil
	}
	var in salaryInput
	if err := json.Unmarshal(v, &in); err != nil {
		b.problems = append(b.problems, "salary must be an object with numeric min and max and a string currency")
		return nil
	}
	if err := validate.Struct(in); err != nil {
		b.problems = append(b.problems, describe(err, FieldSalary)...)
		return nil
	}
	return &Salary{Min: *in.Min, Max: *in.Max, Currency: in.Currency}
}

// explicitCustomFields reads the customFields object, if supplied.
func (b *body) explicitCustomFields() map[string]any {
	var fields map[string]any
	if v, ok := b.take(FieldCustomFields); ok {
		if err := json.Unmarshal(v, &fields); err != nil {
			b.problems = append(b.problems, "customFields must be an object")
		}
	}
	return fields
}

// customFields reads the explicit customFields object and folds every
// remaining top-level key into it.
func (b *body) customFields() map[string]any {
	fields := b.explicitCustomFields()

	for key, v := range b.raw {
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			continue
		}
		if fields == nil {
			fields = make(map[string]any)
		}
		fields[key] = value
	}
	b.raw = nil

	return fields
}

// rejectUnknown reports every key nothing has taken yet.
func (b *body) rejectUnknown() {
	for _, key := range slices.Sorted(maps.Keys(b.raw)) {
		b.problems = append(b.problems, "unknown field "+key)
	}
	b.raw = nil
}

func (b *body) err() error {
	if len(b.problems) == 0 {
		return nil
	}
	return errors.NewValidationError(InvalidBodyMessage, strings.Join(b.problems, "; "))
}

// ParseCreate validates a create payload. Required fields must be non-empty
// strings, a supplied salary needs min, max and currency, and any other field
// is passed through in CustomFields.
func ParseCreate(data []byte) (*Requisition, error) {
	b, err := decodeBody(data)
	if err != nil {
		return nil, err
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	req := &Requisition{
		Title:          deref(b.str(FieldTitle)),
		Description:    deref(b.str(FieldDescription)),
		Department:     deref(b.str(FieldDepartment)),
		Location:       deref(b.str(FieldLocation)),
		EmploymentType: deref(b.str(FieldEmploymentType)),
		Status:         deref(b.str(FieldStatus)),
	}
	req.Salary = b.salary()
	req.Requirements = b.stringList(FieldRequirements)
	req.Benefits = b.stringList(FieldBenefits)
	req.CustomFields = b.customFields()

	if err := validate.Struct(req); err != nil {
		b.problems = append(b.problems, describe(err, "")...)
	}

	if err := b.err(); err != nil {
		return nil, err
	}
	return req, nil
}

// ParsePatch validates an update payload. Every field is optional but at
// least one must be supplied. Unknown top-level keys are rejected; extra
// attributes belong in customFields.
func ParsePatch(data []byte) (*Patch, error) {
	b, err := decodeBody(data)
	if err != nil {
		return nil, err
	}

	patch := &Patch{
		Title:          b.str(FieldTitle),
		Description:    b.str(FieldDescription),
		Department:     b.str(FieldDepartment),
		Location:       b.str(FieldLocation),
		EmploymentType: b.str(FieldEmploymentType),
		Status:         b.str(FieldStatus),
	}
	patch.Salary = b.salary()
	patch.Requirements = b.stringList(FieldRequirements)
	patch.Benefits = b.stringList(FieldBenefits)
	patch.CustomFields = b.explicitCustomFields()
	b.rejectUnknown()

	if err := validate.Struct(patch); err != nil {
		b.problems = append(b.problems, describe(err, "")...)
	}

	if err := b.err(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, errors.NewValidationError(InvalidBodyMessage, "at least one field must be supplied")
	}
	return patch, nil
}

// describe turns validator errors into "field is required" style messages.
// prefix qualifies nested fields such as salary.currency.
func describe(err error, prefix string) []string {
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if prefix != "" {
			name = prefix + "." + name
		}

		switch fe.Tag() {
		case "required":
			messages = append(messages, name+" is required")
		case "min":
			messages = append(messages, name+" must not be empty")
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", name, fe.Tag()))
		}
	}
	return messages
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrs, ok := err.(validator.ValidationErrors) //nolint:errorlint // validator returns the concrete type
	if ok {
		*target = fieldErrs
	}
	return ok
}
