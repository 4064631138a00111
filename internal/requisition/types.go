// Package requisition defines the requisition and headcount plan records shared
// by the store, the provider adapters and the sync workflow.
package requisition

import "maps"

// Salary is the optional compensation range of a requisition
type Salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// Requisition is the canonical record mirrored locally and in the ATS.
// Status is a free-form label.
type Requisition struct {
	ID              string         `json:"id,omitempty"`
	Title           string         `json:"title" validate:"required"`
	Description     string         `json:"description" validate:"required"`
	Department      string         `json:"department" validate:"required"`
	Location        string         `json:"location" validate:"required"`
	EmploymentType  string         `json:"employmentType" validate:"required"`
	Status          string         `json:"status" validate:"required"`
	Salary          *Salary        `json:"salary,omitempty" validate:"-"`
	Requirements    []string       `json:"requirements,omitempty"`
	Benefits        []string       `json:"benefits,omitempty"`
	CustomFields    map[string]any `json:"customFields,omitempty"`
	HeadcountPlanID string         `json:"headcountPlanId,omitempty"`
	CreatedAt       string         `json:"createdAt,omitempty"`
	UpdatedAt       string         `json:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r *Requisition) Clone() *Requisition {
	if r == nil {
		return nil
	}
	c := *r
	if r.Salary != nil {
		s := *r.Salary
		c.Salary = &s
	}
	if r.Requirements != nil {
		c.Requirements = append([]string(nil), r.Requirements...)
	}
	if r.Benefits != nil {
		c.Benefits = append([]string(nil), r.Benefits...)
	}
	if r.CustomFields != nil {
		c.CustomFields = maps.Clone(r.CustomFields)
	}
	return &c
}

// HeadcountPlan is the payroll-system record linked to a requisition by RequisitionID
type HeadcountPlan struct {
	ID            string         `json:"id,omitempty"`
	RequisitionID string         `json:"requisitionId"`
	Department    string         `json:"department"`
	Position      string         `json:"position"`
	StartDate     string         `json:"startDate"`
	EndDate       string         `json:"endDate,omitempty"`
	Status        string         `json:"status"`
	Headcount     int            `json:"headcount"`
	Budget        float64        `json:"budget"`
	CustomFields  map[string]any `json:"customFields,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
}

// PlanUpdate is a partial headcount plan; nil fields are left untouched.
type PlanUpdate struct {
	Department *string  `json:"department,omitempty"`
	Position   *string  `json:"position,omitempty"`
	Status     *string  `json:"status,omitempty"`
	EndDate    *string  `json:"endDate,omitempty"`
	Headcount  *int     `json:"headcount,omitempty"`
	Budget     *float64 `json:"budget,omitempty"`
}

// IsEmpty reports whether the update carries no fields
func (u PlanUpdate) IsEmpty() bool {
	return u.Department == nil && u.Position == nil && u.Status == nil &&
		u.EndDate == nil && u.Headcount == nil && u.Budget == nil
}

// ApplyTo copies the non-nil fields onto plan
func (u PlanUpdate) ApplyTo(plan *HeadcountPlan) {
	if u.Department != nil {
		plan.Department = *u.Department
	}
	if u.Position != nil {
		plan.Position = *u.Position
	}
	if u.Status != nil {
		plan.Status = *u.Status
	}
	if u.EndDate != nil {
		plan.EndDate = *u.EndDate
	}
	if u.Headcount != nil {
		plan.Headcount = *u.Headcount
	}
	if u.Budget != nil {
		plan.Budget = *u.Budget
	}
}

// Patch is a partial requisition update. Nil fields were not supplied.
// CustomFields, when supplied, replaces the whole mapping.
type Patch struct {
	Title          *string        `json:"title,omitempty" validate:"omitnil,min=1"`
	Description    *string        `json:"description,omitempty" validate:"omitnil,min=1"`
	Department     *string        `json:"department,omitempty" validate:"omitnil,min=1"`
	Location       *string        `json:"location,omitempty" validate:"omitnil,min=1"`
	EmploymentType *string        `json:"employmentType,omitempty" validate:"omitnil,min=1"`
	Status         *string        `json:"status,omitempty" validate:"omitnil,min=1"`
	Salary         *Salary        `json:"salary,omitempty" validate:"-"`
	Requirements   []string       `json:"requirements,omitempty"`
	Benefits       []string       `json:"benefits,omitempty"`
	CustomFields   map[string]any `json:"customFields,omitempty"`
}

// Field names as they appear on the wire and in the store
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldDepartment      = "department"
	FieldLocation        = "location"
	FieldEmploymentType  = "employmentType"
	FieldStatus          = "status"
	FieldSalary          = "salary"
	FieldRequirements    = "requirements"
	FieldBenefits        = "benefits"
	FieldCustomFields    = "customFields"
	FieldHeadcountPlanID = "headcountPlanId"
	FieldUpdatedAt       = "updatedAt"
)

// Fields returns only the supplied fields, keyed by wire name.
func (p *Patch) Fields() map[string]any {
	fields := make(map[string]any)
	setString := func(name string, v *string) {
		if v != nil {
			fields[name] = *v
		}
	}

	setString(FieldTitle, p.Title)
	setString(FieldDescription, p.Description)
	setString(FieldDepartment, p.Department)
	setString(FieldLocation, p.Location)
	setString(FieldEmploymentType, p.EmploymentType)
	setString(FieldStatus, p.Status)
	if p.Salary != nil {
		fields[FieldSalary] = *p.Salary
	}
	if p.Requirements != nil {
		fields[FieldRequirements] = p.Requirements
	}
	if p.Benefits != nil {
		fields[FieldBenefits] = p.Benefits
	}
	if p.CustomFields != nil {
		fields[FieldCustomFields] = p.CustomFields
	}

	return fields
}

// IsEmpty reports whether no field was supplied
func (p *Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// TouchesPlan reports whether the patch changes a field mirrored on the headcount plan.
func (p *Patch) TouchesPlan() bool {
	return p.Department != nil || p.Title != nil || p.Status != nil
}

// PlanUpdate returns the headcount plan subset of the patch. statusFor maps
// the requisition status onto the plan status.
func (p *Patch) PlanUpdate(statusFor func(string) string) PlanUpdate {
	update := PlanUpdate{
		Department: p.Department,
		Position:   p.Title,
	}
	if p.Status != nil {
		status := *p.Status
		if statusFor != nil {
			status = statusFor(status)
		}
		update.Status = &status
	}
	return update
}

// Apply merges the supplied fields onto r
func (p *Patch) Apply(r *Requisition) {
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}

	apply(&r.Title, p.Title)
	apply(&r.Description, p.Description)
	apply(&r.Department, p.Department)
	apply(&r.Location, p.Location)
	apply(&r.EmploymentType, p.EmploymentType)
	apply(&r.Status, p.Status)
	if p.Salary != nil {
		s := *p.Salary
		r.Salary = &s
	}
	if p.Requirements != nil {
		r.Requirements = append([]string(nil), p.Requirements...)
	}
	if p.Benefits != nil {
		r.Benefits = append([]string(nil), p.Benefits...)
	}
	if p.CustomFields != nil {
		r.CustomFields = maps.Clone(p.CustomFields)
	}
}
