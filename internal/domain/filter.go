package domain

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// FilterField is a filterable conference property.
type FilterField int

const (
	FieldCity FilterField = iota + 1
	FieldTopic
	FieldMonth
	FieldMaxAttendees
)

// ValueKind is the comparison type a field's value is coerced to.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
)

var filterFields = map[string]FilterField{
	"CITY":          FieldCity,
	"TOPIC":         FieldTopic,
	"MONTH":         FieldMonth,
	"MAX_ATTENDEES": FieldMaxAttendees,
}

// Property returns the stored property name of the field.
func (f FilterField) Property() string {
	switch f {
	case FieldCity:
		return "city"
	case FieldTopic:
		return "topics"
	case FieldMonth:
		return "month"
	case FieldMaxAttendees:
		return "maxAttendees"
	}
	return ""
}

// Kind is the value kind filter values on the field are coerced to.
func (f FilterField) Kind() ValueKind {
	switch f {
	case FieldMonth, FieldMaxAttendees:
		return KindInt
	}
	return KindString
}

// Operator is a comparison operator.
type Operator int

const (
	OpEQ Operator = iota + 1
	OpGT
	OpGTEQ
	OpLT
	OpLTEQ
	OpNE
)

var operators = map[string]Operator{
	"EQ":   OpEQ,
	"GT":   OpGT,
	"GTEQ": OpGTEQ,
	"LT":   OpLT,
	"LTEQ": OpLTEQ,
	"NE":   OpNE,
}

// Symbol is the comparison written as in a query, e.g. ">=".
func (o Operator) Symbol() string {
	switch o {
	case OpEQ:
		return "="
	case OpGT:
		return ">"
	case OpGTEQ:
		return ">="
	case OpLT:
		return "<"
	case OpLTEQ:
		return "<="
	case OpNE:
		return "!="
	}
	return ""
}

// Inequality reports whether the operator is anything but equality.
func (o Operator) Inequality() bool { return o != OpEQ }

func (o Operator) holds(c int) bool {
	switch o {
	case OpEQ:
		return c == 0
	case OpGT:
		return c > 0
	case OpGTEQ:
		return c >= 0
	case OpLT:
		return c < 0
	case OpLTEQ:
		return c <= 0
	case OpNE:
		return c != 0
	}
	return false
}

// RawFilter is a filter as supplied by a client.
type RawFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Filter is a validated filter. Int is set for KindInt fields, Str otherwise.
type Filter struct {
	Field    FilterField
	Operator Operator
	Str      string
	Int      int
}

// QueryPlan is an ordered, validated conference query.
type QueryPlan struct {
	Filters []Filter
	// Inequality is the single field carrying inequality filters, zero if none.
	Inequality FilterField
}

// OrderBy lists the sort properties: the inequality field first when present,
// then the conference name.
func (p QueryPlan) OrderBy() []string {
	if p.Inequality != 0 {
		return []string{p.Inequality.Property(), "name"}
	}
	return []string{"name"}
}

// TranslateFilters validates raw filters into a query plan. Fields,
// operators and the single-inequality rule are checked for every filter
// before any value is coerced, so a bad value never masks a structural error.
func TranslateFilters(raw []RawFilter) (QueryPlan, error) {
	plan := QueryPlan{Filters: make([]Filter, 0, len(raw))}
	for _, rf := range raw {
		field, ok := filterFields[strings.TrimSpace(rf.Field)]
		if !ok {
			return QueryPlan{}, Errorf(CodeInvalidFilterField, "Filter contains invalid field: %q", rf.Field)
		}
		op, ok := operators[strings.TrimSpace(rf.Operator)]
		if !ok {
			return QueryPlan{}, Errorf(CodeInvalidFilterOperator, "Filter contains invalid operator: %q", rf.Operator)
		}
		if op.Inequality() {
			if plan.Inequality != 0 && plan.Inequality != field {
				return QueryPlan{}, Errorf(CodeMultipleInequalityFields, "Inequality filter is allowed on only one field.")
			}
			plan.Inequality = field
		}
		plan.Filters = append(plan.Filters, Filter{Field: field, Operator: op})
	}
	for i := range plan.Filters {
		f := &plan.Filters[i]
		value := raw[i].Value
		if f.Field.Kind() != KindInt {
			f.Str = value
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return QueryPlan{}, Errorf(CodeInvalidFilterValue, "Filter value for %s must be an integer: %q", f.Field.Property(), value)
		}
		f.Int = n
	}
	return plan, nil
}

// Match evaluates the plan's filters against a conference. Topics is
// multi-valued and matches when any element satisfies the filter.
func (p QueryPlan) Match(c Conference) bool {
	for _, f := range p.Filters {
		if !f.match(c) {
			return false
		}
	}
	return true
}

func (f Filter) match(c Conference) bool {
	switch f.Field {
	case FieldCity:
		return f.Operator.holds(strings.Compare(c.City, f.Str))
	case FieldTopic:
		return slices.ContainsFunc(c.Topics, func(t string) bool {
			return f.Operator.holds(strings.Compare(t, f.Str))
		})
	case FieldMonth:
		return f.Operator.holds(cmp.Compare(c.Month, f.Int))
	case FieldMaxAttendees:
		return f.Operator.holds(cmp.Compare(c.MaxAttendees, f.Int))
	}
	return false
}

// Sort orders conferences as the plan requires.
func (p QueryPlan) Sort(confs []Conference) {
	slices.SortStableFunc(confs, func(a, b Conference) int {
		if p.Inequality != 0 {
			if c := compareField(p.Inequality, a, b); c != 0 {
				return c
			}
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func compareField(f FilterField, a, b Conference) int {
	switch f {
	case FieldCity:
		return strings.Compare(a.City, b.City)
	case FieldTopic:
		return slices.Compare(sortedTopics(a.Topics), sortedTopics(b.Topics))
	case FieldMonth:
		return cmp.Compare(a.Month, b.Month)
	case FieldMaxAttendees:
		return cmp.Compare(a.MaxAttendees, b.MaxAttendees)
	}
	return 0
}

func sortedTopics(t []string) []string {
	s := slices.Clone(t)
	slices.Sort(s)
	return s
}

// Apply filters and orders conferences in process.
func (p QueryPlan) Apply(confs []Conference) []Conference {
	out := make([]Conference, 0, len(confs))
	for _, c := range confs {
		if p.Match(c) {
			out = append(out, c)
		}
	}
	p.Sort(out)
	return out
}
