package query

import "strings"

// Operator is a comparison accepted by Where.
type Operator string

const (
	OpEq       Operator = "="
	OpGt       Operator = ">"
	OpLt       Operator = "<"
	OpGte      Operator = ">="
	OpLte      Operator = "<="
	OpNeq      Operator = "!="
	OpNeqAlias Operator = "<>"
)

// Filter key suffixes per operator. OpEq renders without a suffix.
var suffixes = map[Operator]string{
	OpEq:       "",
	OpGt:       "gt",
	OpLt:       "lt",
	OpGte:      "gte",
	OpLte:      "lte",
	OpNeq:      "neq",
	OpNeqAlias: "neq",
}

// Supported reports whether o is in the rendering table.
func (o Operator) Supported() bool {
	_, ok := suffixes[o]
	return ok
}

// Boolean connects a condition to the ones before it.
type Boolean string

const (
	And Boolean = "and"
	Or  Boolean = "or"
)

// Condition is one filter constraint. Conditions are appended in call order
// and never modified afterwards.
type Condition struct {
	Column   string
	Operator Operator
	Value    any
	Boolean  Boolean
}

// FilterKey returns the query parameter the condition renders to.
func (c Condition) FilterKey() (string, bool) {
	suffix, ok := suffixes[c.Operator]
	if !ok {
		return "", false
	}
	return filterKey(c.Column, suffix), true
}

func filterKey(column, suffix string) string {
	if suffix == "" {
		return "filter[" + column + "]"
	}
	return "filter[" + column + "_" + suffix + "]"
}

// clauseKind names the set-valued clauses kept in the keyed map.
type clauseKind string

const (
	clauseIn         clauseKind = "in"
	clauseNotIn      clauseKind = "not_in"
	clauseBetween    clauseKind = "between"
	clauseNotBetween clauseKind = "not_between"
)

// keyedClause is a set-valued filter. A later clause with the same column and
// kind replaces an earlier one.
type keyedClause struct {
	Column string
	Kind   clauseKind
	Values []any
}

func (k keyedClause) key() string {
	return filterKey(k.Column, string(k.Kind))
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection maps "desc" (any case) to Desc and everything else to Asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// Sort orders results by one column.
type Sort struct {
	Column    string
	Direction Direction
}

func (s Sort) String() string {
	if s.Direction == Desc {
		return "-" + s.Column
	}
	return s.Column
}

func renderSort(sorts []Sort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
