package query

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/compozy/remotequery/engine/transport"
)

// conditionSQL maps one condition onto a squirrel predicate.
func conditionSQL(c Condition) (squirrel.Sqlizer, error) {
	switch c.Operator {
	case OpEq:
		return squirrel.Eq{c.Column: c.Value}, nil
	case OpGt:
		return squirrel.Gt{c.Column: c.Value}, nil
	case OpLt:
		return squirrel.Lt{c.Column: c.Value}, nil
	case OpGte:
		return squirrel.GtOrEq{c.Column: c.Value}, nil
	case OpLte:
		return squirrel.LtOrEq{c.Column: c.Value}, nil
	case OpNeq, OpNeqAlias:
		return squirrel.NotEq{c.Column: c.Value}, nil
	default:
		return nil, &transport.UnsupportedOperatorError{Operator: string(c.Operator), Column: c.Column}
	}
}

func keyedSQL(k keyedClause) (squirrel.Sqlizer, error) {
	switch k.Kind {
	case clauseIn:
		return squirrel.Eq{k.Column: k.Values}, nil
	case clauseNotIn:
		return squirrel.NotEq{k.Column: k.Values}, nil
	case clauseBetween, clauseNotBetween:
		if len(k.Values) != 2 {
			return nil, fmt.Errorf("%s on %q needs exactly 2 values, got %d", k.Kind, k.Column, len(k.Values))
		}
		op := "BETWEEN"
		if k.Kind == clauseNotBetween {
			op = "NOT BETWEEN"
		}
		return squirrel.Expr(k.Column+" "+op+" ? AND ?", k.Values[0], k.Values[1]), nil
	default:
		return nil, fmt.Errorf("unknown clause %q", k.Kind)
	}
}

// predicate combines conditions with SQL precedence: each OR starts a new
// AND group, so `a AND b OR c` renders as `((a = ? AND b = ?) OR (c = ?))`.
// Keyed clauses are ANDed onto the result.
func (b *Builder[T]) predicate() (squirrel.Sqlizer, error) {
	var (
		groups  []squirrel.And
		current squirrel.And
	)
	for _, c := range b.conditions {
		pred, err := conditionSQL(c)
		if err != nil {
			if b.lenient {
				continue
			}
			return nil, err
		}
		if c.Boolean == Or && len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, pred)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	var where squirrel.And
	switch len(groups) {
	case 0:
	case 1:
		where = append(where, groups[0]...)
	default:
		or := make(squirrel.Or, len(groups))
		for i, g := range groups {
			or[i] = g
		}
		where = append(where, or)
	}
	for _, k := range b.keyed {
		pred, err := keyedSQL(k)
		if err != nil {
			return nil, err
		}
		where = append(where, pred)
	}
	switch len(where) {
	case 0:
		return nil, nil
	case 1:
		return where[0], nil
	default:
		return where, nil
	}
}

func (b *Builder[T]) selectSQL(columns ...string) (squirrel.SelectBuilder, error) {
	sb := squirrel.Select(columns...).From(b.model.Table).PlaceholderFormat(squirrel.Question)
	pred, err := b.predicate()
	if err != nil {
		return sb, err
	}
	if pred != nil {
		sb = sb.Where(pred)
	}
	return sb, nil
}

func orderBySQL(sorts []Sort) []string {
	out := make([]string, len(sorts))
	for i, s := range sorts {
		out[i] = s.Column + " " + strings.ToUpper(string(s.Direction))
	}
	return out
}

// rowsSQL renders the row query with sort and an optional limit/offset.
func (b *Builder[T]) rowsSQL(limit, offset int) (string, []any, error) {
	sb, err := b.selectSQL("*")
	if err != nil {
		return "", nil, err
	}
	if len(b.sorts) > 0 {
		sb = sb.OrderBy(orderBySQL(b.sorts)...)
	}
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}
	if offset > 0 {
		sb = sb.Offset(uint64(offset))
	}
	sql, args, err := sb.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building query: %w", err)
	}
	return sql, args, nil
}

// aggregateSQL renders `SELECT <FN>(<col>) AS <fn> FROM ...`.
func (b *Builder[T]) aggregateSQL(fn Aggregate, column string) (string, []any, error) {
	if column == "" {
		column = "*"
	}
	expr := fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(fn)), column, fn)
	sb, err := b.selectSQL(expr)
	if err != nil {
		return "", nil, err
	}
	sql, args, err := sb.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building aggregate query: %w", err)
	}
	return sql, args, nil
}

// findSQL renders the primary-key lookup on top of the current constraints.
func (b *Builder[T]) findSQL(id any) (string, []any, error) {
	sb, err := b.selectSQL("*")
	if err != nil {
		return "", nil, err
	}
	sql, args, err := sb.Where(squirrel.Eq{b.model.Key: id}).Limit(1).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building find query: %w", err)
	}
	return sql, args, nil
}
