package query

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/compozy/remotequery/engine/transport"
)

// Reserved parameter names.
const (
	ParamSort      = "sort"
	ParamPage      = "page"
	ParamPerPage   = "per_page"
	ParamAggregate = "aggregate"
	ParamColumn    = "column"
)

// formatValue renders lists comma-joined and scalars unchanged.
func formatValue(v any) string {
	rv := reflect.ValueOf(v)
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = transport.Stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	return transport.Stringify(v)
}

// flatten expands a single slice argument so WhereIn("id", ids) and
// WhereIn("id", 1, 2, 3) are equivalent.
func flatten(values []any) []any {
	if len(values) != 1 {
		return values
	}
	rv := reflect.ValueOf(values[0])
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return values
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// renderParams builds the REST filter form. Conditions that share a key
// collapse to the last one; keyed clauses then sort follow.
func (b *Builder[T]) renderParams() (transport.Params, error) {
	params := transport.Params{}
	for _, c := range b.conditions {
		key, ok := c.FilterKey()
		if !ok {
			// only reachable in lenient mode
			continue
		}
		if c.Boolean == Or && !b.lenient {
			return nil, &transport.UnsupportedOperatorError{Operator: string(Or), Column: c.Column}
		}
		params[key] = formatValue(c.Value)
	}
	for _, k := range b.keyed {
		params[k.key()] = formatValue(k.Values)
	}
	if len(b.sorts) > 0 {
		params[ParamSort] = renderSort(b.sorts)
	}
	if b.limit > 0 {
		params[ParamPerPage] = strconv.Itoa(b.limit)
	}
	return params, nil
}

func withPage(params transport.Params, perPage, page int) transport.Params {
	out := params.Clone()
	out[ParamPage] = strconv.Itoa(page)
	out[ParamPerPage] = strconv.Itoa(perPage)
	return out
}
