package query

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/compozy/remotequery/engine/transport"
)

// Aggregate is a remote aggregate function.
type Aggregate string

const (
	AggCount Aggregate = "count"
	AggSum   Aggregate = "sum"
	AggAvg   Aggregate = "avg"
)

// ParseAggregate validates an aggregate name.
func ParseAggregate(s string) (Aggregate, bool) {
	switch a := Aggregate(s); a {
	case AggCount, AggSum, AggAvg:
		return a, true
	default:
		return "", false
	}
}

func (b *Builder[T]) Count(ctx context.Context) (int64, error) {
	return b.Aggregate(ctx, AggCount, "")
}

func (b *Builder[T]) Sum(ctx context.Context, column string) (int64, error) {
	return b.Aggregate(ctx, AggSum, column)
}

func (b *Builder[T]) Avg(ctx context.Context, column string) (int64, error) {
	return b.Aggregate(ctx, AggAvg, column)
}

// Aggregate computes fn over column for the matching records. The result is
// truncated to an integer; a missing or null value yields 0.
func (b *Builder[T]) Aggregate(ctx context.Context, fn Aggregate, column string) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.model.Mode == ModeSQL {
		sql, args, err := b.aggregateSQL(fn, column)
		if err != nil {
			return 0, err
		}
		rows, err := b.run(ctx, sql, args)
		if err != nil || len(rows) == 0 {
			return 0, err
		}
		return toInt(rows[0][string(fn)]), nil
	}
	params, err := b.renderParams()
	if err != nil {
		return 0, err
	}
	delete(params, ParamPerPage)
	params[ParamAggregate] = string(fn)
	if column != "" {
		params[ParamColumn] = column
	}
	resp, err := b.client.Get(ctx, b.model.Table, params)
	if err != nil {
		return 0, err
	}
	path := string(fn)
	if resp.IsArray() {
		path = "0." + path
	}
	return resultInt(resp.Get(path)), nil
}

func resultInt(res gjson.Result) int64 {
	switch res.Type {
	case gjson.Number:
		return decimalInt(res.Raw)
	case gjson.String:
		return decimalInt(res.Str)
	case gjson.True:
		return 1
	default:
		return 0
	}
}

func toInt(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case json.Number:
		return decimalInt(t.String())
	default:
		return decimalInt(transport.Stringify(v))
	}
}

// decimalInt parses s and truncates toward zero; unparsable input is 0.
func decimalInt(s string) int64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}
