package query

import (
	"context"
	"fmt"

	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/logger"
)

// Mode selects how a model's queries reach the remote side.
type Mode string

const (
	// ModeFilters renders REST-style filter parameters. Works over REST and gRPC.
	ModeFilters Mode = "filters"
	// ModeSQL renders parameterized SQL for transports that implement QueryRunner.
	ModeSQL Mode = "sql"
)

const (
	DefaultKey     = "id"
	DefaultPerPage = 15
)

// Model describes the remote resource a builder targets.
type Model struct {
	Table string
	// Key is the primary key column; defaults to "id".
	Key  string
	Mode Mode
	// Client pins the transport kind; empty uses the configured default.
	Client transport.Kind
}

type Option func(*options)

type options struct {
	lenient bool
}

// WithLenientOperators drops conditions with unknown operators instead of
// failing, and renders OR conditions as plain filters.
func WithLenientOperators() Option {
	return func(o *options) {
		o.lenient = true
	}
}

// Builder accumulates constraints for one model and dispatches them to a
// transport. A Builder is not safe for concurrent use.
type Builder[T any] struct {
	client     transport.Client
	model      Model
	lenient    bool
	conditions []Condition
	keyed      []keyedClause
	sorts      []Sort
	limit      int
	err        error
}

func New[T any](client transport.Client, model Model, opts ...Option) *Builder[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if model.Key == "" {
		model.Key = DefaultKey
	}
	if model.Mode == "" {
		model.Mode = ModeFilters
	}
	return &Builder[T]{client: client, model: model, lenient: o.lenient}
}

// Client returns the transport the builder dispatches to.
func (b *Builder[T]) Client() transport.Client {
	return b.client
}

func (b *Builder[T]) Model() Model {
	return b.model
}

// Err returns the first error recorded while building.
func (b *Builder[T]) Err() error {
	return b.err
}

// Clone returns an independent copy of the builder state.
func (b *Builder[T]) Clone() *Builder[T] {
	out := *b
	out.conditions = append([]Condition(nil), b.conditions...)
	out.keyed = append([]keyedClause(nil), b.keyed...)
	out.sorts = append([]Sort(nil), b.sorts...)
	return &out
}

func (b *Builder[T]) fail(err error) *Builder[T] {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Where appends a condition. Where(col, value) compares with "=";
// Where(col, op, value) uses op.
func (b *Builder[T]) Where(column string, args ...any) *Builder[T] {
	return b.addCondition(column, And, args)
}

// OrWhere appends a condition joined with OR.
func (b *Builder[T]) OrWhere(column string, args ...any) *Builder[T] {
	return b.addCondition(column, Or, args)
}

func (b *Builder[T]) addCondition(column string, boolean Boolean, args []any) *Builder[T] {
	var (
		op    Operator
		value any
	)
	switch len(args) {
	case 1:
		op, value = OpEq, args[0]
	case 2:
		switch o := args[0].(type) {
		case Operator:
			op = o
		case string:
			op = Operator(o)
		default:
			return b.fail(fmt.Errorf("where %q: operator must be a string, got %T", column, args[0]))
		}
		value = args[1]
	default:
		return b.fail(fmt.Errorf("where %q: expected 1 or 2 arguments, got %d", column, len(args)))
	}
	if !op.Supported() && !b.lenient {
		return b.fail(&transport.UnsupportedOperatorError{Operator: string(op), Column: column})
	}
	b.conditions = append(b.conditions, Condition{Column: column, Operator: op, Value: value, Boolean: boolean})
	return b
}

func (b *Builder[T]) setKeyed(column string, kind clauseKind, values []any) *Builder[T] {
	clause := keyedClause{Column: column, Kind: kind, Values: flatten(values)}
	for i := range b.keyed {
		if b.keyed[i].key() == clause.key() {
			b.keyed[i] = clause
			return b
		}
	}
	b.keyed = append(b.keyed, clause)
	return b
}

// WhereIn restricts column to values. Replaces an earlier WhereIn on column.
func (b *Builder[T]) WhereIn(column string, values ...any) *Builder[T] {
	return b.setKeyed(column, clauseIn, values)
}

func (b *Builder[T]) WhereNotIn(column string, values ...any) *Builder[T] {
	return b.setKeyed(column, clauseNotIn, values)
}

func (b *Builder[T]) WhereBetween(column string, from, to any) *Builder[T] {
	return b.setKeyed(column, clauseBetween, []any{from, to})
}

func (b *Builder[T]) WhereNotBetween(column string, from, to any) *Builder[T] {
	return b.setKeyed(column, clauseNotBetween, []any{from, to})
}

// OrderBy sorts by column. Ordering the same column again replaces its
// direction and keeps its position.
func (b *Builder[T]) OrderBy(column string, direction Direction) *Builder[T] {
	if direction != Desc {
		direction = Asc
	}
	for i := range b.sorts {
		if b.sorts[i].Column == column {
			b.sorts[i].Direction = direction
			return b
		}
	}
	b.sorts = append(b.sorts, Sort{Column: column, Direction: direction})
	return b
}

func (b *Builder[T]) OrderByDesc(column string) *Builder[T] {
	return b.OrderBy(column, Desc)
}

// Limit caps the number of rows returned by Get.
func (b *Builder[T]) Limit(n int) *Builder[T] {
	if n < 0 {
		n = 0
	}
	b.limit = n
	return b
}

// Conditions returns a copy of the appended conditions.
func (b *Builder[T]) Conditions() []Condition {
	return append([]Condition(nil), b.conditions...)
}

// Params renders the REST filter form of the current constraints.
func (b *Builder[T]) Params() (transport.Params, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.renderParams()
}

// ToSQL renders the row query of the current constraints.
func (b *Builder[T]) ToSQL() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return b.rowsSQL(b.limit, 0)
}

func (b *Builder[T]) runner() (transport.QueryRunner, error) {
	r, ok := transport.AsRunner(b.client)
	if !ok {
		return nil, fmt.Errorf("sql mode on %s: %w", b.model.Table, transport.ErrNotSupported)
	}
	return r, nil
}

func (b *Builder[T]) run(ctx context.Context, sql string, args []any) ([]transport.Record, error) {
	r, err := b.runner()
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("Running remote query", "table", b.model.Table, "sql", sql)
	return r.Run(ctx, sql, args...)
}

// Find fetches one record by primary key. A missing record yields nil, nil.
func (b *Builder[T]) Find(ctx context.Context, id any) (*T, error) {
	if b.err != nil {
		return nil, b.err
	}
	rec, err := b.findRecord(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return hydrate[T](rec)
}

func (b *Builder[T]) findRecord(ctx context.Context, id any) (transport.Record, error) {
	if b.model.Mode == ModeSQL {
		sql, args, err := b.findSQL(id)
		if err != nil {
			return nil, err
		}
		rows, err := b.run(ctx, sql, args)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows[0], nil
	}
	resp, err := b.client.Get(ctx, transport.ItemPath(b.model.Table, id), nil)
	if err != nil {
		if transport.IsNotFoundStatus(err) {
			return nil, nil
		}
		return nil, err
	}
	return transport.DecodeRecord(resp.Bytes())
}

// FindOrFail is Find with a NotFoundError for a missing record.
func (b *Builder[T]) FindOrFail(ctx context.Context, id any) (*T, error) {
	out, err := b.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &transport.NotFoundError{Resource: b.model.Table, ID: id}
	}
	return out, nil
}

// Get fetches all matching records. A response that is not an array yields
// an empty slice.
func (b *Builder[T]) Get(ctx context.Context) ([]T, error) {
	if b.err != nil {
		return nil, b.err
	}
	records, err := b.records(ctx)
	if err != nil {
		return nil, err
	}
	return hydrateAll[T](records)
}

func (b *Builder[T]) records(ctx context.Context) ([]transport.Record, error) {
	if b.model.Mode == ModeSQL {
		sql, args, err := b.rowsSQL(b.limit, 0)
		if err != nil {
			return nil, err
		}
		return b.run(ctx, sql, args)
	}
	params, err := b.renderParams()
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Get(ctx, b.model.Table, params)
	if err != nil {
		return nil, err
	}
	return resp.Records()
}

// First returns the first matching record or nil.
func (b *Builder[T]) First(ctx context.Context) (*T, error) {
	items, err := b.Clone().Limit(1).Get(ctx)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// InsertRemote creates a record and returns the remote representation.
func (b *Builder[T]) InsertRemote(ctx context.Context, attributes transport.Record) (transport.Record, error) {
	return b.client.Post(ctx, b.model.Table, attributes)
}

// UpdateRemote updates the record with the given key.
func (b *Builder[T]) UpdateRemote(ctx context.Context, id any, attributes transport.Record) (transport.Record, error) {
	return b.client.Put(ctx, transport.ItemPath(b.model.Table, id), attributes)
}

func (b *Builder[T]) DeleteRemote(ctx context.Context, id any) error {
	return b.client.Delete(ctx, transport.ItemPath(b.model.Table, id))
}
