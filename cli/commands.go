package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compozy/remotequery/engine/query"
	"github.com/compozy/remotequery/engine/remote"
	"github.com/compozy/remotequery/engine/transport"
)

type recordBuilder = query.Builder[transport.Record]

// whereOperators is ordered so two-character operators match first.
var whereOperators = []string{">=", "<=", "!=", "<>", ">", "<", "="}

// parseWhere splits "column<op>value", e.g. "age>=18" or "status=active".
func parseWhere(expr string) (column, op string, value any, err error) {
	idx := strings.IndexAny(expr, "=<>!")
	if idx <= 0 {
		return "", "", nil, fmt.Errorf("invalid where %q: expected column<op>value", expr)
	}
	column, rest := expr[:idx], expr[idx:]
	for _, candidate := range whereOperators {
		if strings.HasPrefix(rest, candidate) {
			return column, candidate, decodeValue(rest[len(candidate):]), nil
		}
	}
	return "", "", nil, fmt.Errorf("invalid where %q: unknown operator", expr)
}

// parseAssignment splits "column=value".
func parseAssignment(expr string) (string, any, error) {
	column, raw, ok := strings.Cut(expr, "=")
	if !ok || column == "" {
		return "", nil, fmt.Errorf("invalid assignment %q: expected column=value", expr)
	}
	return column, decodeValue(raw), nil
}

// decodeValue reads JSON literals (numbers, booleans, null, arrays) and
// keeps anything else as a plain string.
func decodeValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	if _, ok := v.(map[string]any); ok {
		return raw
	}
	return v
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("where", "w", nil, "Condition as column<op>value, repeatable")
	cmd.Flags().StringArray("or-where", nil, "Condition joined with OR, repeatable")
	cmd.Flags().StringArray("where-in", nil, "Membership as column=v1,v2, repeatable")
	cmd.Flags().StringArray("where-not-in", nil, "Exclusion as column=v1,v2, repeatable")
	cmd.Flags().Bool("sql", false, "Send the query as SQL through the transport's query runner")
	cmd.Flags().Bool("lenient", false, "Drop conditions with unsupported operators")
	cmd.Flags().String("table-client", "", "Pin the transport for this resource: rest or grpc")
}

func newBuilder(cmd *cobra.Command, m *remote.Manager, table string) (*recordBuilder, error) {
	model := query.Model{Table: table}
	if useSQL, _ := cmd.Flags().GetBool("sql"); useSQL {
		model.Mode = query.ModeSQL
	}
	if kind, _ := cmd.Flags().GetString("table-client"); kind != "" {
		model.Client = transport.Kind(kind)
	}
	var opts []query.Option
	if lenient, _ := cmd.Flags().GetBool("lenient"); lenient {
		opts = append(opts, query.WithLenientOperators())
	}
	return remote.Query[transport.Record](m, model, opts...)
}

func applyFilters(cmd *cobra.Command, b *recordBuilder) error {
	clauses := []struct {
		flag string
		fn   func(string, ...any) *recordBuilder
	}{
		{"where", b.Where},
		{"or-where", b.OrWhere},
	}
	for _, clause := range clauses {
		exprs, _ := cmd.Flags().GetStringArray(clause.flag)
		for _, expr := range exprs {
			column, op, value, err := parseWhere(expr)
			if err != nil {
				return err
			}
			clause.fn(column, op, value)
		}
	}
	sets := []struct {
		flag string
		fn   func(string, ...any) *recordBuilder
	}{
		{"where-in", b.WhereIn},
		{"where-not-in", b.WhereNotIn},
	}
	for _, set := range sets {
		flag, fn := set.flag, set.fn
		exprs, _ := cmd.Flags().GetStringArray(flag)
		for _, expr := range exprs {
			column, raw, ok := strings.Cut(expr, "=")
			if !ok || column == "" {
				return fmt.Errorf("invalid --%s %q: expected column=v1,v2", flag, expr)
			}
			var values []any
			for _, v := range strings.Split(raw, ",") {
				values = append(values, decodeValue(v))
			}
			fn(column, values...)
		}
	}
	return b.Err()
}

func attributesFromFlags(cmd *cobra.Command) (transport.Record, error) {
	sets, _ := cmd.Flags().GetStringArray("set")
	if len(sets) == 0 {
		return nil, fmt.Errorf("at least one --set column=value is required")
	}
	attrs := transport.Record{}
	for _, expr := range sets {
		column, value, err := parseAssignment(expr)
		if err != nil {
			return nil, err
		}
		attrs[column] = value
	}
	return attrs, nil
}

func GetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <resource>",
		Short: "List records of a remote resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(ctx context.Context, m *remote.Manager) error {
				b, err := newBuilder(cmd, m, args[0])
				if err != nil {
					return err
				}
				if err := applyFilters(cmd, b); err != nil {
					return err
				}
				sorts, _ := cmd.Flags().GetStringSlice("sort")
				for _, s := range sorts {
					if col, ok := strings.CutPrefix(s, "-"); ok {
						b.OrderByDesc(col)
						continue
					}
					b.OrderBy(s, query.Asc)
				}
				if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
					b.Limit(limit)
				}
				if cmd.Flags().Changed("page") || cmd.Flags().Changed("per-page") {
					page, _ := cmd.Flags().GetInt("page")
					perPage, _ := cmd.Flags().GetInt("per-page")
					result, err := b.Paginate(ctx, perPage, page)
					if err != nil {
						return err
					}
					return writeJSON(cmd, result)
				}
				records, err := b.Get(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd, records)
			})
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().StringSlice("sort", nil, "Sort columns, prefix with - for descending")
	cmd.Flags().Int("limit", 0, "Maximum number of records")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("per-page", query.DefaultPerPage, "Records per page")
	return cmd
}

func FindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <resource> <id>",
		Short: "Fetch one record by primary key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(ctx context.Context, m *remote.Manager) error {
				b, err := newBuilder(cmd, m, args[0])
				if err != nil {
					return err
				}
				if err := applyFilters(cmd, b); err != nil {
					return err
				}
				record, err := b.FindOrFail(ctx, decodeValue(args[1]))
				if err != nil {
					return err
				}
				return writeJSON(cmd, record)
			})
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func AggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate <count|sum|avg> <resource> [column]",
		Short: "Compute a remote aggregate",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, ok := query.ParseAggregate(args[0])
			if !ok {
				return fmt.Errorf("unknown aggregate %q", args[0])
			}
			var column string
			if len(args) == 3 {
				column = args[2]
			}
			if fn != query.AggCount && column == "" {
				return fmt.Errorf("%s requires a column", fn)
			}
			return withManager(cmd, func(ctx context.Context, m *remote.Manager) error {
				b, err := newBuilder(cmd, m, args[1])
				if err != nil {
					return err
				}
				if err := applyFilters(cmd, b); err != nil {
					return err
				}
				value, err := b.Aggregate(ctx, fn, column)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]int64{string(fn): value})
			})
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func CreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a remote record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := attributesFromFlags(cmd)
			if err != nil {
				return err
			}
			return withManager(cmd, func(ctx context.Context, m *remote.Manager) error {
				b, err := newBuilder(cmd, m, args[0])
				if err != nil {
					return err
				}
				created, err := b.InsertRemote(ctx, attrs)
				if err != nil {
					return err
				}
				return writeJSON(cmd, created)
			})
		},
	}
	cmd.Flags().StringArray("set", nil, "Attribute as column=value, repeatable")
	cmd.Flags().String("table-client", "", "Pin the transport for this resource: rest or grpc")
	return cmd
}

func UpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <resource> <id>",
		Short: "Update a remote record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := attributesFromFlags(cmd)
			if err != nil {
				return err
			}
			return withManager(cmd, func(ctx context.Context, m *remote.Manager) error {
				b, err := newBuilder(cmd, m, args[0])
				if err != nil {
					return err
				}
				updated, err := b.UpdateRemote(ctx, decodeValue(args[1]), attrs)
				if err != nil {
					return err
				}
				return writeJSON(cmd, updated)
			})
		},
	}
	cmd.Flags().StringArray("set", nil, "Attribute as column=value, repeatable")
	cmd.Flags().String("table-client", "", "Pin the transport for this resource: rest or grpc")
	return cmd
}

func DeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a remote record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(ctx context.Context, m *remote.Manager) error {
				b, err := newBuilder(cmd, m, args[0])
				if err != nil {
					return err
				}
				if err := b.DeleteRemote(ctx, decodeValue(args[1])); err != nil {
					return err
				}
				return writeJSON(cmd, map[string]bool{"deleted": true})
			})
		},
	}
	cmd.Flags().String("table-client", "", "Pin the transport for this resource: rest or grpc")
	return cmd
}
