package query

import (
	"context"
	"fmt"

	"github.com/compozy/remotequery/engine/transport"
)

// HasMany loads the related records whose foreignKey equals localValue.
func HasMany[R any](ctx context.Context, related *Builder[R], foreignKey string, localValue any) ([]R, error) {
	return related.Clone().Where(foreignKey, localValue).Get(ctx)
}

// JoinSpec describes how related records attach to their parents.
type JoinSpec[P, R any] struct {
	// LocalKey returns the parent's key value.
	LocalKey func(P) any
	// ForeignKey is the related column matched against LocalKey values.
	ForeignKey string
	// ForeignValue returns a related record's ForeignKey value.
	ForeignValue func(R) any
	// Attach stores the matched records on the parent.
	Attach func(parent *P, related []R)
}

// JoinByKey loads the related records of all parents with a single WhereIn
// and attaches them. Keys are compared by their wire form, so 7, "7" and
// json.Number("7") match.
func JoinByKey[P, R any](ctx context.Context, parents []P, related *Builder[R], spec JoinSpec[P, R]) error {
	if spec.LocalKey == nil || spec.ForeignValue == nil || spec.Attach == nil || spec.ForeignKey == "" {
		return fmt.Errorf("join on %s: incomplete join spec", related.model.Table)
	}
	if len(parents) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(parents))
	keys := make([]any, 0, len(parents))
	for _, p := range parents {
		v := spec.LocalKey(p)
		if v == nil {
			continue
		}
		k := transport.Stringify(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		return nil
	}
	rows, err := related.Clone().WhereIn(spec.ForeignKey, keys...).Get(ctx)
	if err != nil {
		return fmt.Errorf("loading %s: %w", related.model.Table, err)
	}
	grouped := make(map[string][]R, len(keys))
	for _, r := range rows {
		k := transport.Stringify(spec.ForeignValue(r))
		grouped[k] = append(grouped[k], r)
	}
	for i := range parents {
		v := spec.LocalKey(parents[i])
		if v == nil {
			continue
		}
		spec.Attach(&parents[i], grouped[transport.Stringify(v)])
	}
	return nil
}
