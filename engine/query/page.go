package query

import (
	"context"
	"fmt"
)

// Page is one page of results.
type Page[T any] struct {
	Items       []T   `json:"data"`
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
}

// LastPage is the number of the last page, at least 1.
func (p *Page[T]) LastPage() int {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 1
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

func (p *Page[T]) HasMorePages() bool {
	return p.CurrentPage < p.LastPage()
}

// Paginate fetches one page. perPage and page below 1 fall back to 15 and 1.
// The filter form expects a {data, total} body; a bare array is taken as a
// page whose total is its length.
func (b *Builder[T]) Paginate(ctx context.Context, perPage, page int) (*Page[T], error) {
	if b.err != nil {
		return nil, b.err
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	out := &Page[T]{PerPage: perPage, CurrentPage: page}
	if b.model.Mode == ModeSQL {
		return b.paginateSQL(ctx, out)
	}
	params, err := b.renderParams()
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Get(ctx, b.model.Table, withPage(params, perPage, page))
	if err != nil {
		return nil, err
	}
	if resp.IsArray() {
		records, err := resp.Records()
		if err != nil {
			return nil, err
		}
		if out.Items, err = hydrateAll[T](records); err != nil {
			return nil, err
		}
		out.Total = int64(len(out.Items))
		return out, nil
	}
	records, err := resp.RecordsAt("data")
	if err != nil {
		return nil, err
	}
	if out.Items, err = hydrateAll[T](records); err != nil {
		return nil, err
	}
	out.Total = resultInt(resp.Get("total"))
	return out, nil
}

func (b *Builder[T]) paginateSQL(ctx context.Context, out *Page[T]) (*Page[T], error) {
	sql, args, err := b.rowsSQL(out.PerPage, (out.CurrentPage-1)*out.PerPage)
	if err != nil {
		return nil, err
	}
	rows, err := b.run(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if out.Items, err = hydrateAll[T](rows); err != nil {
		return nil, err
	}
	if out.Total, err = b.Aggregate(ctx, AggCount, ""); err != nil {
		return nil, fmt.Errorf("counting %s: %w", b.model.Table, err)
	}
	return out, nil
}
