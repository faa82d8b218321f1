package paging

import (
	"context"
	"iter"

	"github.com/tidwall/gjson"
)

// DefaultPageSize is used when a Pager has no page size.
const DefaultPageSize = 100

// Fetch retrieves one page of a collection.
type Fetch func(ctx context.Context, limit, offset int) ([]byte, error)

// Pager walks a paginated collection whose pages report a total count
// and an item list at gjson paths.
type Pager struct {
	Fetch     Fetch
	TotalPath string
	ItemsPath string
	PageSize  int
	Offset    int
}

// Pages yields item pages in order. It stops after the page that reaches
// the reported total, on a short page, or after yielding an error.
func (p Pager) Pages(ctx context.Context) iter.Seq2[[]gjson.Result, error] {
	return func(yield func([]gjson.Result, error) bool) {
		size := p.PageSize
		if size <= 0 {
			size = DefaultPageSize
		}
		offset := p.Offset
		for {
			raw, err := p.Fetch(ctx, size, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			total := int(gjson.GetBytes(raw, p.TotalPath).Int())
			items := gjson.GetBytes(raw, p.ItemsPath).Array()
			if !yield(items, nil) {
				return
			}
			offset += size
			if len(items) < size || offset >= total {
				return
			}
		}
	}
}

// Collect gathers items across pages, stopping at limit items when limit is
// positive.
func (p Pager) Collect(ctx context.Context, limit int) ([]gjson.Result, error) {
	var out []gjson.Result
	for page, err := range p.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		for _, item := range page {
			out = append(out, item)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
