package rollup

import (
	"affrollup/internal/domain"
)

// Query describes one recomputation: how to bucket, how to order and which page to cut.
type Query struct {
	KeyFn     KeyFunc
	Column    Column
	Direction domain.SortDirection
	Page      int
	PageSize  int
	// Workers > 1 shards the aggregation; the output does not change.
	Workers int
}

// Run aggregates, derives, sorts and paginates in one call. Identical inputs give identical pages.
func Run(records []domain.TransactionRecord, q Query, p Policy) (Page, error) {
	var r *Rollup
	if q.Workers > 1 {
		r = AggregateSharded(records, q.KeyFn, q.Workers)
	} else {
		r = Aggregate(records, q.KeyFn)
	}

	ordered, err := Sort(Rows(r.Metrics(), p), q.Column, q.Direction)
	if err != nil {
		return Page{}, err
	}
	return Paginate(ordered, q.Page, q.PageSize, p), nil
}
