package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pagedQuery describes the two-statement pattern behind paginated
// listings: COUNT(*) over the filtered set, then the data query with
// ORDER BY and LIMIT/OFFSET appended. Both statements share the same
// FROM/WHERE text and placeholder arguments.
type pagedQuery struct {
	selectColumns string
	baseQuery     string
	whereClause   string
	orderBy       string
	args          []interface{}
	limit         int
	offset        int
}

// run executes the count query, then the data query unless the offset
// already lies past the counted total. Nil rows with a nil error means
// the requested page is empty; callers must close non-nil rows.
func (q pagedQuery) run(ctx context.Context, qi QueryInterface) (int, pgx.Rows, error) {
	var total int
	countQuery := "SELECT COUNT(*) " + q.baseQuery + q.whereClause
	if err := qi.QueryRow(ctx, countQuery, q.args...).Scan(&total); err != nil {
		return 0, nil, WrapError(err, "count query")
	}

	if q.offset >= total {
		return total, nil, nil
	}

	dataQuery := fmt.Sprintf("%s %s%s %s LIMIT %d OFFSET %d",
		q.selectColumns, q.baseQuery, q.whereClause, q.orderBy, q.limit, q.offset)
	rows, err := qi.Query(ctx, dataQuery, q.args...)
	if err != nil {
		return 0, nil, WrapError(err, "data query")
	}

	return total, rows, nil
}
