package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// listQuery accumulates WHERE clauses and positional args for list queries.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) where(clause string, arg any) {
	q.args = append(q.args, arg)
	fmt.Fprintf(&q.sb, " AND "+clause, len(q.args))
}

// window applies the time range of opts to col, then ordering and paging.
func (q *listQuery) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(col+" >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		q.where(col+" <= $%d", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY " + col + " DESC")
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		fmt.Fprintf(&q.sb, " LIMIT $%d", len(q.args))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		fmt.Fprintf(&q.sb, " OFFSET $%d", len(q.args))
	}
}

func (q *listQuery) String() string { return q.sb.String() }
