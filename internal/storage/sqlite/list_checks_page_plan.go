package sqlite

import (
	"fmt"
	"strings"

	"github.com/releasegate/releasegate/internal/storage"
)

// escapeLikePattern neutralizes LIKE metacharacters so free-text query input
// matches literally.
func escapeLikePattern(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, "%", `\%`)
	value = strings.ReplaceAll(value, "_", `\_`)
	return value
}

type listChecksPageSQLPlan struct {
	whereClause      string
	params           []any
	orderClause      string
	limitClause      string
	countWhereClause string
	countParams      []any
}

func sortColumn(key storage.SortKey) string {
	if key == storage.SortByScheduledReleaseAt {
		return "scheduled_release_at"
	}
	return "created_at"
}

func buildListChecksPageSQLPlan(req storage.ListChecksPageRequest, pageSize int) listChecksPageSQLPlan {
	var whereClause string
	var params []any

	and := func(clause string, values ...any) {
		if whereClause != "" {
			whereClause += " AND "
		}
		whereClause += clause
		params = append(params, values...)
	}

	if req.Query != "" {
		pattern := "%" + escapeLikePattern(req.Query) + "%"
		and(`(reference LIKE ? ESCAPE '\' OR id LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if req.Status != "" {
		and("status = ?", string(req.Status))
	}

	countWhereClause := whereClause
	countParams := append([]any(nil), params...)

	column := sortColumn(req.SortKey)

	// Keyset pagination on (sort column, id) keeps pages stable while rows
	// are inserted between requests.
	if req.HasCursor {
		if req.Descending {
			and(fmt.Sprintf("(%s < ? OR (%s = ? AND id < ?))", column, column),
				req.CursorKey, req.CursorKey, req.CursorID)
		} else {
			and(fmt.Sprintf("(%s > ? OR (%s = ? AND id > ?))", column, column),
				req.CursorKey, req.CursorKey, req.CursorID)
		}
	}

	direction := "ASC"
	if req.Descending {
		direction = "DESC"
	}
	orderClause := fmt.Sprintf("ORDER BY %s %s, id %s", column, direction, direction)

	return listChecksPageSQLPlan{
		whereClause:      whereClause,
		params:           params,
		orderClause:      orderClause,
		limitClause:      fmt.Sprintf("LIMIT %d", pageSize+1),
		countWhereClause: countWhereClause,
		countParams:      countParams,
	}
}
