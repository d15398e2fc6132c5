package postgres

import "fmt"

type queries struct {
	insert           string
	selectPending    string
	selectPendingTS  string
	updateFailureOne    string
	updateQuarantineOne string
	countPending        string
}

func newQueries(table string) queries {
	cols := "id, aggregate_type, aggregate_id, event_type, payload, headers, created_at, attempt_count, last_error"
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, aggregate_type, aggregate_id, event_type, payload, headers) VALUES ($1, $2, $3, $4, $5, $6)",
		table,
	)
	selectBase := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT $2 FOR UPDATE SKIP LOCKED",
		cols,
		table,
	)
	selectWithTS := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = $1 AND created_at >= $2 ORDER BY created_at ASC, id ASC LIMIT $3 FOR UPDATE SKIP LOCKED",
		cols,
		table,
	)
	updateFailureOne := fmt.Sprintf(
		"UPDATE %s SET attempt_count = attempt_count + 1, last_error = $1, "+
			"status = CASE WHEN (attempt_count + 1) >= $2 THEN $3 ELSE $4 END "+
			"WHERE id = $5",
		table,
	)
	updateQuarantineOne := fmt.Sprintf(
		"UPDATE %s SET attempt_count = attempt_count + 1, last_error = $1, status = $2 WHERE id = $3",
		table,
	)
	countPending := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = $1", table)

	return queries{
		insert:              insert,
		selectPending:       selectBase,
		selectPendingTS:     selectWithTS,
		updateFailureOne:    updateFailureOne,
		updateQuarantineOne: updateQuarantineOne,
		countPending:        countPending,
	}
}
