package postgres

import (
	"fmt"
	"strings"
)

// sanitizeTableName accepts "table" or "schema.table" using only
// letters, digits and underscores per identifier segment. Postgres
// folds unquoted identifiers to lower case; callers that need mixed
// case or reserved words should quote the table name themselves and
// pass it through unchanged, since this guard only rejects characters
// that could break out of an interpolated identifier position.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}
