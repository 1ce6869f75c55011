package db

import "github.com/mwaldrop/lore/internal/errors"

// TypeCounts returns learning counts keyed by type.
func (u *Unit) TypeCounts() (map[string]int, error) {
	return u.countsBy(`SELECT type, COUNT(*) FROM learnings GROUP BY type`)
}

// ConfidenceCounts returns learning counts keyed by confidence.
func (u *Unit) ConfidenceCounts() (map[string]int, error) {
	return u.countsBy(`SELECT confidence, COUNT(*) FROM learnings GROUP BY confidence`)
}

// AccessedCount returns the number of learnings with at least one
// recorded access.
func (u *Unit) AccessedCount() (int, error) {
	var n int
	err := u.DB.QueryRow(
		`SELECT COUNT(*) FROM access_records WHERE access_count > 0`,
	).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// CountFTS returns the number of rows in the full-text index.
func (u *Unit) CountFTS() (int, error) {
	var n int
	if err := u.DB.QueryRow(`SELECT COUNT(*) FROM learnings_fts`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func (u *Unit) countsBy(query string) (map[string]int, error) {
	rows, err := u.DB.Query(query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
