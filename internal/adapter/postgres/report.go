package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// RideCount is the number of trips started in one year by one rider category.
type RideCount struct {
	Year         int
	MemberCasual string
	Rides        int64
}

const yearlyRideCountsQuery = `SELECT
    EXTRACT(YEAR FROM started_at)::int AS year,
    member_casual,
    COUNT(*) AS rides
FROM rides_raw
WHERE started_at IS NOT NULL
GROUP BY year, member_casual
ORDER BY year, member_casual`

// YearlyRideCounts totals trips per year and rider category. Trips with no
// category are reported under an empty MemberCasual.
func (d *DB) YearlyRideCounts(ctx context.Context) ([]RideCount, error) {
	rows, err := d.q.QueryContext(ctx, yearlyRideCountsQuery)
	if err != nil {
		return nil, fmt.Errorf("query yearly ride counts: %w", err)
	}
	defer rows.Close()

	var counts []RideCount
	for rows.Next() {
		var (
			rc     RideCount
			member sql.NullString
		)
		if err := rows.Scan(&rc.Year, &member, &rc.Rides); err != nil {
			return nil, fmt.Errorf("scan ride count: %w", err)
		}
		rc.MemberCasual = member.String
		counts = append(counts, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ride counts: %w", err)
	}
	return counts, nil
}
