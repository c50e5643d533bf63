package zones

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteRepository reads zones from the heating_zones table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
// The schema comes from the embedded migrations.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListZones returns every zone ordered by sort_order, then controls.
// Rows are returned as stored; call Zone.Validate to reject bad ones.
func (r *SQLiteRepository) ListZones(ctx context.Context) ([]Zone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT controls, heating_relay, valve_relay, valve_switch
		FROM heating_zones
		ORDER BY sort_order, controls
	`)
	if err != nil {
		return nil, fmt.Errorf("querying zones: %w", err)
	}
	defer rows.Close()

	var result []Zone
	for rows.Next() {
		var z Zone
		var valveRelay, valveSwitch sql.NullString
		if err := rows.Scan(&z.Controls, &z.HeatingRelay, &valveRelay, &valveSwitch); err != nil {
			return nil, fmt.Errorf("scanning zone: %w", err)
		}
		z.ValveRelay = valveRelay.String
		z.ValveSwitch = valveSwitch.String
		result = append(result, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zones: %w", err)
	}

	return result, nil
}

// Save inserts or replaces a zone along with the relays and switch it
// references. Used for provisioning and tests.
func (r *SQLiteRepository) Save(ctx context.Context, z Zone, sortOrder int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, relay := range []string{z.HeatingRelay, z.ValveRelay} {
		if relay == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO relays (controls) VALUES (?)", relay); err != nil {
			return fmt.Errorf("inserting relay %q: %w", relay, err)
		}
	}
	if z.ValveSwitch != "" {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO switches (operatedby) VALUES (?)", z.ValveSwitch); err != nil {
			return fmt.Errorf("inserting switch %q: %w", z.ValveSwitch, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO heating_zones (controls, heating_relay, valve_relay, valve_switch, sort_order)
		VALUES (?, ?, ?, ?, ?)
	`, z.Controls, z.HeatingRelay, nullable(z.ValveRelay), nullable(z.ValveSwitch), sortOrder); err != nil {
		return fmt.Errorf("inserting zone %q: %w", z.Controls, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing zone %q: %w", z.Controls, err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
