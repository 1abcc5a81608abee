package repository // repository defines data access for seat state

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives

	"github.com/iliyamo/seat-tracker/internal/model"
)

// mysqlTimeLayout formats break_until for DATETIME(3) columns (UTC).
const mysqlTimeLayout = "2006-01-02 15:04:05.000"

// MySQLSeatRepo persists the seat mapping in the seat_states table.  Each
// Save replaces every row inside one transaction so readers never observe
// a partially written mapping.
type MySQLSeatRepo struct {
	db *sql.DB
}

// NewMySQLSeatRepo constructs a MySQLSeatRepo with the given DB handle.
func NewMySQLSeatRepo(db *sql.DB) *MySQLSeatRepo {
	return &MySQLSeatRepo{db: db}
}

// EnsureSchema creates the seat_states table when it does not exist.
func (r *MySQLSeatRepo) EnsureSchema(ctx context.Context) error {
	const q = `CREATE TABLE IF NOT EXISTS seat_states (
	             seat_id     VARCHAR(64) NOT NULL PRIMARY KEY,
	             status      VARCHAR(16) NOT NULL,
	             occupant    VARCHAR(128) NULL,
	             break_until DATETIME(3) NULL,
	             updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	           )`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// Load reads every seat row.  It returns ErrNoSeatState when the table is empty.
func (r *MySQLSeatRepo) Load(ctx context.Context) (model.Mapping, error) {
	const q = `SELECT seat_id, status, occupant, break_until
	           FROM seat_states
	           ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := model.Mapping{}
	for rows.Next() {
		var (
			s          model.Seat
			status     string
			occupant   sql.NullString
			breakUntil sql.NullTime
		)
		if err := rows.Scan(&s.ID, &status, &occupant, &breakUntil); err != nil {
			return nil, err
		}
		s.State = model.State(status)
		if occupant.Valid {
			s.Occupant = occupant.String
		}
		if breakUntil.Valid {
			t := breakUntil.Time.UTC()
			s.BreakUntil = &t
		}
		m[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNoSeatState
	}
	return m, nil
}

// Save replaces the stored mapping with m in a single transaction.
func (r *MySQLSeatRepo) Save(ctx context.Context, m model.Mapping) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seat_states`); err != nil {
		return err
	}
	if len(m) > 0 {
		query := `INSERT INTO seat_states (seat_id, status, occupant, break_until) VALUES `
		args := make([]interface{}, 0, len(m)*4)
		for i, id := range m.IDs() {
			s := m[id]
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?)"
			var occupant, breakUntil interface{}
			if s.Occupant != "" {
				occupant = s.Occupant
			}
			if s.BreakUntil != nil {
				breakUntil = s.BreakUntil.UTC().Format(mysqlTimeLayout)
			}
			args = append(args, id, string(s.State), occupant, breakUntil)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
