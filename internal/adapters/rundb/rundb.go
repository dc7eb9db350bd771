// Package rundb persists a per-run summary row to a local sqlite database
// (mattn/go-sqlite3, no ORM). This is a supplemented feature (SPEC_FULL.md
// "Supplemented features"): a history of past runs the reference tool
// never kept, kept deliberately separate from the spec's own line-oriented
// SSID/IP maps and truncate-rewrite snapshot logs — this is metadata about
// runs, not live tracker state.
package rundb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the run-history table.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	interface TEXT NOT NULL,
	networks_seen INTEGER NOT NULL DEFAULT 0,
	packets_seen INTEGER NOT NULL DEFAULT 0,
	dropped_packets INTEGER NOT NULL DEFAULT 0,
	exit_reason TEXT
);`

// Open creates/migrates the sqlite file at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("rundb: open %s: %w", path, err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rundb: migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Run is one row of run-history.
type Run struct {
	ID             int64
	StartedAt      time.Time
	EndedAt        time.Time
	Interface      string
	NetworksSeen   int
	PacketsSeen    int
	DroppedPackets int
	ExitReason     string
}

// StartRun inserts a new row and returns its id, to be completed by
// FinishRun once the shutdown coordinator has flushed everything else.
func (d *DB) StartRun(iface string, startedAt time.Time) (int64, error) {
	res, err := d.conn.Exec(`INSERT INTO runs (started_at, interface) VALUES (?, ?)`,
		startedAt.Unix(), iface)
	if err != nil {
		return 0, fmt.Errorf("rundb: insert run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun records the final counters for a run (§4.6 step 8 territory:
// called only after every other shutdown step has completed, so the
// counters it records are final).
func (d *DB) FinishRun(id int64, endedAt time.Time, networksSeen, packetsSeen, dropped int, exitReason string) error {
	_, err := d.conn.Exec(
		`UPDATE runs SET ended_at=?, networks_seen=?, packets_seen=?, dropped_packets=?, exit_reason=? WHERE id=?`,
		endedAt.Unix(), networksSeen, packetsSeen, dropped, exitReason, id)
	if err != nil {
		return fmt.Errorf("rundb: finish run %d: %w", id, err)
	}
	return nil
}

// Recent returns the most recent limit runs, newest first.
func (d *DB) Recent(limit int) ([]Run, error) {
	rows, err := d.conn.Query(
		`SELECT id, started_at, ended_at, interface, networks_seen, packets_seen, dropped_packets, exit_reason
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("rundb: query recent: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedUnix int64
		var endedUnix sql.NullInt64
		var exitReason sql.NullString
		if err := rows.Scan(&r.ID, &startedUnix, &endedUnix, &r.Interface, &r.NetworksSeen, &r.PacketsSeen, &r.DroppedPackets, &exitReason); err != nil {
			return nil, fmt.Errorf("rundb: scan run: %w", err)
		}
		r.StartedAt = time.Unix(startedUnix, 0)
		if endedUnix.Valid {
			r.EndedAt = time.Unix(endedUnix.Int64, 0)
		}
		r.ExitReason = exitReason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) Close() error { return d.conn.Close() }
