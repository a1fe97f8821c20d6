package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/spanfix/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Span is one row of the spans table.
type Span struct {
	ID       int64
	ParentID *int64
	Name     string
	PID      int64
	TID      int64
	Start    float64
	End      *float64
	Duration *float64
	Args     string
}

// Store writes reconstructed spans to a SQLite database so the span tree
// can be queried with SQL.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Reset removes all stored spans.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM spans;"); err != nil {
		return fmt.Errorf("failed to reset spans: %w", err)
	}
	return nil
}

// SaveSpans pairs Begin/End events by id and writes one row per span in a
// single transaction. X events with an id are stored directly. Events
// without an id are skipped, so run reconstruction first. Returns the
// number of spans written.
func (s *Store) SaveSpans(ctx context.Context, events []model.Event) (int, error) {
	return s.writeSpans(ctx, events, false)
}

// ReplaceSpans is SaveSpans after removing every stored span, in the same
// transaction. On error the previous spans are kept.
func (s *Store) ReplaceSpans(ctx context.Context, events []model.Event) (int, error) {
	return s.writeSpans(ctx, events, true)
}

func (s *Store) writeSpans(ctx context.Context, events []model.Event, replace bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM spans;"); err != nil {
			return 0, fmt.Errorf("failed to reset spans: %w", err)
		}
	}

	spans, err := collectSpans(events)
	if err != nil {
		return 0, err
	}

	const q = `
INSERT OR REPLACE INTO spans (id, parent_id, name, pid, tid, start_us, end_us, dur_us, args)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sp := range spans {
		if _, err := stmt.ExecContext(ctx,
			sp.ID, nullInt(sp.ParentID), sp.Name, sp.PID, sp.TID,
			sp.Start, nullFloat(sp.End), nullFloat(sp.Duration), sp.Args,
		); err != nil {
			return 0, fmt.Errorf("failed to save span %d: %w", sp.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit spans: %w", err)
	}
	return len(spans), nil
}

func collectSpans(events []model.Event) ([]*Span, error) {
	byID := make(map[int64]*Span)
	var order []*Span

	for i := range events {
		ev := &events[i]
		if ev.ID == nil {
			continue
		}
		switch ev.Phase {
		case model.PhaseBegin, model.PhaseComplete:
			args, err := model.JSON.MarshalToString(ev.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to encode args of span %d: %w", *ev.ID, err)
			}
			if ev.Args == nil {
				args = "{}"
			}
			sp := &Span{
				ID:       *ev.ID,
				ParentID: ev.ParentID,
				Name:     ev.Name,
				PID:      ev.PID,
				TID:      ev.TID,
				Start:    ev.Timestamp,
				Args:     args,
			}
			if ev.Phase == model.PhaseComplete && ev.Duration != nil {
				end := ev.Timestamp + *ev.Duration
				sp.End = &end
				sp.Duration = model.Float64(*ev.Duration)
			}
			byID[sp.ID] = sp
			order = append(order, sp)

		case model.PhaseEnd:
			sp, ok := byID[*ev.ID]
			if !ok || sp.End != nil {
				continue
			}
			end := ev.Timestamp
			sp.End = &end
			sp.Duration = model.Float64(end - sp.Start)
		}
	}
	return order, nil
}

// Spans returns every stored span ordered by start time.
func (s *Store) Spans(ctx context.Context) ([]Span, error) {
	return s.query(ctx, "", nil)
}

// Children returns the direct children of a span ordered by start time.
func (s *Store) Children(ctx context.Context, parentID int64) ([]Span, error) {
	return s.query(ctx, "WHERE parent_id = ?", []any{parentID})
}

func (s *Store) query(ctx context.Context, where string, args []any) ([]Span, error) {
	q := `SELECT id, parent_id, name, pid, tid, start_us, end_us, dur_us, args FROM spans ` +
		where + ` ORDER BY start_us ASC, id ASC;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans: %w", err)
	}
	defer rows.Close()

	var out []Span
	for rows.Next() {
		var (
			sp       Span
			parentID sql.NullInt64
			end      sql.NullFloat64
			dur      sql.NullFloat64
		)
		if err := rows.Scan(&sp.ID, &parentID, &sp.Name, &sp.PID, &sp.TID, &sp.Start, &end, &dur, &sp.Args); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}
		if parentID.Valid {
			sp.ParentID = model.Int64(parentID.Int64)
		}
		if end.Valid {
			sp.End = model.Float64(end.Float64)
		}
		if dur.Valid {
			sp.Duration = model.Float64(dur.Float64)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spans: %w", err)
	}
	return out, nil
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
