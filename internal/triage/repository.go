package triage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit int) ([]*Run, error)
	Save(ctx context.Context, run *Run) error
}

// MemoryRepository keeps copies of runs so callers never share state with it.
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Run
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[uuid.UUID]*Run)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context, limit int) ([]*Run, error) {
	r.mu.RLock()
	out := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Save(ctx context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.ID] = run.Clone()
	return nil
}

// sqlRepo works against postgres and sqlite; both accept $n placeholders
// and ON CONFLICT upserts.
type sqlRepo struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

const selectRun = `SELECT id, note, vitals, has_image, guard, research, doctor, created_at, updated_at FROM triage_runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                                          Run
		vitalsJSON, guardJSON, researchJSON, docJSON []byte
	)
	err := row.Scan(
		&run.ID,
		&run.Note,
		&vitalsJSON,
		&run.HasImage,
		&guardJSON,
		&researchJSON,
		&docJSON,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(vitalsJSON) > 0 {
		if err := json.Unmarshal(vitalsJSON, &run.Vitals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vitals: %w", err)
		}
	}
	if err := json.Unmarshal(guardJSON, &run.Guard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal guard state: %w", err)
	}
	if err := json.Unmarshal(researchJSON, &run.Research); err != nil {
		return nil, fmt.Errorf("failed to unmarshal researcher state: %w", err)
	}
	if err := json.Unmarshal(docJSON, &run.Doctor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal doctor state: %w", err)
	}
	return &run, nil
}

func (r *sqlRepo) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRun+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *sqlRepo) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *sqlRepo) Save(ctx context.Context, run *Run) error {
	vitalsJSON, err := json.Marshal(run.Vitals)
	if err != nil {
		return err
	}
	guardJSON, err := json.Marshal(run.Guard)
	if err != nil {
		return err
	}
	researchJSON, err := json.Marshal(run.Research)
	if err != nil {
		return err
	}
	docJSON, err := json.Marshal(run.Doctor)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triage_runs (id, note, vitals, has_image, guard, research, doctor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			guard = excluded.guard,
			research = excluded.research,
			doctor = excluded.doctor,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Note, vitalsJSON, run.HasImage, guardJSON, researchJSON, docJSON, run.CreatedAt, run.UpdatedAt)
	return err
}
