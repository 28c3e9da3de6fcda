package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[uuid.UUID]*Session)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) Save(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s.Clone()
	return nil
}

type sqlRepo struct {
	db *sql.DB
}

// NewSQLRepository stores sessions in the chat_sessions table of either
// postgres or sqlite.
func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT id, persona, messages, created_at, updated_at FROM chat_sessions WHERE id = $1`

	var (
		s            Session
		messagesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.Persona,
		&messagesJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &s.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}
	return &s, nil
}

func (r *sqlRepo) Save(ctx context.Context, s *Session) error {
	messagesJSON, err := json.Marshal(s.Messages)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO chat_sessions (id, persona, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, s.ID, s.Persona, messagesJSON, s.CreatedAt, s.UpdatedAt)
	return err
}
