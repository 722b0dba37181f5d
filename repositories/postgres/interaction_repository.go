package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/models"
	"github.com/upb/maternal-assistant/repositories"
)

const interactionColumns = `id, user_id, request_id, operation, status, provider, model,
	input_length, output_length, prompt_tokens, completion_tokens, total_tokens,
	latency_ms, degraded, error_type, error_message, created_at`

// maximum page size for history listings
const maxListLimit = 100

// InteractionRepository implements the repositories.InteractionRepository interface
type InteractionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db *DB, logger *zap.Logger) repositories.InteractionRepository {
	return &InteractionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an interaction
func (r *InteractionRepository) Create(ctx context.Context, ai *models.AssistantInteraction) error {
	query := `
		INSERT INTO assistant_interactions (` + interactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	q := conn(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		ai.ID,
		ai.UserID,
		ai.RequestID,
		ai.Operation,
		ai.Status,
		ai.Provider,
		ai.Model,
		ai.InputLength,
		ai.OutputLength,
		ai.PromptTokens,
		ai.CompletionTokens,
		ai.TotalTokens,
		ai.LatencyMs,
		ai.Degraded,
		ai.ErrorType,
		ai.ErrorMessage,
		ai.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}

	r.logger.Debug("interaction created",
		zap.String("id", ai.ID.String()),
		zap.String("request_id", ai.RequestID))
	return nil
}

// GetByID retrieves an interaction owned by userID
func (r *InteractionRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.AssistantInteraction, error) {
	query := `SELECT ` + interactionColumns + `
		FROM assistant_interactions
		WHERE id = $1 AND user_id = $2
	`

	q := conn(ctx, r.db)
	ai, err := scanInteraction(q.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("interaction %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}
	return ai, nil
}

// ListByUser retrieves a user's interactions, newest first
func (r *InteractionRepository) ListByUser(ctx context.Context, userID string, filter repositories.InteractionFilter) ([]*models.AssistantInteraction, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + interactionColumns + `
		FROM assistant_interactions
		WHERE user_id = $1 AND ($2 = '' OR operation = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	q := conn(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, userID, filter.Operation, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*models.AssistantInteraction
	for rows.Next() {
		ai, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, ai)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interaction rows: %w", err)
	}

	return interactions, nil
}

// CountByOperation aggregates a user's interactions per operation
func (r *InteractionRepository) CountByOperation(ctx context.Context, userID string) ([]repositories.OperationCount, error) {
	query := `
		SELECT operation,
		       COUNT(*) AS total,
		       COUNT(CASE WHEN status <> 'completed' THEN 1 END) AS failed
		FROM assistant_interactions
		WHERE user_id = $1
		GROUP BY operation
		ORDER BY operation
	`

	q := conn(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}
	defer rows.Close()

	var counts []repositories.OperationCount
	for rows.Next() {
		var c repositories.OperationCount
		if err := rows.Scan(&c.Operation, &c.Total, &c.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan operation count: %w", err)
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation counts: %w", err)
	}

	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInteraction(row rowScanner) (*models.AssistantInteraction, error) {
	ai := &models.AssistantInteraction{}
	err := row.Scan(
		&ai.ID,
		&ai.UserID,
		&ai.RequestID,
		&ai.Operation,
		&ai.Status,
		&ai.Provider,
		&ai.Model,
		&ai.InputLength,
		&ai.OutputLength,
		&ai.PromptTokens,
		&ai.CompletionTokens,
		&ai.TotalTokens,
		&ai.LatencyMs,
		&ai.Degraded,
		&ai.ErrorType,
		&ai.ErrorMessage,
		&ai.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ai, nil
}
