package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/upb/maternal-assistant/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context bound to the transaction. Repository calls
	// made with it run inside the transaction.
	Context() context.Context
}

// InteractionFilter narrows a history listing
type InteractionFilter struct {
	Operation string // empty matches every operation
	Limit     int
	Offset    int
}

// OperationCount is the number of interactions of one operation
type OperationCount struct {
	Operation string `json:"operation"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
}

// InteractionRepository handles assistant interaction history
type InteractionRepository interface {
	// Create inserts an interaction
	Create(ctx context.Context, interaction *models.AssistantInteraction) error

	// GetByID retrieves an interaction owned by userID
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.AssistantInteraction, error)

	// ListByUser retrieves a user's interactions, newest first
	ListByUser(ctx context.Context, userID string, filter InteractionFilter) ([]*models.AssistantInteraction, error)

	// CountByOperation aggregates a user's interactions per operation
	CountByOperation(ctx context.Context, userID string) ([]OperationCount, error)
}

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Repositories aggregates all repository interfaces
type Repositories struct {
	Interactions InteractionRepository
}
