package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/models"
	"github.com/upb/maternal-assistant/repositories"
	"github.com/upb/maternal-assistant/services"
)

var (
	// ErrNotStarted is returned by Record before Start or after Stop
	ErrNotStarted = errors.New("interaction recorder not running")
	// ErrBufferFull is returned when the queue cannot take another record
	ErrBufferFull = errors.New("interaction buffer full")
)

// Config holds configuration for the Service
type Config struct {
	BufferSize   int           // Size of the record queue
	WorkerCount  int           // Number of concurrent writers
	BatchSize    int           // Records written per transaction
	WriteTimeout time.Duration // Deadline of one batch write
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		BatchSize:    20,
		WriteTimeout: 5 * time.Second,
	}
}

// Option configures a Service
type Option func(*Service)

// WithDropHandler is called whenever a record is dropped
func WithDropHandler(fn func()) Option {
	return func(s *Service) {
		s.onDrop = fn
	}
}

// Service writes interaction records in the background so a slow or
// unavailable database never delays an assistant reply
type Service struct {
	repo   repositories.InteractionRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	config Config
	onDrop func()

	records chan *models.AssistantInteraction
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewService creates a new recorder. txMgr may be nil, in which case each
// record is written on its own.
func NewService(repo repositories.InteractionRepository, txMgr repositories.TransactionManager, logger *zap.Logger, config Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:    repo,
		txMgr:   txMgr,
		logger:  logger,
		config:  config,
		records: make(chan *models.AssistantInteraction, config.BufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("interaction recorder already started")
	}
	if s.stopped {
		return fmt.Errorf("interaction recorder cannot be restarted")
	}

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started interaction recorder",
		zap.Int("worker_count", s.config.WorkerCount),
		zap.Int("buffer_size", s.config.BufferSize))

	return nil
}

// Stop stops accepting records and waits for queued ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.stopped = true
	pending := len(s.records)
	close(s.records)
	s.mu.Unlock()

	s.logger.Info("stopping interaction recorder", zap.Int("pending_records", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("interaction recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("interaction recorder stop timeout after %v", timeout)
	}
}

// Record queues an interaction without blocking
func (s *Service) Record(ai *models.AssistantInteraction) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	select {
	case s.records <- ai:
		return nil
	default:
		s.logger.Warn("interaction buffer full, dropping record",
			zap.String("operation", ai.Operation),
			zap.String("request_id", ai.RequestID))
		if s.onDrop != nil {
			s.onDrop()
		}
		return ErrBufferFull
	}
}

// worker drains the queue in batches
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("interaction worker started", zap.Int("worker_id", id))

	for first := range s.records {
		batch := s.collect(first)
		if err := s.write(batch); err != nil {
			s.logger.Error("failed to write interactions",
				zap.Int("worker_id", id),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
		}
	}

	s.logger.Debug("interaction worker stopped", zap.Int("worker_id", id))
}

// collect takes whatever is already queued, up to the batch size
func (s *Service) collect(first *models.AssistantInteraction) []*models.AssistantInteraction {
	batch := []*models.AssistantInteraction{first}
	for len(batch) < s.config.BatchSize {
		select {
		case ai, ok := <-s.records:
			if !ok {
				return batch
			}
			batch = append(batch, ai)
		default:
			return batch
		}
	}
	return batch
}

func (s *Service) write(batch []*models.AssistantInteraction) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if s.txMgr == nil || len(batch) == 1 {
		var errs []error
		for _, ai := range batch {
			if err := s.repo.Create(ctx, ai); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		for _, ai := range batch {
			if err := s.repo.Create(ctx, ai); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStats returns statistics about the recorder
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:     s.config.BufferSize,
		PendingRecords: len(s.records),
		WorkerCount:    s.config.WorkerCount,
		Started:        s.started,
	}
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize     int  `json:"buffer_size"`
	PendingRecords int  `json:"pending_records"`
	WorkerCount    int  `json:"worker_count"`
	Started        bool `json:"started"`
}
