package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/middleware"
	"github.com/upb/maternal-assistant/models"
	"github.com/upb/maternal-assistant/repositories"
)

// MockInteractionRepository is a mock implementation of repositories.InteractionRepository
type MockInteractionRepository struct {
	mock.Mock
}

func (m *MockInteractionRepository) Create(ctx context.Context, ai *models.AssistantInteraction) error {
	return m.Called(ctx, ai).Error(0)
}

func (m *MockInteractionRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.AssistantInteraction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssistantInteraction), args.Error(1)
}

func (m *MockInteractionRepository) ListByUser(ctx context.Context, userID string, filter repositories.InteractionFilter) ([]*models.AssistantInteraction, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AssistantInteraction), args.Error(1)
}

func (m *MockInteractionRepository) CountByOperation(ctx context.Context, userID string) ([]repositories.OperationCount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.OperationCount), args.Error(1)
}

func historyRouter(h *HistoryHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/history", h.HandleList)
	r.Get("/api/v1/history/stats", h.HandleStats)
	r.Get("/api/v1/history/{id}", h.HandleGet)
	return r
}

func serveHistory(h *HistoryHandler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.Claims{Sub: "user-1"}))
	w := httptest.NewRecorder()
	historyRouter(h).ServeHTTP(w, req)
	return w
}

func TestHistoryHandler_List(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		query          string
		filter         *repositories.InteractionFilter
		expectedStatus int
	}{
		{
			name:           "defaults",
			query:          "",
			filter:         &repositories.InteractionFilter{Limit: 20},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "operation and paging",
			query:          "?operation=nutrition&limit=5&offset=10",
			filter:         &repositories.InteractionFilter{Operation: "nutrition", Limit: 5, Offset: 10},
			expectedStatus: http.StatusOK,
		},
		{name: "limit too large", query: "?limit=1000", expectedStatus: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", expectedStatus: http.StatusBadRequest},
		{name: "unknown operation", query: "?operation=horoscope", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockInteractionRepository)
			if tt.filter != nil {
				repo.On("ListByUser", mock.Anything, "user-1", *tt.filter).
					Return([]*models.AssistantInteraction{models.NewAssistantInteraction("user-1", "", "nutrition", 10)}, nil)
			}

			w := serveHistory(NewHistoryHandler(repo, logger), "/api/v1/history"+tt.query)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.filter != nil {
				var response struct {
					Data HistoryPage `json:"data"`
				}
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Len(t, response.Data.Items, 1)
				assert.Equal(t, tt.filter.Limit, response.Data.Limit)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestHistoryHandler_ListEmpty(t *testing.T) {
	repo := new(MockInteractionRepository)
	repo.On("ListByUser", mock.Anything, "user-1", mock.Anything).Return(nil, nil)

	w := serveHistory(NewHistoryHandler(repo, zap.NewNop()), "/api/v1/history")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestHistoryHandler_Get(t *testing.T) {
	logger := zap.NewNop()
	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		repo := new(MockInteractionRepository)
		ai := models.NewAssistantInteraction("user-1", "req-1", "sleep_advice", 5)
		ai.ID = id
		repo.On("GetByID", mock.Anything, "user-1", id).Return(ai, nil)

		w := serveHistory(NewHistoryHandler(repo, logger), "/api/v1/history/"+id.String())

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), id.String())
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(MockInteractionRepository)
		repo.On("GetByID", mock.Anything, "user-1", id).Return(nil, repositories.ErrNotFound)

		w := serveHistory(NewHistoryHandler(repo, logger), "/api/v1/history/"+id.String())

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("database error", func(t *testing.T) {
		repo := new(MockInteractionRepository)
		repo.On("GetByID", mock.Anything, "user-1", id).Return(nil, errors.New("connection reset"))

		w := serveHistory(NewHistoryHandler(repo, logger), "/api/v1/history/"+id.String())

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})

	t.Run("invalid id", func(t *testing.T) {
		repo := new(MockInteractionRepository)

		w := serveHistory(NewHistoryHandler(repo, logger), "/api/v1/history/not-a-uuid")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHistoryHandler_Stats(t *testing.T) {
	repo := new(MockInteractionRepository)
	repo.On("CountByOperation", mock.Anything, "user-1").Return([]repositories.OperationCount{
		{Operation: "nutrition", Total: 4, Failed: 1},
	}, nil)

	w := serveHistory(NewHistoryHandler(repo, zap.NewNop()), "/api/v1/history/stats")

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []repositories.OperationCount `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, 4, response.Data[0].Total)
}

func TestHistoryHandler_Disabled(t *testing.T) {
	handler := NewHistoryHandler(nil, zap.NewNop())

	for _, target := range []string{"/api/v1/history", "/api/v1/history/stats", "/api/v1/history/" + uuid.NewString()} {
		w := serveHistory(handler, target)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
	}
}
