package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/estimator"
	"storflow/internal/models"
	"storflow/internal/orchestrator"
)

// ==================== Stubs ====================

type stubEstimates struct {
	lastParams estimator.EstimateParams
}

func (s *stubEstimates) GetCostEstimate(ctx context.Context, params estimator.EstimateParams) (*models.CostEstimate, error) {
	s.lastParams = params
	if _, ok := map[string]bool{"1": true, "8453": true}[params.SourceChain]; !ok {
		return nil, fmt.Errorf("unsupported source chain %s", params.SourceChain)
	}
	return &models.CostEstimate{
		TotalUSD:     decimal.RequireFromString("12.5"),
		WithinBudget: true,
	}, nil
}

type stubOperations struct {
	ops     map[string]*models.StorageOperation
	lastReq orchestrator.StoreRequest
}

func newStubOperations() *stubOperations {
	return &stubOperations{ops: make(map[string]*models.StorageOperation)}
}

func (s *stubOperations) StartStore(ctx context.Context, req orchestrator.StoreRequest) (*models.StorageOperation, error) {
	s.lastReq = req
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("payload must not be empty")
	}
	op := &models.StorageOperation{
		ID:          "op-1",
		Status:      models.OperationStatusQuoting,
		SourceChain: req.SourceChain,
		CreatedAt:   time.Now(),
	}
	s.ops[op.ID] = op
	return op, nil
}

func (s *stubOperations) GetOperation(ctx context.Context, id string) (*models.StorageOperation, error) {
	op, ok := s.ops[id]
	if !ok {
		return nil, orchestrator.ErrOperationNotFound
	}
	return op, nil
}

func (s *stubOperations) GetAllOperations(ctx context.Context) ([]*models.StorageOperation, error) {
	out := make([]*models.StorageOperation, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	return out, nil
}

// ==================== Tests ====================

func TestHandleHealth(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(nil, nil, "simulation", logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}

	if response.Mode != "simulation" {
		t.Errorf("expected mode 'simulation', got '%s'", response.Mode)
	}
}

func TestHandleEstimate(t *testing.T) {
	logger := zap.NewNop()
	budget := "2.5"

	tests := []struct {
		name           string
		request        EstimateRequest
		expectedStatus int
		expectError    bool
	}{
		{
			name: "valid request",
			request: EstimateRequest{
				SourceChain:      "8453",
				PayloadSizeKB:    1024,
				RetentionPeriods: 5,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "valid request with budget",
			request: EstimateRequest{
				SourceChain:      "1",
				PayloadSizeKB:    64,
				RetentionPeriods: 2,
				Budget:           &budget,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "missing source chain",
			request: EstimateRequest{
				PayloadSizeKB:    1024,
				RetentionPeriods: 5,
			},
			expectedStatus: http.StatusBadRequest,
			expectError:    true,
		},
		{
			name: "zero payload size",
			request: EstimateRequest{
				SourceChain:      "1",
				RetentionPeriods: 5,
			},
			expectedStatus: http.StatusBadRequest,
			expectError:    true,
		},
		{
			name: "zero retention",
			request: EstimateRequest{
				SourceChain:   "1",
				PayloadSizeKB: 1024,
			},
			expectedStatus: http.StatusBadRequest,
			expectError:    true,
		},
		{
			name: "unsupported chain",
			request: EstimateRequest{
				SourceChain:      "999",
				PayloadSizeKB:    1024,
				RetentionPeriods: 5,
			},
			expectedStatus: http.StatusBadRequest,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&stubEstimates{}, newStubOperations(), "live", logger)

			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/estimate", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.HandleEstimate(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectError {
				var errResp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp.Error == "" {
					t.Error("expected error message in response")
				}
				return
			}

			var estimate models.CostEstimate
			if err := json.NewDecoder(w.Body).Decode(&estimate); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !estimate.TotalUSD.IsPositive() {
				t.Error("expected a positive total")
			}
		})
	}
}

func TestHandleEstimate_InvalidBudget(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(&stubEstimates{}, newStubOperations(), "live", logger)

	bad := "not-a-number"
	body, _ := json.Marshal(EstimateRequest{
		SourceChain:      "1",
		PayloadSizeKB:    64,
		RetentionPeriods: 1,
		Budget:           &bad,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/estimate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.HandleEstimate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandleStore(t *testing.T) {
	logger := zap.NewNop()
	operations := newStubOperations()
	handler := NewHandler(&stubEstimates{}, operations, "live", logger)

	body, _ := json.Marshal(StoreRequest{
		SourceChain:      "8453",
		Payload:          base64.StdEncoding.EncodeToString([]byte("blob contents")),
		RetentionPeriods: 5,
		Deletable:        true,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/store", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleStore(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}

	var op models.StorageOperation
	if err := json.NewDecoder(w.Body).Decode(&op); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if op.Status != models.OperationStatusQuoting {
		t.Errorf("expected quoting status, got %s", op.Status)
	}
	if string(operations.lastReq.Payload) != "blob contents" {
		t.Error("payload should be base64-decoded before starting the operation")
	}
	if !operations.lastReq.Deletable {
		t.Error("deletable flag should be passed through")
	}
}

func TestHandleStore_Validation(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		request StoreRequest
	}{
		{"missing source chain", StoreRequest{Payload: "YQ==", RetentionPeriods: 1}},
		{"missing payload", StoreRequest{SourceChain: "1", RetentionPeriods: 1}},
		{"zero retention", StoreRequest{SourceChain: "1", Payload: "YQ=="}},
		{"payload not base64", StoreRequest{SourceChain: "1", Payload: "not base64!!", RetentionPeriods: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&stubEstimates{}, newStubOperations(), "live", logger)

			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/store", bytes.NewReader(body))
			w := httptest.NewRecorder()

			handler.HandleStore(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestHandleGetOperation(t *testing.T) {
	logger := zap.NewNop()
	operations := newStubOperations()
	operations.ops["op-42"] = &models.StorageOperation{
		ID:     "op-42",
		Status: models.OperationStatusCompleted,
	}
	handler := NewHandler(&stubEstimates{}, operations, "live", logger)
	router := SetupRouter(handler, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations/op-42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var op models.StorageOperation
	if err := json.NewDecoder(w.Body).Decode(&op); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if op.ID != "op-42" {
		t.Errorf("expected op-42, got %s", op.ID)
	}
}

func TestHandleGetOperation_NotFound(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(&stubEstimates{}, newStubOperations(), "live", logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"operationId": "missing"})
	w := httptest.NewRecorder()

	handler.HandleGetOperation(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandleGetAllOperations_StatusFilter(t *testing.T) {
	logger := zap.NewNop()
	operations := newStubOperations()
	operations.ops["a"] = &models.StorageOperation{ID: "a", Status: models.OperationStatusCompleted}
	operations.ops["b"] = &models.StorageOperation{ID: "b", Status: models.OperationStatusFailed}
	handler := NewHandler(&stubEstimates{}, operations, "live", logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations?status=failed", nil)
	w := httptest.NewRecorder()

	handler.HandleGetAllOperations(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string][]*models.StorageOperation
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	ops := response["operations"]
	if len(ops) != 1 || ops[0].ID != "b" {
		t.Errorf("expected only the failed operation, got %+v", ops)
	}
}

func TestHandleEstimate_InvalidJSON(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(&stubEstimates{}, newStubOperations(), "live", logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/estimate", bytes.NewReader([]byte("invalid json")))
	w := httptest.NewRecorder()

	handler.HandleEstimate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()

	data := map[string]string{"key": "value"}
	respondJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got '%s'", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("expected key 'value', got '%s'", result["key"])
	}
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	respondError(w, http.StatusBadRequest, "Bad request", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if errResp.Error != "Bad request" {
		t.Errorf("expected error 'Bad request', got '%s'", errResp.Error)
	}
}
