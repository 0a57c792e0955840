package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/estimator"
	"storflow/internal/models"
	"storflow/internal/orchestrator"
)

// EstimateService quotes storage purchases
type EstimateService interface {
	GetCostEstimate(ctx context.Context, params estimator.EstimateParams) (*models.CostEstimate, error)
}

// OperationService runs and reads storage operations
type OperationService interface {
	StartStore(ctx context.Context, req orchestrator.StoreRequest) (*models.StorageOperation, error)
	GetOperation(ctx context.Context, id string) (*models.StorageOperation, error)
	GetAllOperations(ctx context.Context) ([]*models.StorageOperation, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	estimates  EstimateService
	operations OperationService
	mode       string
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	estimates EstimateService,
	operations OperationService,
	mode string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		estimates:  estimates,
		operations: operations,
		mode:       mode,
		logger:     logger,
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
		Mode:    h.mode,
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Cost Estimates ====================

// HandleEstimate handles POST /api/v1/estimate
// Quotes a storage purchase without moving any funds
func (h *Handler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.SourceChain == "" {
		respondError(w, http.StatusBadRequest, "source_chain is required", nil)
		return
	}
	if req.PayloadSizeKB <= 0 {
		respondError(w, http.StatusBadRequest, "payload_size_kb must be positive", nil)
		return
	}
	if req.RetentionPeriods <= 0 {
		respondError(w, http.StatusBadRequest, "retention_periods must be positive", nil)
		return
	}

	budget, err := parseBudget(req.Budget)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid budget", err)
		return
	}

	h.logger.Debug("Computing cost estimate",
		zap.String("source_chain", req.SourceChain),
		zap.Int64("payload_size_kb", req.PayloadSizeKB),
		zap.Int("retention_periods", req.RetentionPeriods))

	estimate, err := h.estimates.GetCostEstimate(r.Context(), estimator.EstimateParams{
		SourceChain:      req.SourceChain,
		PayloadSizeKB:    req.PayloadSizeKB,
		RetentionPeriods: req.RetentionPeriods,
		Deletable:        req.Deletable,
		Budget:           budget,
	})
	if err != nil {
		if strings.Contains(err.Error(), "unsupported source chain") {
			respondError(w, http.StatusBadRequest, "Unsupported source chain", err)
			return
		}
		h.logger.Error("Failed to compute estimate",
			zap.String("source_chain", req.SourceChain),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to compute estimate", err)
		return
	}

	respondJSON(w, http.StatusOK, estimate)
}

// ==================== Store ====================

// HandleStore handles POST /api/v1/store
// Starts the storage pipeline and returns the operation record immediately
func (h *Handler) HandleStore(w http.ResponseWriter, r *http.Request) {
	var req StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.SourceChain == "" {
		respondError(w, http.StatusBadRequest, "source_chain is required", nil)
		return
	}
	if req.Payload == "" {
		respondError(w, http.StatusBadRequest, "payload is required", nil)
		return
	}
	if req.RetentionPeriods <= 0 {
		respondError(w, http.StatusBadRequest, "retention_periods must be positive", nil)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "payload must be base64-encoded", err)
		return
	}

	budget, err := parseBudget(req.Budget)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid budget", err)
		return
	}

	h.logger.Info("Starting storage operation",
		zap.String("source_chain", req.SourceChain),
		zap.Int("payload_bytes", len(payload)),
		zap.Int("retention_periods", req.RetentionPeriods))

	op, err := h.operations.StartStore(r.Context(), orchestrator.StoreRequest{
		SourceChain:      req.SourceChain,
		Payload:          payload,
		RetentionPeriods: req.RetentionPeriods,
		Deletable:        req.Deletable,
		Budget:           budget,
	})
	if err != nil {
		h.logger.Error("Failed to start storage operation",
			zap.String("source_chain", req.SourceChain),
			zap.Error(err))
		respondError(w, http.StatusBadRequest, "Failed to start storage operation", err)
		return
	}

	respondJSON(w, http.StatusAccepted, op)
}

// ==================== Operations ====================

// HandleGetOperation handles GET /api/v1/operations/{operationId}
func (h *Handler) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	operationID := vars["operationId"]

	if operationID == "" {
		respondError(w, http.StatusBadRequest, "operation_id is required", nil)
		return
	}

	op, err := h.operations.GetOperation(r.Context(), operationID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrOperationNotFound) {
			respondError(w, http.StatusNotFound, "Operation not found", nil)
			return
		}
		h.logger.Error("Failed to get operation",
			zap.String("operation_id", operationID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get operation", err)
		return
	}

	respondJSON(w, http.StatusOK, op)
}

// HandleGetAllOperations handles GET /api/v1/operations
// Supports an optional ?status= filter
func (h *Handler) HandleGetAllOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.operations.GetAllOperations(r.Context())
	if err != nil {
		h.logger.Error("Failed to list operations", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list operations", err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]*models.StorageOperation, 0, len(ops))
		for _, op := range ops {
			if string(op.Status) == status {
				filtered = append(filtered, op)
			}
		}
		ops = filtered
	}

	respondJSON(w, http.StatusOK, map[string][]*models.StorageOperation{"operations": ops})
}

// ==================== Helper Functions ====================

func parseBudget(raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	budget, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, fmt.Errorf("budget must be a decimal string: %w", err)
	}
	if !budget.IsPositive() {
		return nil, fmt.Errorf("budget must be positive, got %s", budget)
	}
	return &budget, nil
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't send response since headers already written
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := ErrorResponse{
		Error:   message,
		Message: errorMsg,
	}

	respondJSON(w, statusCode, response)
}
