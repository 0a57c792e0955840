package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storflow/internal/config"
	"storflow/internal/models"
)

// Client uploads payloads to the storage network's publisher endpoint
type Client struct {
	endpoint        string
	maxPayloadBytes int64
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewClient creates a publisher client from the storage configuration
func NewClient(cfg *config.StorageConfig, logger *zap.Logger) *Client {
	return &Client{
		endpoint:        cfg.PublisherEndpoint,
		maxPayloadBytes: cfg.MaxPayloadBytes,
		httpClient:      &http.Client{Timeout: 5 * time.Minute},
		logger:          logger,
	}
}

// UploadParams holds the retention parameters of an upload
type UploadParams struct {
	RetentionPeriods int
	Deletable        bool
}

// The publisher answers with exactly one of these two branches
type uploadResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID  string `json:"blobId"`
			Size    int64  `json:"size"`
			Storage struct {
				StartEpoch uint64 `json:"startEpoch"`
				EndEpoch   uint64 `json:"endEpoch"`
			} `json:"storage"`
		} `json:"blobObject"`
		ResourceOperation struct {
			RegisterFromScratch struct {
				EncodedLength int64 `json:"encodedLength"`
			} `json:"registerFromScratch"`
		} `json:"resourceOperation"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID   string `json:"blobId"`
		EndEpoch uint64 `json:"endEpoch"`
	} `json:"alreadyCertified"`
}

// Upload sends the payload to the publisher and returns the storage receipt.
// Payloads over the configured ceiling are rejected before any network call.
func (c *Client) Upload(ctx context.Context, payload []byte, params UploadParams) (*models.StorageReceipt, error) {
	if int64(len(payload)) > c.maxPayloadBytes {
		return nil, fmt.Errorf("payload too large: %d bytes exceeds limit of %d", len(payload), c.maxPayloadBytes)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	if params.RetentionPeriods <= 0 {
		return nil, fmt.Errorf("retention periods must be positive, got %d", params.RetentionPeriods)
	}

	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", c.endpoint, params.RetentionPeriods)
	if params.Deletable {
		url += "&deletable=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	c.logger.Info("Uploading payload to publisher",
		zap.Int("payload_bytes", len(payload)),
		zap.Int("retention_periods", params.RetentionPeriods),
		zap.Bool("deletable", params.Deletable))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, fmt.Errorf("payload too large: publisher rejected %d bytes", len(payload))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher returned status %d: %s", resp.StatusCode, string(body))
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode publisher response: %w", err)
	}

	switch {
	case result.NewlyCreated != nil:
		obj := result.NewlyCreated.BlobObject
		receipt := &models.StorageReceipt{
			BlobID:           obj.BlobID,
			StartEpoch:       obj.Storage.StartEpoch,
			EndEpoch:         obj.Storage.EndEpoch,
			SizeBytes:        obj.Size,
			EncodedSizeBytes: result.NewlyCreated.ResourceOperation.RegisterFromScratch.EncodedLength,
			Deletable:        params.Deletable,
		}
		c.logger.Info("Payload stored",
			zap.String("blob_id", receipt.BlobID),
			zap.Uint64("start_epoch", receipt.StartEpoch),
			zap.Uint64("end_epoch", receipt.EndEpoch))
		return receipt, nil

	case result.AlreadyCertified != nil:
		receipt := &models.StorageReceipt{
			BlobID:           result.AlreadyCertified.BlobID,
			EndEpoch:         result.AlreadyCertified.EndEpoch,
			SizeBytes:        int64(len(payload)),
			Deletable:        params.Deletable,
			AlreadyCertified: true,
		}
		c.logger.Info("Payload already certified",
			zap.String("blob_id", receipt.BlobID),
			zap.Uint64("end_epoch", receipt.EndEpoch))
		return receipt, nil

	default:
		return nil, fmt.Errorf("publisher response has neither newlyCreated nor alreadyCertified")
	}
}
