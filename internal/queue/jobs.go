// Package queue defines the background tasks the API hands to the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

const (
	// BackfillStatusTask rewrites legacy submission statuses found on read.
	BackfillStatusTask = "submission:backfill-status"
	// RenderVariantsTask renders display and thumbnail images for an attachment.
	RenderVariantsTask = "attachment:render-variants"
	// InspectPDFTask records the page count of a submitted PDF.
	InspectPDFTask = "submission:inspect-pdf"
)

// BackfillPayload carries the canonical statuses to persist.
type BackfillPayload struct {
	Fixes []model.StatusFix `json:"fixes"`
}

// RenderPayload names the original whose variants should be rendered.
type RenderPayload struct {
	AttachmentID string `json:"attachment_id"`
	OriginalPath string `json:"original_path"`
}

// InspectPayload names the submitted PDF to inspect.
type InspectPayload struct {
	SubmissionID string `json:"submission_id"`
	FileRef      string `json:"file_ref"`
}

// Client enqueues tasks. It satisfies the hooks the submission and
// attachment services call after their primary write.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// Backfill enqueues a status backfill.
func (c *Client) Backfill(ctx context.Context, fixes []model.StatusFix) error {
	return c.enqueue(ctx, BackfillStatusTask, BackfillPayload{Fixes: fixes}, asynq.MaxRetry(3))
}

// RenderVariants enqueues variant rendering.
func (c *Client) RenderVariants(ctx context.Context, attachmentID, originalPath string) error {
	return c.enqueue(ctx, RenderVariantsTask, RenderPayload{AttachmentID: attachmentID, OriginalPath: originalPath},
		asynq.MaxRetry(5), asynq.Timeout(2*time.Minute))
}

// InspectPDF enqueues PDF inspection.
func (c *Client) InspectPDF(ctx context.Context, submissionID, fileRef string) error {
	return c.enqueue(ctx, InspectPDFTask, InspectPayload{SubmissionID: submissionID, FileRef: fileRef}, asynq.MaxRetry(5))
}

func (c *Client) enqueue(ctx context.Context, kind string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(kind, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s task: %w", kind, err)
	}
	return nil
}
