// Package worker runs the background tasks enqueued by the API.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/attachment"
	"github.com/dharsanguruparan/SiteVault/internal/imaging"
	pdfutil "github.com/dharsanguruparan/SiteVault/internal/pdf"
	"github.com/dharsanguruparan/SiteVault/internal/queue"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	submissions store.SubmissionStore
	objects     store.ObjectStore
	renderer    *imaging.Renderer
	log         *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(submissions store.SubmissionStore, objects store.ObjectStore, renderer *imaging.Renderer, log *zap.Logger) *Processor {
	return &Processor{submissions: submissions, objects: objects, renderer: renderer, log: log}
}

// Handler registers every task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.BackfillStatusTask, p.handleBackfill)
	mux.HandleFunc(queue.RenderVariantsTask, p.handleRender)
	mux.HandleFunc(queue.InspectPDFTask, p.handleInspect)
	return mux
}

func decode(task *asynq.Task, v any) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		// Malformed payloads never succeed on retry.
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func (p *Processor) handleBackfill(ctx context.Context, task *asynq.Task) error {
	var payload queue.BackfillPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	if len(payload.Fixes) == 0 {
		return nil
	}
	if err := p.submissions.UpsertStatuses(ctx, payload.Fixes); err != nil {
		p.log.Warn("status backfill failed", zap.Int("fixes", len(payload.Fixes)), zap.Error(err))
		return err
	}
	p.log.Info("submission statuses backfilled", zap.Int("fixes", len(payload.Fixes)))
	return nil
}

func (p *Processor) handleRender(ctx context.Context, task *asynq.Task) error {
	var payload queue.RenderPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	data, err := p.objects.Download(ctx, payload.OriginalPath)
	if err != nil {
		return fmt.Errorf("download original: %w", err)
	}
	v := attachment.DeriveVariants(payload.OriginalPath)
	for _, target := range []struct {
		path string
		max  int
	}{{v.Display, imaging.DisplayMax}, {v.Thumbnail, imaging.ThumbnailMax}} {
		out, contentType, err := p.renderer.Resize(data, target.max)
		if err != nil {
			p.log.Warn("variant not rendered",
				zap.String("attachment_id", payload.AttachmentID),
				zap.String("path", payload.OriginalPath),
				zap.Error(err))
			return fmt.Errorf("render %s: %v: %w", target.path, err, asynq.SkipRetry)
		}
		if err := p.objects.Upload(ctx, target.path, bytes.NewReader(out), int64(len(out)), contentType); err != nil {
			return fmt.Errorf("upload %s: %w", target.path, err)
		}
	}
	p.log.Info("attachment variants rendered", zap.String("attachment_id", payload.AttachmentID))
	return nil
}

func (p *Processor) handleInspect(ctx context.Context, task *asynq.Task) error {
	var payload queue.InspectPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	if !strings.EqualFold(path.Ext(payload.FileRef), ".pdf") {
		return nil
	}
	data, err := p.objects.Download(ctx, payload.FileRef)
	if err != nil {
		return fmt.Errorf("download submission file: %w", err)
	}
	info, err := pdfutil.Inspect(data)
	if err != nil {
		p.log.Warn("submitted file is not a readable pdf",
			zap.String("submission_id", payload.SubmissionID), zap.Error(err))
		return fmt.Errorf("inspect pdf: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.submissions.SetPageCount(ctx, payload.SubmissionID, info.Pages); err != nil {
		return fmt.Errorf("record page count: %w", err)
	}
	p.log.Info("submission pdf inspected",
		zap.String("submission_id", payload.SubmissionID),
		zap.Int("pages", info.Pages),
		zap.Bool("has_text", info.HasText))
	return nil
}
