package attachment

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

// moveState tracks a category move. Object storage and the attachment table
// cannot change together, so a move that fails after the object moved is
// recorded as orphaned for operators instead of being rolled back.
type moveState string

const (
	movePending   moveState = "pending-move"
	moveMoved     moveState = "moved-physically"
	moveCommitted moveState = "committed"
	moveOrphaned  moveState = "orphaned"
)

type move struct {
	att     model.Attachment
	to      string
	newPath string
	state   moveState
}

func newMove(att model.Attachment, to string) *move {
	return &move{
		att:     att,
		to:      to,
		newPath: SubstituteCategory(att.Path, att.ParentID, att.Category, to),
		state:   movePending,
	}
}

// runMove relocates mv's object and commits its record through st, which
// must hold the locks of both categories.
func (m *Manager) runMove(ctx context.Context, st store.AttachmentStore, mv *move) (model.Attachment, error) {
	from := mv.att.Category
	if err := m.moveObject(ctx, mv); err != nil {
		return model.Attachment{}, err
	}
	committed, err := m.commitMove(ctx, st, mv)
	if err != nil {
		return model.Attachment{}, err
	}
	if err := resequence(ctx, st, mv.att.ParentID, from); err != nil {
		m.log.Warn("source category not resequenced after move",
			zap.String("attachment_id", mv.att.ID), zap.String("category", from), zap.Error(err))
	}
	return committed, nil
}

// settle handles err from the locked section of a move. A record update
// that was written but whose transaction did not commit leaves the object
// at its new path, so the move is orphaned.
func (m *Manager) settle(ctx context.Context, mv *move, err error) error {
	if mv == nil || mv.state != moveCommitted {
		return err
	}
	return m.orphan(ctx, mv, err)
}

// moveObject relocates the original. Variants follow best-effort; missing
// ones are re-rendered at the new location.
func (m *Manager) moveObject(ctx context.Context, mv *move) error {
	oldV, newV := DeriveVariants(mv.att.Path), DeriveVariants(mv.newPath)
	if err := m.objects.Move(ctx, oldV.Original, newV.Original); err != nil {
		m.log.Warn("attachment move aborted",
			zap.String("attachment_id", mv.att.ID),
			zap.String("state", string(mv.state)),
			zap.Error(err))
		return apperr.Storage("move attachment object", err)
	}
	mv.state = moveMoved

	stale := false
	for _, p := range [][2]string{{oldV.Display, newV.Display}, {oldV.Thumbnail, newV.Thumbnail}} {
		if err := m.objects.Move(ctx, p[0], p[1]); err != nil {
			stale = true
			m.log.Debug("variant not moved", zap.String("path", p[0]), zap.Error(err))
		}
	}
	if stale && m.renderer != nil {
		if err := m.renderer.RenderVariants(ctx, mv.att.ID, newV.Original); err != nil {
			m.log.Warn("variant rendering not scheduled", zap.String("attachment_id", mv.att.ID), zap.Error(err))
		}
	}
	return nil
}

// commitMove writes category, path, URL and ordinal in one record update.
func (m *Manager) commitMove(ctx context.Context, st store.AttachmentStore, mv *move) (model.Attachment, error) {
	next, err := nextOrdinal(ctx, st, mv.att.ParentID, mv.to)
	if err == nil {
		updated := mv.att
		updated.Category = mv.to
		updated.Path = mv.newPath
		updated.URL = m.objects.PublicURL(mv.newPath)
		updated.Ordinal = next
		updated.UpdatedAt = m.now().UTC()
		if err = st.UpdateAttachment(ctx, updated); err == nil {
			mv.state = moveCommitted
			return updated, nil
		}
	}
	return model.Attachment{}, m.orphan(ctx, mv, err)
}

func (m *Manager) orphan(ctx context.Context, mv *move, err error) error {
	mv.state = moveOrphaned
	m.metrics.Inc(ctx, telemetry.OrphanedMoves, attribute.String("parent_id", mv.att.ParentID))
	m.log.Error("attachment orphaned after move",
		zap.String("attachment_id", mv.att.ID),
		zap.String("state", string(mv.state)),
		zap.String("old_path", mv.att.Path),
		zap.String("new_path", mv.newPath),
		zap.Error(err))
	return apperr.Wrap(apperr.CodeInternal, "attachment moved but its record was not updated", fmt.Errorf("commit move: %w", err))
}
