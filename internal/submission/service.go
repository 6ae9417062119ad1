package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/registry"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/store"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

// Backfiller persists canonical statuses for rows read with legacy values.
type Backfiller interface {
	Backfill(ctx context.Context, fixes []model.StatusFix) error
}

// Inspector is told about newly stored PDF files.
type Inspector interface {
	InspectPDF(ctx context.Context, submissionID, fileRef string) error
}

// StoreBackfiller writes fixes synchronously.
type StoreBackfiller struct {
	Store store.SubmissionStore
}

// Backfill implements Backfiller.
func (b StoreBackfiller) Backfill(ctx context.Context, fixes []model.StatusFix) error {
	return b.Store.UpsertStatuses(ctx, fixes)
}

// StatusEntry is one requirement's compliance state for a principal.
type StatusEntry struct {
	RequirementID   string                 `json:"requirementId"`
	RequirementCode string                 `json:"requirementCode"`
	Label           string                 `json:"label"`
	IsRequired      bool                   `json:"isRequired"`
	DueDays         *int                   `json:"dueDays,omitempty"`
	Status          model.SubmissionStatus `json:"status"`
	RejectionReason string                 `json:"rejectionReason,omitempty"`
	Document        *model.Submission      `json:"document,omitempty"`
}

// SubmitInput attaches a document reference or stored file to a requirement.
type SubmitInput struct {
	PrincipalID     string `json:"principalId"`
	RequirementCode string `json:"requirementCode"`
	DocumentRef     string `json:"documentRef"`
	FileRef         string `json:"fileRef"`
	FileName        string `json:"fileName"`
	FileSize        int64  `json:"fileSize"`
	MimeType        string `json:"mimeType"`
}

// Options configures a Service.
type Options struct {
	Backfiller   Backfiller
	Inspector    Inspector
	Metrics      *telemetry.Metrics
	SignedURLTTL time.Duration
}

// Service implements submission reads and transitions.
type Service struct {
	registry *registry.Service
	store    store.SubmissionStore
	dir      store.Directory
	scope    *scope.Resolver
	objects  store.ObjectStore
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(reg *registry.Service, st store.SubmissionStore, dir store.Directory, resolver *scope.Resolver, objects store.ObjectStore, opts Options, log *zap.Logger) *Service {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 5 * time.Minute
	}
	return &Service{
		registry: reg,
		store:    st,
		dir:      dir,
		scope:    resolver,
		objects:  objects,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Status lists every requirement applicable to subjectID with its current
// submission state. siteID selects site overrides; when empty the subject's
// first assigned site is used.
func (s *Service) Status(ctx context.Context, actor model.Principal, subjectID, siteID string) ([]StatusEntry, error) {
	subject, err := s.visibleSubject(ctx, actor, subjectID)
	if err != nil {
		return nil, err
	}
	if siteID == "" {
		siteID = s.defaultSite(ctx, subject)
	}
	reqs, err := s.registry.ListActive(ctx, subject.Role, siteID)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.CurrentSubmissions(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("current submissions: %w", err)
	}
	byReq := make(map[string]model.Submission, len(subs))
	var fixes []model.StatusFix
	for _, sub := range subs {
		st, changed := Normalize(sub)
		if changed {
			fixes = append(fixes, model.StatusFix{SubmissionID: sub.ID, Status: st})
		}
		sub.Status = st
		byReq[sub.RequirementID] = sub
	}
	s.backfill(ctx, fixes)

	out := make([]StatusEntry, 0, len(reqs))
	for _, r := range reqs {
		entry := StatusEntry{
			RequirementID:   r.ID,
			RequirementCode: r.Code,
			Label:           r.Name,
			IsRequired:      r.IsRequired,
			DueDays:         r.DueDays,
			Status:          model.StatusNotSubmitted,
		}
		if sub, ok := byReq[r.ID]; ok {
			sub := sub
			entry.Status = sub.Status
			entry.RejectionReason = sub.RejectionReason
			entry.Document = &sub
		}
		out = append(out, entry)
	}
	return out, nil
}

// Submit attaches in's reference to the subject's current submission,
// creating it on first attach.
func (s *Service) Submit(ctx context.Context, actor model.Principal, in SubmitInput) (model.Submission, error) {
	if in.PrincipalID == "" {
		in.PrincipalID = actor.ID
	}
	if err := s.checkSubmitter(ctx, actor, in.PrincipalID); err != nil {
		return model.Submission{}, err
	}
	if strings.TrimSpace(in.RequirementCode) == "" {
		return model.Submission{}, apperr.Validation("requirementCode is required")
	}
	req, err := s.registry.RequirementByCode(ctx, in.RequirementCode)
	if err != nil {
		return model.Submission{}, err
	}
	if err := checkFile(req, in); err != nil {
		return model.Submission{}, err
	}
	now := s.now().UTC()

	cur, err := s.store.CurrentSubmission(ctx, in.PrincipalID, req.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if in.DocumentRef == "" && in.FileRef == "" {
			return model.Submission{PrincipalID: in.PrincipalID, RequirementID: req.ID, Status: model.StatusNotSubmitted}, nil
		}
		sub := applySubmit(model.Submission{
			ID:            uuid.NewString(),
			PrincipalID:   in.PrincipalID,
			RequirementID: req.ID,
			CreatedAt:     now,
		}, in.DocumentRef, in.FileRef, now)
		setFileMeta(&sub, in)
		if err := s.store.InsertSubmission(ctx, sub); err != nil {
			return model.Submission{}, fmt.Errorf("insert submission: %w", err)
		}
		s.afterSubmit(ctx, sub)
		return sub, nil
	case err != nil:
		return model.Submission{}, fmt.Errorf("current submission: %w", err)
	}

	prev := cur.Status
	cur.Status, _ = Normalize(cur)
	sub := applySubmit(cur, in.DocumentRef, in.FileRef, now)
	setFileMeta(&sub, in)
	if err := s.store.UpdateSubmission(ctx, sub); err != nil {
		return model.Submission{}, fmt.Errorf("update submission: %w", err)
	}
	s.log.Info("submission updated",
		zap.String("submission_id", sub.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(sub.Status)))
	s.afterSubmit(ctx, sub)
	return sub, nil
}

// SubmitFile stores r in object storage and submits it as a file reference.
func (s *Service) SubmitFile(ctx context.Context, actor model.Principal, principalID, code, fileName, contentType string, r io.Reader, size int64) (model.Submission, error) {
	if principalID == "" {
		principalID = actor.ID
	}
	if err := s.checkSubmitter(ctx, actor, principalID); err != nil {
		return model.Submission{}, err
	}
	req, err := s.registry.RequirementByCode(ctx, code)
	if err != nil {
		return model.Submission{}, err
	}
	in := SubmitInput{
		PrincipalID:     principalID,
		RequirementCode: code,
		FileName:        path.Base(fileName),
		FileSize:        size,
		MimeType:        contentType,
	}
	in.FileRef = fmt.Sprintf("submissions/%s/%s/%s%s", principalID, req.Code, uuid.NewString(), strings.ToLower(path.Ext(in.FileName)))
	if err := checkFile(req, in); err != nil {
		return model.Submission{}, err
	}
	if err := s.objects.Upload(ctx, in.FileRef, r, size, contentType); err != nil {
		return model.Submission{}, apperr.Storage("upload submission file", err)
	}
	sub, err := s.Submit(ctx, actor, in)
	if err != nil {
		s.removeFile(ctx, in.FileRef)
		return model.Submission{}, err
	}
	return sub, nil
}

// checkSubmitter allows principals to submit for themselves and admins to
// submit for principals inside their scope.
func (s *Service) checkSubmitter(ctx context.Context, actor model.Principal, principalID string) error {
	if actor.ID == principalID {
		return nil
	}
	if !actor.Role.IsAdmin() {
		return apperr.Forbidden("cannot submit documents for another principal")
	}
	_, err := s.visibleSubject(ctx, actor, principalID)
	return err
}

// removeFile deletes an uploaded file no submission references.
func (s *Service) removeFile(ctx context.Context, fileRef string) {
	if err := s.objects.Remove(ctx, []string{fileRef}); err != nil {
		s.opts.Metrics.Inc(ctx, telemetry.StorageCleanupErrors, attribute.String("path", fileRef))
		s.log.Warn("unreferenced submission file not removed", zap.String("path", fileRef), zap.Error(err))
	}
}

// Review records an administrator's decision on submission id.
func (s *Service) Review(ctx context.Context, actor model.Principal, id string, d Decision, reason string) (model.Submission, error) {
	if !actor.Role.IsAdmin() {
		return model.Submission{}, apperr.Forbidden("only administrators may review submissions")
	}
	sub, err := s.store.GetSubmission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Submission{}, apperr.NotFound("submission")
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	if _, err := s.visibleSubject(ctx, actor, sub.PrincipalID); err != nil {
		return model.Submission{}, apperr.NotFound("submission")
	}
	sub.Status, _ = Normalize(sub)
	out, err := applyReview(sub, actor, d, reason, s.now().UTC())
	if err != nil {
		return sub, err
	}
	if err := s.store.UpdateSubmission(ctx, out); err != nil {
		return model.Submission{}, fmt.Errorf("update submission: %w", err)
	}
	s.log.Info("submission reviewed",
		zap.String("submission_id", out.ID),
		zap.String("status", string(out.Status)),
		zap.String("reviewer", actor.ID))
	return out, nil
}

// FileURL returns a short-lived download URL for a submission's stored file.
func (s *Service) FileURL(ctx context.Context, actor model.Principal, id string) (string, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.NotFound("submission")
	}
	if err != nil {
		return "", fmt.Errorf("get submission: %w", err)
	}
	if _, err := s.visibleSubject(ctx, actor, sub.PrincipalID); err != nil {
		return "", apperr.NotFound("submission")
	}
	if sub.FileRef == "" {
		return "", apperr.NotFound("submission file")
	}
	url, err := s.objects.SignedURL(ctx, sub.FileRef, s.opts.SignedURLTTL)
	if err != nil {
		return "", apperr.Storage("sign submission file url", err)
	}
	return url, nil
}

// visibleSubject loads subjectID if actor may see it. Principals outside
// actor's scope are reported as not found.
func (s *Service) visibleSubject(ctx context.Context, actor model.Principal, subjectID string) (model.Principal, error) {
	if subjectID == "" {
		subjectID = actor.ID
	}
	subject, err := s.dir.GetPrincipal(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return subject, apperr.NotFound("principal")
	}
	if err != nil {
		return subject, fmt.Errorf("get principal: %w", err)
	}
	if actor.ID == subject.ID {
		return subject, nil
	}
	if actor.Role == model.RoleWorker {
		return model.Principal{}, apperr.NotFound("principal")
	}
	set := s.scope.Resolve(ctx, actor)
	if set.All {
		return subject, nil
	}
	if org := scope.OrgConstraint(actor); org != "" && subject.OrganizationID != org {
		return model.Principal{}, apperr.NotFound("principal")
	}
	assignments, err := s.dir.SiteAssignments(ctx, subject.ID)
	if err != nil {
		return model.Principal{}, apperr.NotFound("principal")
	}
	for _, a := range assignments {
		if set.Contains(a.SiteID) {
			return subject, nil
		}
	}
	return model.Principal{}, apperr.NotFound("principal")
}

func (s *Service) defaultSite(ctx context.Context, p model.Principal) string {
	assignments, err := s.dir.SiteAssignments(ctx, p.ID)
	if err != nil || len(assignments) == 0 {
		return ""
	}
	sites := make([]string, 0, len(assignments))
	for _, a := range assignments {
		sites = append(sites, a.SiteID)
	}
	sort.Strings(sites)
	return sites[0]
}

// backfill never fails the caller; errors are logged and counted.
func (s *Service) backfill(ctx context.Context, fixes []model.StatusFix) {
	if len(fixes) == 0 || s.opts.Backfiller == nil {
		return
	}
	if err := s.opts.Backfiller.Backfill(ctx, fixes); err != nil {
		s.opts.Metrics.Inc(ctx, telemetry.BackfillFailures, attribute.Int("rows", len(fixes)))
		s.log.Warn("status backfill failed", zap.Int("rows", len(fixes)), zap.Error(err))
	}
}

func (s *Service) afterSubmit(ctx context.Context, sub model.Submission) {
	if s.opts.Inspector == nil || sub.FileRef == "" || !isPDF(sub) {
		return
	}
	if err := s.opts.Inspector.InspectPDF(ctx, sub.ID, sub.FileRef); err != nil {
		s.log.Warn("pdf inspection not scheduled", zap.String("submission_id", sub.ID), zap.Error(err))
	}
}

func isPDF(sub model.Submission) bool {
	return sub.MimeType == "application/pdf" || strings.EqualFold(path.Ext(sub.FileRef), ".pdf")
}

func setFileMeta(sub *model.Submission, in SubmitInput) {
	if sub.FileRef == "" {
		sub.FileName, sub.FileSize, sub.MimeType = "", 0, ""
		return
	}
	sub.FileName = in.FileName
	sub.FileSize = in.FileSize
	sub.MimeType = in.MimeType
	sub.PageCount = 0
}

// checkFile enforces the requirement's accepted kinds and size limit on
// raw file submissions. Kinds may be listed as mime types or extensions.
func checkFile(req model.DocumentRequirement, in SubmitInput) error {
	if in.FileRef == "" {
		return nil
	}
	if req.MaxSizeBytes > 0 && in.FileSize > req.MaxSizeBytes {
		return apperr.Validation(fmt.Sprintf("file exceeds %d bytes", req.MaxSizeBytes))
	}
	if len(req.FileKinds) == 0 {
		return nil
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(in.FileRef)), ".")
	if req.AcceptsKind(in.MimeType) || (ext != "" && req.AcceptsKind(ext)) {
		return nil
	}
	return apperr.Validation("file kind not accepted for " + req.Code)
}
