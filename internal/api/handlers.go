package api

import (
	"net/http"
	"strings"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/attachment"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/registry"
	"github.com/dharsanguruparan/SiteVault/internal/submission"
)

func (s *Server) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	actor := principal(r)
	role := actor.Role
	if v := r.URL.Query().Get("role"); v != "" {
		role = model.Role(v)
	}
	if !role.Valid() {
		s.respondError(w, r, apperr.Validation("unknown role "+string(role)))
		return
	}
	reqs, err := s.deps.Registry.ListActive(r.Context(), role, r.URL.Query().Get("siteId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
}

func (s *Server) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	var in registry.RequirementInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	req, err := s.deps.Registry.Create(r.Context(), principal(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (s *Server) handleUpdateRequirement(w http.ResponseWriter, r *http.Request) {
	var patch registry.RequirementPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.respondError(w, r, err)
		return
	}
	req, err := s.deps.Registry.Update(r.Context(), principal(r), r.PathValue("id"), patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleArchiveRequirement(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Archive(r.Context(), principal(r), r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoleMappings []model.RoleMapping `json:"roleMappings"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.deps.Registry.SetRoleMappings(r.Context(), principal(r), r.PathValue("id"), body.RoleMappings); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSites(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SiteOverrides []model.SiteOverride `json:"siteOverrides"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.deps.Registry.SetSiteOverrides(r.Context(), principal(r), r.PathValue("id"), body.SiteOverrides); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.deps.Submissions.Status(r.Context(), principal(r), q.Get("principalId"), q.Get("siteId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"requirements": entries})
}

// handleSubmit accepts either a JSON reference or a multipart file upload.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor := principal(r)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		up, err := readUpload(w, r, s.cfg.MaxFileBytes)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		defer up.Close()
		sub, err := s.deps.Submissions.SubmitFile(r.Context(), actor,
			up.fields["principalId"], up.fields["requirementCode"], up.filename, up.contentType, up.f, up.size)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sub)
		return
	}

	var in submission.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	sub, err := s.deps.Submissions.Submit(r.Context(), actor, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decision submission.Decision `json:"decision"`
		Reason   string              `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	sub, err := s.deps.Submissions.Review(r.Context(), principal(r), r.PathValue("id"), body.Decision, body.Reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleSubmissionFileURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.deps.Submissions.FileURL(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var types []string
	for _, v := range q["type"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	res, err := s.deps.Documents.List(r.Context(), principal(r), q.Get("siteId"), types)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if res.Partial() {
		w.Header().Set("X-Partial-Result", "true")
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Attachments.List(r.Context(), principal(r), r.PathValue("parentId"), r.URL.Query().Get("category"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"attachments": items})
}

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, s.cfg.MaxFileBytes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer up.Close()
	att, err := s.deps.Attachments.Add(r.Context(), principal(r), attachment.AddInput{
		ParentID:    r.PathValue("parentId"),
		Category:    up.fields["category"],
		FileName:    up.filename,
		ContentType: up.contentType,
		Size:        up.size,
		Description: up.fields["description"],
		Body:        up.f,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, att)
}

func (s *Server) handleUpdateAttachment(w http.ResponseWriter, r *http.Request) {
	var in attachment.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	att, err := s.deps.Attachments.Update(r.Context(), principal(r), r.PathValue("id"), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, att)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Attachments.Delete(r.Context(), principal(r), r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
