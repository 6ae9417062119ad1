package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

var codeRx = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// RequirementInput is the payload for creating a requirement.
type RequirementInput struct {
	Code          string               `json:"code" validate:"required,max=64,reqcode"`
	Name          string               `json:"name" validate:"required,max=200"`
	Description   string               `json:"description" validate:"max=2000"`
	FileKinds     []string             `json:"fileKinds" validate:"dive,required"`
	MaxSizeBytes  int64                `json:"maxSizeBytes" validate:"gte=0"`
	SortOrder     int                  `json:"sortOrder"`
	RoleMappings  []model.RoleMapping  `json:"roleMappings"`
	SiteOverrides []model.SiteOverride `json:"siteOverrides"`
}

// RequirementPatch updates the non-nil fields of a requirement. Non-nil
// mapping slices replace the existing mappings in the same transaction.
type RequirementPatch struct {
	Code          *string               `json:"code" validate:"omitempty,max=64,reqcode"`
	Name          *string               `json:"name" validate:"omitempty,max=200"`
	Description   *string               `json:"description" validate:"omitempty,max=2000"`
	FileKinds     *[]string             `json:"fileKinds"`
	MaxSizeBytes  *int64                `json:"maxSizeBytes" validate:"omitempty,gte=0"`
	SortOrder     *int                  `json:"sortOrder"`
	RoleMappings  *[]model.RoleMapping  `json:"roleMappings"`
	SiteOverrides *[]model.SiteOverride `json:"siteOverrides"`
}

// Service reads and edits the requirement registry.
type Service struct {
	store    store.RequirementStore
	cache    *Cache
	bus      Broadcaster
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a Service. cache and bus may be nil.
func New(st store.RequirementStore, cache *Cache, bus Broadcaster, log *zap.Logger) *Service {
	v := validator.New()
	_ = v.RegisterValidation("reqcode", func(fl validator.FieldLevel) bool {
		return codeRx.MatchString(fl.Field().String())
	})
	return &Service{store: st, cache: cache, bus: bus, validate: v, log: log, now: time.Now}
}

// Snapshot returns the registry as of now, from cache when fresh.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	return s.cache.Get(ctx, func(ctx context.Context) (*Snapshot, error) {
		data, err := s.store.LoadRegistry(ctx)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		return NewSnapshot(data, s.now().UTC()), nil
	})
}

// ListActive resolves the active requirements for role at siteID.
func (s *Service) ListActive(ctx context.Context, role model.Role, siteID string) ([]model.ResolvedRequirement, error) {
	if !role.Valid() {
		return nil, apperr.Validation("unknown role " + string(role))
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Resolve(role, siteID), nil
}

// RequirementByCode returns the active requirement with code.
func (s *Service) RequirementByCode(ctx context.Context, code string) (model.DocumentRequirement, error) {
	req, err := s.store.RequirementByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return req, apperr.NotFound("requirement")
	}
	if err != nil {
		return req, fmt.Errorf("requirement %s: %w", code, err)
	}
	return req, nil
}

// Create adds a requirement with its mappings in one transaction.
func (s *Service) Create(ctx context.Context, actor model.Principal, in RequirementInput) (model.DocumentRequirement, error) {
	var req model.DocumentRequirement
	if err := requireAdmin(actor); err != nil {
		return req, err
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return req, err
	}
	now := s.now().UTC()
	req = model.DocumentRequirement{
		ID:           uuid.NewString(),
		Code:         in.Code,
		Name:         in.Name,
		Description:  in.Description,
		FileKinds:    in.FileKinds,
		MaxSizeBytes: in.MaxSizeBytes,
		SortOrder:    in.SortOrder,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	roles, err := s.checkRoleMappings(req.ID, in.RoleMappings)
	if err != nil {
		return model.DocumentRequirement{}, err
	}
	sites, err := s.checkSiteOverrides(req.ID, in.SiteOverrides)
	if err != nil {
		return model.DocumentRequirement{}, err
	}
	err = s.store.InRequirementTx(ctx, func(tx store.RequirementTx) error {
		taken, err := tx.ActiveCodeExists(ctx, req.Code, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.Validation("requirement code " + req.Code + " already exists")
		}
		if err := tx.InsertRequirement(ctx, req); err != nil {
			return err
		}
		if err := tx.ReplaceRoleMappings(ctx, req.ID, roles); err != nil {
			return err
		}
		return tx.ReplaceSiteOverrides(ctx, req.ID, sites)
	})
	if err != nil {
		return model.DocumentRequirement{}, s.txError("create requirement", err)
	}
	s.changed(ctx)
	s.log.Info("requirement created", zap.String("requirement_id", req.ID), zap.String("code", req.Code), zap.String("actor", actor.ID))
	return req, nil
}

// Update applies patch to requirement id.
func (s *Service) Update(ctx context.Context, actor model.Principal, id string, patch RequirementPatch) (model.DocumentRequirement, error) {
	var out model.DocumentRequirement
	if err := requireAdmin(actor); err != nil {
		return out, err
	}
	if err := s.check(patch); err != nil {
		return out, err
	}
	var roles []model.RoleMapping
	var sites []model.SiteOverride
	var err error
	if patch.RoleMappings != nil {
		if roles, err = s.checkRoleMappings(id, *patch.RoleMappings); err != nil {
			return out, err
		}
	}
	if patch.SiteOverrides != nil {
		if sites, err = s.checkSiteOverrides(id, *patch.SiteOverrides); err != nil {
			return out, err
		}
	}
	err = s.store.InRequirementTx(ctx, func(tx store.RequirementTx) error {
		req, err := tx.GetRequirement(ctx, id)
		if err != nil {
			return err
		}
		if patch.Code != nil && strings.TrimSpace(*patch.Code) != req.Code {
			code := strings.TrimSpace(*patch.Code)
			if req.Active {
				taken, err := tx.ActiveCodeExists(ctx, code, req.ID)
				if err != nil {
					return err
				}
				if taken {
					return apperr.Validation("requirement code " + code + " already exists")
				}
			}
			req.Code = code
		}
		if patch.Name != nil {
			req.Name = strings.TrimSpace(*patch.Name)
			if req.Name == "" {
				return apperr.Validation("name is required")
			}
		}
		if patch.Description != nil {
			req.Description = *patch.Description
		}
		if patch.FileKinds != nil {
			req.FileKinds = *patch.FileKinds
		}
		if patch.MaxSizeBytes != nil {
			req.MaxSizeBytes = *patch.MaxSizeBytes
		}
		if patch.SortOrder != nil {
			req.SortOrder = *patch.SortOrder
		}
		req.UpdatedAt = s.now().UTC()
		if err := tx.UpdateRequirement(ctx, req); err != nil {
			return err
		}
		if patch.RoleMappings != nil {
			if err := tx.ReplaceRoleMappings(ctx, req.ID, roles); err != nil {
				return err
			}
		}
		if patch.SiteOverrides != nil {
			if err := tx.ReplaceSiteOverrides(ctx, req.ID, sites); err != nil {
				return err
			}
		}
		out = req
		return nil
	})
	if err != nil {
		return model.DocumentRequirement{}, s.txError("update requirement", err)
	}
	s.changed(ctx)
	return out, nil
}

// Archive deactivates requirement id. Submissions against it are untouched.
func (s *Service) Archive(ctx context.Context, actor model.Principal, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.InRequirementTx(ctx, func(tx store.RequirementTx) error {
		req, err := tx.GetRequirement(ctx, id)
		if err != nil {
			return err
		}
		if !req.Active {
			return nil
		}
		req.Active = false
		req.UpdatedAt = s.now().UTC()
		return tx.UpdateRequirement(ctx, req)
	})
	if err != nil {
		return s.txError("archive requirement", err)
	}
	s.changed(ctx)
	return nil
}

// SetRoleMappings replaces the role mappings of requirement id.
func (s *Service) SetRoleMappings(ctx context.Context, actor model.Principal, id string, mappings []model.RoleMapping) error {
	_, err := s.Update(ctx, actor, id, RequirementPatch{RoleMappings: &mappings})
	return err
}

// SetSiteOverrides replaces the site overrides of requirement id.
func (s *Service) SetSiteOverrides(ctx context.Context, actor model.Principal, id string, overrides []model.SiteOverride) error {
	_, err := s.Update(ctx, actor, id, RequirementPatch{SiteOverrides: &overrides})
	return err
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation(fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperr.Validation(err.Error())
	}
	return nil
}

func (s *Service) checkRoleMappings(requirementID string, in []model.RoleMapping) ([]model.RoleMapping, error) {
	seen := make(map[model.Role]bool, len(in))
	out := make([]model.RoleMapping, 0, len(in))
	for _, m := range in {
		if !m.Role.Valid() {
			return nil, apperr.Validation("unknown role " + string(m.Role))
		}
		if seen[m.Role] {
			return nil, apperr.Validation("duplicate mapping for role " + string(m.Role))
		}
		seen[m.Role] = true
		m.RequirementID = requirementID
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) checkSiteOverrides(requirementID string, in []model.SiteOverride) ([]model.SiteOverride, error) {
	seen := make(map[string]bool, len(in))
	out := make([]model.SiteOverride, 0, len(in))
	for _, o := range in {
		o.SiteID = strings.TrimSpace(o.SiteID)
		if o.SiteID == "" {
			return nil, apperr.Validation("site override requires siteId")
		}
		if seen[o.SiteID] {
			return nil, apperr.Validation("duplicate override for site " + o.SiteID)
		}
		if o.DueDays != nil && *o.DueDays < 0 {
			return nil, apperr.Validation("dueDays must not be negative")
		}
		seen[o.SiteID] = true
		o.RequirementID = requirementID
		out = append(out, o)
	}
	return out, nil
}

// changed drops the local snapshot and tells other processes to do the same.
func (s *Service) changed(ctx context.Context) {
	s.cache.Invalidate()
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx); err != nil {
		s.log.Warn("registry invalidation broadcast failed", zap.Error(err))
	}
}

func (s *Service) txError(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("requirement")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAdmin(p model.Principal) error {
	if !p.Role.IsAdmin() {
		return apperr.Forbidden("administrator role required")
	}
	return nil
}
