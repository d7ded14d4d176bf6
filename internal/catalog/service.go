// Package catalog manages municipalities, businesses, products and projects
// on behalf of a signed-in user, confining reads to the user's scope.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/policy"
	"github.com/bannerdesk/banner-service/internal/validation"
)

type Service struct {
	store   database.CatalogStore
	metrics *metrics.Recorder
	logger  *zerolog.Logger
}

func NewService(store database.CatalogStore, rec *metrics.Recorder, logger *zerolog.Logger) *Service {
	return &Service{store: store, metrics: rec, logger: logger}
}

type MunicipalityInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Code string `json:"code" validate:"required,max=20"`
}

type BusinessInput struct {
	MunicipalityID int64    `json:"municipalityId" validate:"required,gt=0"`
	Name           string   `json:"name" validate:"required,max=200"`
	Code           string   `json:"code" validate:"required,max=50"`
	Category       *string  `json:"category,omitempty"`
	Portals        []string `json:"portals,omitempty" validate:"dive,required"`
	ContactName    *string  `json:"contactName,omitempty"`
	ContactEmail   *string  `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ContactPhone   *string  `json:"contactPhone,omitempty"`
}

type ProductInput struct {
	BusinessID       int64                      `json:"businessId" validate:"required,gt=0"`
	ProjectID        *int64                     `json:"projectId,omitempty" validate:"omitempty,gt=0"`
	Name             string                     `json:"name" validate:"required,max=200"`
	Description      string                     `json:"description"`
	Genre            *string                    `json:"genre,omitempty"`
	ProductCode      *string                    `json:"productCode,omitempty"`
	Deadline         *time.Time                 `json:"deadline,omitempty"`
	DonationAmount   *int64                     `json:"donationAmount,omitempty" validate:"omitempty,gte=0"`
	TemperatureRange *database.TemperatureRange `json:"temperatureRange,omitempty" validate:"omitempty,temperature_range"`
	HasMaterials     *bool                      `json:"hasMaterials,omitempty"`
	Portals          []string                   `json:"portals,omitempty" validate:"dive,required"`
}

type ProjectInput struct {
	Name               string                 `json:"name" validate:"required,max=200"`
	MunicipalityID     int64                  `json:"municipalityId" validate:"required,gt=0"`
	Status             database.ProjectStatus `json:"status" validate:"omitempty,project_status"`
	CollectionDeadline *time.Time             `json:"collectionDeadline,omitempty"`
	Deadline           *time.Time             `json:"deadline,omitempty"`
}

func (s *Service) requireUser(actor *identity.User) error {
	if actor == nil {
		return apperr.Unauthorized("login required")
	}
	return nil
}

func (s *Service) requireEditor(actor *identity.User, op string) error {
	if err := s.requireUser(actor); err != nil {
		return err
	}
	if !policy.CanUpload(actor) {
		s.metrics.Denied(op)
		return apperr.Forbidden("only admins and creators can edit the catalog")
	}
	return nil
}

func (s *Service) requireAdmin(actor *identity.User, op string) error {
	if err := s.requireUser(actor); err != nil {
		return err
	}
	if actor.Role != identity.RoleSuperAdmin {
		s.metrics.Denied(op)
		return apperr.Forbidden("only admins can edit municipalities")
	}
	return nil
}

// homeMunicipality returns the municipality a scoped user is confined to.
// Global users get ok=false.
func (s *Service) homeMunicipality(ctx context.Context, actor *identity.User) (id int64, ok bool, err error) {
	switch {
	case actor.IsGlobal():
		return 0, false, nil
	case actor.Role == identity.RoleMunicipalityUser && actor.MunicipalityID != nil:
		return *actor.MunicipalityID, true, nil
	case actor.Role == identity.RoleBusinessUser && actor.BusinessID != nil:
		b, err := s.store.GetBusiness(ctx, *actor.BusinessID)
		if err != nil {
			return 0, false, apperr.FromStore(err, fmt.Sprintf("business %d", *actor.BusinessID))
		}
		return b.MunicipalityID, true, nil
	default:
		return 0, true, nil
	}
}

func (s *Service) businessVisible(actor *identity.User, b *database.Business) bool {
	return actor.InScope(b.MunicipalityID, b.ID)
}

func (s *Service) ListMunicipalities(ctx context.Context, actor *identity.User) ([]database.Municipality, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	all, err := s.store.ListMunicipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}
	home, scoped, err := s.homeMunicipality(ctx, actor)
	if err != nil || !scoped {
		return all, err
	}
	out := all[:0]
	for _, m := range all {
		if m.ID == home {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) GetMunicipality(ctx context.Context, actor *identity.User, id int64) (*database.Municipality, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	m, err := s.store.GetMunicipality(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("municipality %d", id))
	}
	home, scoped, err := s.homeMunicipality(ctx, actor)
	if err != nil {
		return nil, err
	}
	if scoped && home != id {
		return nil, apperr.Forbidden("municipality %d is outside your scope", id)
	}
	return m, nil
}

func (s *Service) CreateMunicipality(ctx context.Context, actor *identity.User, in MunicipalityInput) (*database.Municipality, error) {
	if err := s.requireAdmin(actor, "create_municipality"); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	m, err := s.store.AddMunicipality(ctx, database.Municipality{Name: in.Name, Code: in.Code})
	if err != nil {
		return nil, apperr.FromStore(err, "municipality")
	}
	s.logger.Info().Int64("municipality_id", m.ID).Int64("user_id", actor.ID).Msg("Municipality created")
	return m, nil
}

func (s *Service) UpdateMunicipality(ctx context.Context, actor *identity.User, id int64, u database.MunicipalityUpdate) error {
	if err := s.requireAdmin(actor, "update_municipality"); err != nil {
		return err
	}
	return apperr.FromStore(s.store.UpdateMunicipality(ctx, id, u), fmt.Sprintf("municipality %d", id))
}

// DeleteMunicipality fails with a conflict while businesses reference it.
func (s *Service) DeleteMunicipality(ctx context.Context, actor *identity.User, id int64) error {
	if err := s.requireAdmin(actor, "delete_municipality"); err != nil {
		return err
	}
	if err := s.store.DeleteMunicipality(ctx, id); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("municipality %d", id))
	}
	s.logger.Info().Int64("municipality_id", id).Int64("user_id", actor.ID).Msg("Municipality deleted")
	return nil
}

func (s *Service) ListBusinesses(ctx context.Context, actor *identity.User, f database.BusinessFilter) ([]database.Business, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	all, err := s.store.ListBusinesses(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	out := all[:0]
	for i := range all {
		if s.businessVisible(actor, &all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *Service) GetBusiness(ctx context.Context, actor *identity.User, id int64) (*database.Business, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("business %d", id))
	}
	if !s.businessVisible(actor, b) {
		return nil, apperr.Forbidden("business %d is outside your scope", id)
	}
	return b, nil
}

func (s *Service) CreateBusiness(ctx context.Context, actor *identity.User, in BusinessInput) (*database.Business, error) {
	if err := s.requireEditor(actor, "create_business"); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	b, err := s.store.AddBusiness(ctx, database.Business{
		MunicipalityID: in.MunicipalityID,
		Name:           in.Name,
		Code:           in.Code,
		Category:       in.Category,
		Portals:        database.NormalizePortals(in.Portals),
		ContactName:    in.ContactName,
		ContactEmail:   in.ContactEmail,
		ContactPhone:   in.ContactPhone,
	})
	if err != nil {
		return nil, apperr.FromStore(err, "business")
	}
	s.logger.Info().Int64("business_id", b.ID).Int64("user_id", actor.ID).Msg("Business created")
	return b, nil
}

func (s *Service) UpdateBusiness(ctx context.Context, actor *identity.User, id int64, u database.BusinessUpdate) error {
	if err := s.requireEditor(actor, "update_business"); err != nil {
		return err
	}
	return apperr.FromStore(s.store.UpdateBusiness(ctx, id, u), fmt.Sprintf("business %d", id))
}

// ToggleBusinessPortal flips one portal's membership in the business's set.
func (s *Service) ToggleBusinessPortal(ctx context.Context, actor *identity.User, id int64, portal string) (*database.Business, error) {
	if err := s.requireEditor(actor, "update_business"); err != nil {
		return nil, err
	}
	if portal == "" {
		return nil, apperr.Validation("portal is required")
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("business %d", id))
	}
	portals := database.TogglePortal(b.Portals, portal)
	if err := s.store.UpdateBusiness(ctx, id, database.BusinessUpdate{Portals: &portals}); err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("business %d", id))
	}
	b.Portals = portals
	return b, nil
}

// DeleteBusiness removes the business with its products and their images.
func (s *Service) DeleteBusiness(ctx context.Context, actor *identity.User, id int64) error {
	if err := s.requireEditor(actor, "delete_business"); err != nil {
		return err
	}
	if err := s.store.DeleteBusiness(ctx, id); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("business %d", id))
	}
	s.logger.Info().Int64("business_id", id).Int64("user_id", actor.ID).Msg("Business deleted")
	return nil
}

func (s *Service) ListProducts(ctx context.Context, actor *identity.User, f database.ProductFilter) ([]database.Product, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	all, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if actor.IsGlobal() {
		return all, nil
	}

	owners := make(map[int64]bool)
	out := all[:0]
	for _, p := range all {
		visible, ok := owners[p.BusinessID]
		if !ok {
			b, err := s.store.GetBusiness(ctx, p.BusinessID)
			if err != nil {
				return nil, apperr.FromStore(err, fmt.Sprintf("business %d", p.BusinessID))
			}
			visible = s.businessVisible(actor, b)
			owners[p.BusinessID] = visible
		}
		if visible {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) GetProduct(ctx context.Context, actor *identity.User, id int64) (*database.Product, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("product %d", id))
	}
	b, err := s.store.GetBusiness(ctx, p.BusinessID)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("business %d", p.BusinessID))
	}
	if !s.businessVisible(actor, b) {
		return nil, apperr.Forbidden("product %d is outside your scope", id)
	}
	return p, nil
}

func (s *Service) CreateProduct(ctx context.Context, actor *identity.User, in ProductInput) (*database.Product, error) {
	if err := s.requireEditor(actor, "create_product"); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	p, err := s.store.AddProduct(ctx, database.Product{
		BusinessID:       in.BusinessID,
		ProjectID:        in.ProjectID,
		Name:             in.Name,
		Description:      in.Description,
		Genre:            in.Genre,
		ProductCode:      in.ProductCode,
		Deadline:         in.Deadline,
		DonationAmount:   in.DonationAmount,
		TemperatureRange: in.TemperatureRange,
		HasMaterials:     in.HasMaterials,
		Portals:          database.NormalizePortals(in.Portals),
	})
	if err != nil {
		return nil, apperr.FromStore(err, "product")
	}
	s.logger.Info().Int64("product_id", p.ID).Int64("user_id", actor.ID).Msg("Product created")
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actor *identity.User, id int64, u database.ProductUpdate) error {
	if err := s.requireEditor(actor, "update_product"); err != nil {
		return err
	}
	if u.TemperatureRange != nil && !u.TemperatureRange.Valid() {
		return apperr.Validation("invalid temperatureRange %q", *u.TemperatureRange)
	}
	return apperr.FromStore(s.store.UpdateProduct(ctx, id, u), fmt.Sprintf("product %d", id))
}

// DeleteProduct removes the product with its images.
func (s *Service) DeleteProduct(ctx context.Context, actor *identity.User, id int64) error {
	if err := s.requireEditor(actor, "delete_product"); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("product %d", id))
	}
	s.logger.Info().Int64("product_id", id).Int64("user_id", actor.ID).Msg("Product deleted")
	return nil
}

func (s *Service) ListProjects(ctx context.Context, actor *identity.User, f database.ProjectFilter) ([]database.Project, error) {
	if err := s.requireUser(actor); err != nil {
		return nil, err
	}
	home, scoped, err := s.homeMunicipality(ctx, actor)
	if err != nil {
		return nil, err
	}
	if scoped {
		if f.MunicipalityID != nil && *f.MunicipalityID != home {
			return []database.Project{}, nil
		}
		f.MunicipalityID = &home
	}
	projects, err := s.store.ListProjects(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *Service) CreateProject(ctx context.Context, actor *identity.User, in ProjectInput) (*database.Project, error) {
	if err := s.requireEditor(actor, "create_project"); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = database.ProjectNotStarted
	}
	p, err := s.store.AddProject(ctx, database.Project{
		Name:               in.Name,
		MunicipalityID:     in.MunicipalityID,
		Status:             in.Status,
		CollectionDeadline: in.CollectionDeadline,
		Deadline:           in.Deadline,
	})
	if err != nil {
		return nil, apperr.FromStore(err, "project")
	}
	return p, nil
}

func (s *Service) UpdateProject(ctx context.Context, actor *identity.User, id int64, u database.ProjectUpdate) error {
	if err := s.requireEditor(actor, "update_project"); err != nil {
		return err
	}
	if u.Status != nil && !u.Status.Valid() {
		return apperr.Validation("invalid status %q", *u.Status)
	}
	return apperr.FromStore(s.store.UpdateProject(ctx, id, u), fmt.Sprintf("project %d", id))
}

// DeleteProject unlinks the project's products and removes the project.
func (s *Service) DeleteProject(ctx context.Context, actor *identity.User, id int64) error {
	if err := s.requireEditor(actor, "delete_project"); err != nil {
		return err
	}
	return apperr.FromStore(s.store.DeleteProject(ctx, id), fmt.Sprintf("project %d", id))
}
