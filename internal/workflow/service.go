// Package workflow implements the image review state machine: creating
// images, appending versions, and moving versions between statuses.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/notifications"
	"github.com/bannerdesk/banner-service/internal/pkg/cuid2"
	"github.com/bannerdesk/banner-service/internal/policy"
	"github.com/bannerdesk/banner-service/internal/storage"
	"github.com/bannerdesk/banner-service/internal/telemetry"
	"github.com/bannerdesk/banner-service/internal/validation"
)

// Service drives image creation, versioning and review.
type Service struct {
	store    database.Store
	files    storage.Storage
	notifier *notifications.Service
	metrics  *metrics.Recorder
	logger   *zerolog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithFiles sets where uploaded version files are written.
func WithFiles(files storage.Storage) Option {
	return func(s *Service) { s.files = files }
}

// WithNotifier enables upload and approval-request notifications.
func WithNotifier(n *notifications.Service) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source used for upload metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store database.Store, rec *metrics.Recorder, logger *zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		metrics: rec,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateImageInput describes a new image and its first version.
type CreateImageInput struct {
	ProductID   int64   `json:"productId" validate:"required,gt=0"`
	Title       string  `json:"title" validate:"required,max=200"`
	ExternalURL *string `json:"externalUrl,omitempty" validate:"omitempty,max=2048"`
	FilePath    string  `json:"filePath" validate:"required"`
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// TargetOf resolves the business and municipality that own a product.
func TargetOf(ctx context.Context, store database.CatalogStore, productID int64) (policy.Target, error) {
	product, err := store.GetProduct(ctx, productID)
	if err != nil {
		return policy.Target{}, apperr.FromStore(err, fmt.Sprintf("product %d", productID))
	}
	business, err := store.GetBusiness(ctx, product.BusinessID)
	if err != nil {
		return policy.Target{}, apperr.FromStore(err, fmt.Sprintf("business %d", product.BusinessID))
	}
	return policy.Target{BusinessID: business.ID, MunicipalityID: business.MunicipalityID}, nil
}

func (s *Service) deny(op string, format string, args ...any) error {
	s.metrics.Denied(op)
	return apperr.Forbidden(format, args...)
}

// CreateImage creates an image whose first version awaits review.
func (s *Service) CreateImage(ctx context.Context, actor *identity.User, in CreateImageInput) (img *database.ImageEntity, err error) {
	ctx, span := telemetry.StartSpan(ctx, "workflow.CreateImage", attribute.Int64("product.id", in.ProductID))
	defer func() { telemetry.EndSpan(span, err) }()

	if !policy.CanUpload(actor) {
		return nil, s.deny("create_image", "only admins and creators can upload images")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProduct(ctx, in.ProductID); err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("product %d", in.ProductID))
	}

	img, err = s.store.AddImage(ctx, database.NewImage{
		ProductID:        in.ProductID,
		Title:            in.Title,
		ExternalURL:      in.ExternalURL,
		CreatedByAdminID: actor.ID,
		FilePath:         in.FilePath,
		Status:           database.StatusPendingReview,
	})
	if err != nil {
		return nil, apperr.FromStore(err, "image")
	}

	s.metrics.VersionUploaded(true)
	if s.notifier != nil {
		s.notifier.VersionUploaded(ctx, img, img.Current())
	}
	s.logger.Info().
		Int64("image_id", img.ID).
		Int64("product_id", img.ProductID).
		Int64("user_id", actor.ID).
		Msg("Image created")
	return img, nil
}

// StoreUpload writes an uploaded file and returns its storage key. Images
// that already exist keep their files under their own prefix.
func (s *Service) StoreUpload(ctx context.Context, actor *identity.User, imageID int64, up Upload) (string, error) {
	if !policy.CanUpload(actor) {
		return "", s.deny("upload_file", "only admins and creators can upload images")
	}
	if s.files == nil {
		return "", errors.New("file storage is not configured")
	}
	if len(up.Content) == 0 {
		return "", apperr.Validation("uploaded file %q is empty", up.Filename)
	}

	uploadID := cuid2.New(cuid2.PrefixUpload)
	key := storage.BuildUploadKey(uploadID, up.Filename)
	if imageID > 0 {
		key = storage.BuildImageKey(imageID, uploadID, up.Filename)
	}
	err := s.files.Put(ctx, key, up.Content, &storage.Metadata{
		ContentType:  up.ContentType,
		OriginalName: up.Filename,
		UploadedBy:   actor.ID,
		UploadedAt:   s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("store upload %s: %w", key, err)
	}
	return key, nil
}

// UploadVersion stores the file and appends it as the image's next version.
func (s *Service) UploadVersion(ctx context.Context, actor *identity.User, imageID int64, up Upload) (*database.ImageVersion, error) {
	if _, err := s.store.GetImage(ctx, imageID); err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("image %d", imageID))
	}
	key, err := s.StoreUpload(ctx, actor, imageID, up)
	if err != nil {
		return nil, err
	}
	return s.AddVersion(ctx, actor, imageID, key)
}

// AddVersion appends version max+1 to the image. The new version awaits
// review; earlier versions keep their status.
func (s *Service) AddVersion(ctx context.Context, actor *identity.User, imageID int64, filePath string) (v *database.ImageVersion, err error) {
	ctx, span := telemetry.StartSpan(ctx, "workflow.AddVersion", attribute.Int64("image.id", imageID))
	defer func() { telemetry.EndSpan(span, err) }()

	if !policy.CanUpload(actor) {
		return nil, s.deny("add_version", "only admins and creators can upload versions")
	}
	if filePath == "" {
		return nil, apperr.Validation("file path is required")
	}

	v, err = s.store.AppendVersion(ctx, imageID, filePath, database.StatusPendingReview)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("image %d", imageID))
	}

	s.metrics.VersionUploaded(false)
	if s.notifier != nil {
		if img, err := s.store.GetImage(ctx, imageID); err == nil {
			s.notifier.VersionUploaded(ctx, img, v)
		}
	}
	s.logger.Info().
		Int64("image_id", imageID).
		Int("version", v.VersionNumber).
		Int64("user_id", actor.ID).
		Msg("Image version added")
	return v, nil
}

// UpdateVersionStatus moves one version to status. Setting the status a
// version already has is a no-op. Any status may follow any other.
func (s *Service) UpdateVersionStatus(ctx context.Context, actor *identity.User, imageID, versionID int64, status database.ImageStatus) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "workflow.UpdateVersionStatus",
		attribute.Int64("image.id", imageID),
		attribute.Int64("version.id", versionID),
		attribute.String("status", string(status)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if actor == nil {
		return apperr.Unauthorized("login required")
	}
	if !status.Valid() {
		return apperr.Validation("unknown status %q", status)
	}

	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return apperr.FromStore(err, fmt.Sprintf("image %d", imageID))
	}
	v := img.Version(versionID)
	if v == nil {
		return apperr.NotFound("version %d of image %d not found", versionID, imageID)
	}

	target, err := TargetOf(ctx, s.store, img.ProductID)
	if err != nil {
		return err
	}
	from := v.Status
	if !CanSetStatus(actor, target, from, status) {
		return s.deny("update_status", "not allowed to move image %d from %s to %s", imageID, from, status)
	}
	if from == status {
		return nil
	}
	if err := s.store.UpdateVersionStatus(ctx, imageID, versionID, status); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("version %d of image %d", versionID, imageID))
	}

	s.metrics.StatusTransition(string(from), string(status))
	if status == database.StatusPendingReview && s.notifier != nil {
		v.Status = status
		s.notifier.ApprovalRequested(ctx, img, v)
	}
	s.logger.Info().
		Int64("image_id", imageID).
		Int("version", v.VersionNumber).
		Str("from", string(from)).
		Str("to", string(status)).
		Int64("user_id", actor.ID).
		Msg("Version status updated")
	return nil
}

// GetImage returns an image the actor can see.
func (s *Service) GetImage(ctx context.Context, actor *identity.User, imageID int64) (*database.ImageEntity, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("login required")
	}
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("image %d", imageID))
	}
	target, err := TargetOf(ctx, s.store, img.ProductID)
	if err != nil {
		return nil, err
	}
	if !actor.InScope(target.MunicipalityID, target.BusinessID) {
		return nil, s.deny("get_image", "image %d is outside your scope", imageID)
	}
	return img, nil
}

// ListFilter narrows ListImages.
type ListFilter struct {
	ProductID *int64
	// Status matches the current version's status only.
	Status *database.ImageStatus
}

// ListImages returns the images the actor can see, most urgent first.
func (s *Service) ListImages(ctx context.Context, actor *identity.User, f ListFilter) ([]database.ImageEntity, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("login required")
	}
	images, err := s.store.ListImages(ctx, database.ImageFilter{ProductID: f.ProductID})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	targets := make(map[int64]policy.Target)
	out := images[:0]
	for _, img := range images {
		if f.Status != nil && CurrentStatus(&img) != *f.Status {
			continue
		}
		if !actor.IsGlobal() {
			t, ok := targets[img.ProductID]
			if !ok {
				t, err = TargetOf(ctx, s.store, img.ProductID)
				if err != nil {
					return nil, err
				}
				targets[img.ProductID] = t
			}
			if !actor.InScope(t.MunicipalityID, t.BusinessID) {
				continue
			}
		}
		out = append(out, img)
	}
	SortByUrgency(out)
	return out, nil
}

// Comparison pairs two versions of one image.
type Comparison struct {
	ImageID int64                 `json:"imageId"`
	Title   string                `json:"title"`
	Before  database.ImageVersion `json:"before"`
	After   database.ImageVersion `json:"after"`
	// Interval is the time between the two uploads.
	Interval      time.Duration `json:"interval"`
	StatusChanged bool          `json:"statusChanged"`
}

// CompareVersions returns two versions of an image ordered by version number.
func (s *Service) CompareVersions(ctx context.Context, actor *identity.User, imageID, a, b int64) (*Comparison, error) {
	img, err := s.GetImage(ctx, actor, imageID)
	if err != nil {
		return nil, err
	}
	va, vb := img.Version(a), img.Version(b)
	if va == nil {
		return nil, apperr.NotFound("version %d of image %d not found", a, imageID)
	}
	if vb == nil {
		return nil, apperr.NotFound("version %d of image %d not found", b, imageID)
	}
	if va.VersionNumber > vb.VersionNumber {
		va, vb = vb, va
	}
	return &Comparison{
		ImageID:       img.ID,
		Title:         img.Title,
		Before:        *va,
		After:         *vb,
		Interval:      vb.CreatedAt.Sub(va.CreatedAt),
		StatusChanged: va.Status != vb.Status,
	}, nil
}

// DeleteImage removes an image with its versions, comments and stored files.
func (s *Service) DeleteImage(ctx context.Context, actor *identity.User, imageID int64) error {
	if !policy.CanUpload(actor) {
		return s.deny("delete_image", "only admins and creators can delete images")
	}
	if err := s.store.DeleteImage(ctx, imageID); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("image %d", imageID))
	}

	if s.files != nil {
		keys, err := s.files.List(ctx, fmt.Sprintf("images/%d/", imageID))
		if err != nil {
			s.logger.Warn().Err(err).Int64("image_id", imageID).Msg("Failed to list image files")
		}
		for _, key := range keys {
			if err := s.files.Delete(ctx, key); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete image file")
			}
		}
	}
	s.logger.Info().Int64("image_id", imageID).Int64("user_id", actor.ID).Msg("Image deleted")
	return nil
}
