// Package notifications records upload and review events for the dashboard
// bell and lets users toggle them read or unread.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
)

// Store is what the service reads and writes. Images, products and
// businesses are read to place a notification in a municipality/business
// scope.
type Store interface {
	database.NotificationStore
	GetImage(ctx context.Context, id int64) (*database.ImageEntity, error)
	GetProduct(ctx context.Context, id int64) (*database.Product, error)
	GetBusiness(ctx context.Context, id int64) (*database.Business, error)
}

// Service creates and lists notifications.
type Service struct {
	store  Store
	logger *zerolog.Logger
}

func NewService(store Store, logger *zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// VersionUploaded records that a new version of img was uploaded.
func (s *Service) VersionUploaded(ctx context.Context, img *database.ImageEntity, v *database.ImageVersion) {
	title := "画像アップロード"
	if v.VersionNumber > 1 {
		title = "修正版アップロード"
	}
	s.create(ctx, database.Notification{
		ImageID: &img.ID,
		Title:   title,
		Message: fmt.Sprintf("「%s」のバージョン%dがアップロードされました", img.Title, v.VersionNumber),
	})
}

// ApprovalRequested records that a version of img awaits review.
func (s *Service) ApprovalRequested(ctx context.Context, img *database.ImageEntity, v *database.ImageVersion) {
	s.create(ctx, database.Notification{
		ImageID: &img.ID,
		Title:   "承認依頼",
		Message: fmt.Sprintf("「%s」のバージョン%dの確認をお願いします", img.Title, v.VersionNumber),
	})
}

// create never fails the triggering operation; errors are logged.
func (s *Service) create(ctx context.Context, n database.Notification) {
	created, err := s.store.AddNotification(ctx, n)
	if err != nil {
		s.logger.Warn().Err(err).Str("title", n.Title).Msg("Failed to create notification")
		return
	}
	s.logger.Debug().Int64("notification_id", created.ID).Str("title", created.Title).Msg("Notification created")
}

// List returns the notifications the actor may see, newest first. Scoped
// users only see notifications about images under their municipality or
// business.
func (s *Service) List(ctx context.Context, actor *identity.User, unreadOnly bool, limit int) ([]database.Notification, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("login required")
	}
	if actor.IsGlobal() {
		out, err := s.store.ListNotifications(ctx, database.NotificationFilter{UnreadOnly: unreadOnly, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		return out, nil
	}

	all, err := s.store.ListNotifications(ctx, database.NotificationFilter{UnreadOnly: unreadOnly})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	scope := make(map[int64]bool)
	out := []database.Notification{}
	for _, n := range all {
		visible, err := s.visible(ctx, actor, n, scope)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SetRead marks a notification read or unread. Notifications outside the
// actor's scope are reported as missing.
func (s *Service) SetRead(ctx context.Context, actor *identity.User, id int64, read bool) error {
	if actor == nil {
		return apperr.Unauthorized("login required")
	}
	if !actor.IsGlobal() {
		n, err := s.store.GetNotification(ctx, id)
		if err != nil {
			return apperr.FromStore(err, fmt.Sprintf("notification %d", id))
		}
		visible, err := s.visible(ctx, actor, *n, nil)
		if err != nil {
			return err
		}
		if !visible {
			return apperr.NotFound("notification %d not found", id)
		}
	}
	err := s.store.SetNotificationRead(ctx, id, read)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("notification %d not found", id)
	}
	return err
}

// visible resolves the notification's image to its owning business. Results
// are cached per image in seen when it is non-nil. Notifications without an
// image, or whose image is gone, are only shown to global users.
func (s *Service) visible(ctx context.Context, actor *identity.User, n database.Notification, seen map[int64]bool) (bool, error) {
	if n.ImageID == nil {
		return false, nil
	}
	if v, ok := seen[*n.ImageID]; ok {
		return v, nil
	}
	v, err := s.imageInScope(ctx, actor, *n.ImageID)
	if err != nil {
		return false, err
	}
	if seen != nil {
		seen[*n.ImageID] = v
	}
	return v, nil
}

func (s *Service) imageInScope(ctx context.Context, actor *identity.User, imageID int64) (bool, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load image %d: %w", imageID, err)
	}
	product, err := s.store.GetProduct(ctx, img.ProductID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load product %d: %w", img.ProductID, err)
	}
	business, err := s.store.GetBusiness(ctx, product.BusinessID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load business %d: %w", product.BusinessID, err)
	}
	return actor.InScope(business.MunicipalityID, business.ID), nil
}
