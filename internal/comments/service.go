// Package comments manages the discussion thread attached to each image.
// The thread is shared by every version of the image. Posting a comment
// raises the unread counter of the image's product; reading the thread
// clears it.
package comments

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/policy"
	"github.com/bannerdesk/banner-service/internal/validation"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

// Annotation types a client can draw.
const (
	AnnotationPin       = "pin"
	AnnotationRectangle = "rectangle"
	AnnotationCircle    = "circle"
	AnnotationArrow     = "arrow"
	AnnotationFreehand  = "freehand"
)

type Service struct {
	store   database.Store
	chat    policy.ChatPolicy
	metrics *metrics.Recorder
	logger  *zerolog.Logger
}

func NewService(store database.Store, chat policy.ChatPolicy, rec *metrics.Recorder, logger *zerolog.Logger) *Service {
	return &Service{store: store, chat: chat, metrics: rec, logger: logger}
}

// AnnotationInput is the drawable region a comment points at.
type AnnotationInput struct {
	X              float64 `json:"x" validate:"gte=0"`
	Y              float64 `json:"y" validate:"gte=0"`
	Width          float64 `json:"width" validate:"gte=0"`
	Height         float64 `json:"height" validate:"gte=0"`
	Path           string  `json:"path,omitempty"`
	AnnotationType string  `json:"annotationType" validate:"required,oneof=pin rectangle circle arrow freehand"`
	Color          string  `json:"color,omitempty" validate:"omitempty,max=32"`
	PinNumber      int     `json:"pinNumber,omitempty" validate:"gte=0"`
}

type AddCommentInput struct {
	ImageID    int64            `json:"imageId" validate:"required,gt=0"`
	Body       string           `json:"body" validate:"required,max=4000"`
	Annotation *AnnotationInput `json:"annotation,omitempty"`
}

// thread loads the image and checks the actor may see its thread.
func (s *Service) thread(ctx context.Context, actor *identity.User, imageID int64, op string) (*database.ImageEntity, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("login required")
	}
	if !s.chat.CanViewChat(actor) {
		s.metrics.Denied(op)
		return nil, apperr.Forbidden("comments are not available for role %s", actor.Role)
	}
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("image %d", imageID))
	}
	target, err := workflow.TargetOf(ctx, s.store, img.ProductID)
	if err != nil {
		return nil, err
	}
	if !actor.InScope(target.MunicipalityID, target.BusinessID) {
		s.metrics.Denied(op)
		return nil, apperr.Forbidden("image %d is outside your scope", imageID)
	}
	return img, nil
}

// ListComments returns the thread in posting order.
func (s *Service) ListComments(ctx context.Context, actor *identity.User, imageID int64) ([]database.Comment, error) {
	if _, err := s.thread(ctx, actor, imageID, "list_comments"); err != nil {
		return nil, err
	}
	out, err := s.store.ListComments(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return out, nil
}

// AddComment appends a comment attributed to the actor.
func (s *Service) AddComment(ctx context.Context, actor *identity.User, in AddCommentInput) (*database.Comment, error) {
	if actor != nil && !s.chat.CanSendChat(actor) {
		s.metrics.Denied("add_comment")
		return nil, apperr.Forbidden("role %s cannot post comments", actor.Role)
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.thread(ctx, actor, in.ImageID, "add_comment"); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("user-%d", actor.ID)
	if u, err := s.store.GetUser(ctx, actor.ID); err == nil {
		name = u.Name
	}

	c := database.Comment{
		ImageID:       in.ImageID,
		CommenterType: database.CommenterTypeFor(actor.Role),
		CommenterID:   actor.ID,
		CommenterName: name,
		Body:          in.Body,
	}
	if a := in.Annotation; a != nil {
		c.Annotation = &database.Annotation{
			X:              a.X,
			Y:              a.Y,
			Width:          a.Width,
			Height:         a.Height,
			Path:           a.Path,
			AnnotationType: a.AnnotationType,
			Color:          a.Color,
			PinNumber:      a.PinNumber,
		}
	}

	created, err := s.store.AddComment(ctx, c)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("comment on image %d", in.ImageID))
	}
	s.metrics.CommentPosted()
	s.logger.Info().
		Int64("comment_id", created.ID).
		Int64("image_id", created.ImageID).
		Str("commenter_type", string(created.CommenterType)).
		Msg("Comment posted")
	return created, nil
}

// DeleteComment removes a comment. Authors may delete their own comments;
// super admins may delete any.
func (s *Service) DeleteComment(ctx context.Context, actor *identity.User, commentID int64) error {
	if actor == nil {
		return apperr.Unauthorized("login required")
	}
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return apperr.FromStore(err, fmt.Sprintf("comment %d", commentID))
	}
	if c.CommenterID != actor.ID && actor.Role != identity.RoleSuperAdmin {
		s.metrics.Denied("delete_comment")
		return apperr.Forbidden("only the author can delete comment %d", commentID)
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("comment %d", commentID))
	}
	s.metrics.CommentDeleted()
	s.logger.Info().Int64("comment_id", commentID).Int64("user_id", actor.ID).Msg("Comment deleted")
	return nil
}

// MarkThreadRead clears the unread counter of the image's product. The
// counter tracks what the admin side has not read yet, so a read by a
// municipality or business user leaves it alone.
func (s *Service) MarkThreadRead(ctx context.Context, actor *identity.User, imageID int64) error {
	img, err := s.thread(ctx, actor, imageID, "read_comments")
	if err != nil {
		return err
	}
	if database.CommenterTypeFor(actor.Role) != database.CommenterAdmin {
		return nil
	}
	if err := s.store.ResetUnreadComments(ctx, img.ProductID); err != nil {
		return apperr.FromStore(err, fmt.Sprintf("product %d", img.ProductID))
	}
	s.logger.Debug().Int64("image_id", imageID).Int64("product_id", img.ProductID).Msg("Thread marked read")
	return nil
}
