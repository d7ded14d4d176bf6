package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bannerdesk/banner-service/internal/comments"
)

func (h *Handler) ListComments(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := h.Comments.ListComments(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": out})
}

func (h *Handler) AddComment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var in comments.AddCommentInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	in.ImageID = id

	comment, err := h.Comments.AddComment(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) DeleteComment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Comments.DeleteComment(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkThreadRead(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Comments.MarkThreadRead(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
