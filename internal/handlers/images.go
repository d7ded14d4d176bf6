package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

// ImagesResponse lists images, most urgent first.
type ImagesResponse struct {
	Images []database.ImageEntity `json:"images" jsonschema:"required"`
	Total  int                    `json:"total" jsonschema:"required"`
}

// AddVersionRequest appends a version whose file is already stored.
type AddVersionRequest struct {
	FilePath string `json:"filePath" binding:"required" jsonschema:"required"`
}

// UpdateStatusRequest is the body of the status picker.
type UpdateStatusRequest struct {
	Status database.ImageStatus `json:"status" binding:"required" jsonschema:"required,enum=draft,enum=pending_review,enum=approved,enum=rejected,enum=revising"`
}

func (h *Handler) ListImages(c *gin.Context) {
	var f workflow.ListFilter
	var err error
	if f.ProductID, err = queryID(c, "productId"); err != nil {
		h.fail(c, err)
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := database.ImageStatus(raw)
		if !status.Valid() {
			h.badRequest(c, "invalid status %q", raw)
			return
		}
		f.Status = &status
	}

	images, err := h.Images.ListImages(c.Request.Context(), actor(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ImagesResponse{Images: images, Total: len(images)})
}

func (h *Handler) GetImage(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	img, err := h.Images.GetImage(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

// CreateImage accepts JSON with a stored file path, or a multipart form
// with productId, title, externalUrl and the file itself.
func (h *Handler) CreateImage(c *gin.Context) {
	ctx := c.Request.Context()
	var in workflow.CreateImageInput

	if isMultipart(c) {
		productID, err := strconv.ParseInt(c.PostForm("productId"), 10, 64)
		if err != nil {
			h.badRequest(c, "invalid productId %q", c.PostForm("productId"))
			return
		}
		in.ProductID = productID
		in.Title = c.PostForm("title")
		if u := c.PostForm("externalUrl"); u != "" {
			in.ExternalURL = &u
		}
		up, ok := h.formUpload(c, "file")
		if !ok {
			return
		}
		key, err := h.Images.StoreUpload(ctx, actor(c), 0, up)
		if err != nil {
			h.fail(c, err)
			return
		}
		in.FilePath = key
	} else if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}

	img, err := h.Images.CreateImage(ctx, actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, img)
}

func (h *Handler) formUpload(c *gin.Context, field string) (workflow.Upload, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		h.badRequest(c, "%s is required", field)
		return workflow.Upload{}, false
	}
	data, err := readUpload(fh)
	if err != nil {
		h.fail(c, err)
		return workflow.Upload{}, false
	}
	return workflow.Upload{Filename: fh.Filename, ContentType: contentType(fh), Content: data}, true
}

func (h *Handler) AddVersion(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	var v *database.ImageVersion
	if isMultipart(c) {
		up, ok := h.formUpload(c, "file")
		if !ok {
			return
		}
		v, err = h.Images.UploadVersion(c.Request.Context(), actor(c), id, up)
	} else {
		var req AddVersionRequest
		if err := bindJSON(c, &req); err != nil {
			h.fail(c, err)
			return
		}
		v, err = h.Images.AddVersion(c.Request.Context(), actor(c), id, req.FilePath)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) UpdateVersionStatus(c *gin.Context) {
	imageID, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	versionID, err := pathID(c, "versionId")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req UpdateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.Images.UpdateVersionStatus(ctx, actor(c), imageID, versionID, req.Status); err != nil {
		h.fail(c, err)
		return
	}
	img, err := h.Images.GetImage(ctx, actor(c), imageID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

func (h *Handler) CompareVersions(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	a, errA := queryID(c, "a")
	b, errB := queryID(c, "b")
	if errA != nil || errB != nil || a == nil || b == nil {
		h.fail(c, apperr.Validation("query parameters a and b must be version ids"))
		return
	}
	cmp, err := h.Images.CompareVersions(c.Request.Context(), actor(c), id, *a, *b)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) DeleteImage(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Images.DeleteImage(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
