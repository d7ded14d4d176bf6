package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bannerdesk/banner-service/internal/importer"
)

// Import runs a bulk import from a multipart form: "file" holds the CSV or
// XLSX sheet, "images" any number of image files referenced by name.
func (h *Handler) Import(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.badRequest(c, "expected a multipart form")
		return
	}
	sheets := form.File["file"]
	if len(sheets) != 1 {
		h.badRequest(c, "exactly one sheet file is required")
		return
	}

	content, err := readUpload(sheets[0])
	if err != nil {
		h.fail(c, err)
		return
	}
	sheet := importer.File{Name: sheets[0].Filename, ContentType: contentType(sheets[0]), Content: content}

	images := make([]importer.File, 0, len(form.File["images"]))
	for _, fh := range form.File["images"] {
		data, err := readUpload(fh)
		if err != nil {
			h.fail(c, err)
			return
		}
		images = append(images, importer.File{Name: fh.Filename, ContentType: contentType(fh), Content: data})
	}

	res, err := h.Importer.Run(c.Request.Context(), actor(c), sheet, images)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
