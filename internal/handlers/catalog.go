package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bannerdesk/banner-service/internal/catalog"
	"github.com/bannerdesk/banner-service/internal/database"
)

func (h *Handler) ListMunicipalities(c *gin.Context) {
	out, err := h.Catalog.ListMunicipalities(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"municipalities": out})
}

func (h *Handler) GetMunicipality(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	m, err := h.Catalog.GetMunicipality(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMunicipality(c *gin.Context) {
	var in catalog.MunicipalityInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	m, err := h.Catalog.CreateMunicipality(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMunicipality(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var u database.MunicipalityUpdate
	if err := bindJSON(c, &u); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.UpdateMunicipality(c.Request.Context(), actor(c), id, u); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteMunicipality(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.DeleteMunicipality(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListBusinesses(c *gin.Context) {
	municipalityID, err := queryID(c, "municipalityId")
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := h.Catalog.ListBusinesses(c.Request.Context(), actor(c), database.BusinessFilter{MunicipalityID: municipalityID})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"businesses": out})
}

func (h *Handler) GetBusiness(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.Catalog.GetBusiness(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) CreateBusiness(c *gin.Context) {
	var in catalog.BusinessInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.Catalog.CreateBusiness(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) UpdateBusiness(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var u database.BusinessUpdate
	if err := bindJSON(c, &u); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.UpdateBusiness(c.Request.Context(), actor(c), id, u); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ToggleBusinessPortal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.Catalog.ToggleBusinessPortal(c.Request.Context(), actor(c), id, c.Param("portal"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBusiness(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.DeleteBusiness(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListProducts(c *gin.Context) {
	var f database.ProductFilter
	var err error
	if f.BusinessID, err = queryID(c, "businessId"); err != nil {
		h.fail(c, err)
		return
	}
	if f.ProjectID, err = queryID(c, "projectId"); err != nil {
		h.fail(c, err)
		return
	}
	out, err := h.Catalog.ListProducts(c.Request.Context(), actor(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.Catalog.GetProduct(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.Catalog.CreateProduct(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var u database.ProductUpdate
	if err := bindJSON(c, &u); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.UpdateProduct(c.Request.Context(), actor(c), id, u); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.DeleteProduct(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListProjects(c *gin.Context) {
	municipalityID, err := queryID(c, "municipalityId")
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := h.Catalog.ListProjects(c.Request.Context(), actor(c), database.ProjectFilter{MunicipalityID: municipalityID})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

func (h *Handler) CreateProject(c *gin.Context) {
	var in catalog.ProjectInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.Catalog.CreateProject(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var u database.ProjectUpdate
	if err := bindJSON(c, &u); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.UpdateProject(c.Request.Context(), actor(c), id, u); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Catalog.DeleteProject(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
