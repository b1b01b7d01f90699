package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/storefront/internal/server/services"
)

type productRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	PriceCents    int64  `json:"price_cents"`
	StockQuantity int    `json:"stock_quantity"`
	CategoryID    string `json:"category_id"`
	IsActive      *bool  `json:"is_active"`
	Rate          int    `json:"rate"`
}

func (p productRequest) input() (services.ProductInput, error) {
	in := services.ProductInput{
		Name:          p.Name,
		Description:   p.Description,
		PriceCents:    p.PriceCents,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive == nil || *p.IsActive,
		Rate:          p.Rate,
	}
	id, err := uuid.Parse(p.CategoryID)
	if err != nil {
		return in, invalid("category_id must be a UUID")
	}
	in.CategoryID = id.String()
	return in, nil
}

type categoryRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsActive     *bool  `json:"is_active"`
	ImageURL     string `json:"image_url"`
	DisplayOrder int    `json:"display_order"`
}

func (c categoryRequest) input() services.CategoryInput {
	return services.CategoryInput{
		Name:         c.Name,
		Description:  c.Description,
		IsActive:     c.IsActive == nil || *c.IsActive,
		ImageURL:     c.ImageURL,
		DisplayOrder: c.DisplayOrder,
	}
}

type imageUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := a.products.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.products.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleListProductsByCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "categoryId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.products.ListByCategory(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	p, err := a.products.Create(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	p, err := a.products.Update(r.Context(), id, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProduct deactivates the product; cart lines keep their rows.
func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.products.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req imageUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Filename == "" {
		a.writeError(w, r, invalid("filename is required"))
		return
	}
	if req.ContentType == "" {
		req.ContentType = "application/octet-stream"
	}

	up, err := a.products.ImageUploadURL(r.Context(), id, req.Filename, req.ContentType)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	a.listCategories(w, r, false)
}

func (a *API) handleAdminListCategories(w http.ResponseWriter, r *http.Request) {
	a.listCategories(w, r, true)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	list, err := a.categories.List(r.Context(), includeInactive)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.categories.Get(r.Context(), id, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.categories.Create(r.Context(), req.input())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.categories.Update(r.Context(), id, req.input())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleSoftDeleteCategory(w http.ResponseWriter, r *http.Request) {
	a.deleteCategory(w, r, a.categories.SoftDelete)
}

func (a *API) handleHardDeleteCategory(w http.ResponseWriter, r *http.Request) {
	a.deleteCategory(w, r, a.categories.HardDelete)
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, id string) error) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := del(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
