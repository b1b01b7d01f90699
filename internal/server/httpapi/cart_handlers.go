package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/storefront/internal/common"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func subject(r *http.Request) string {
	claims, _ := ClaimsFromContext(r.Context())
	return claims.Subject
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	v, err := a.cart.GetCart(r.Context(), subject(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := uuid.Parse(req.ProductID)
	if err != nil {
		a.writeError(w, r, invalid("product_id must be a UUID"))
		return
	}
	if req.Quantity < 1 {
		a.writeError(w, r, invalid("quantity must be at least 1"))
		return
	}

	v, err := a.cart.AddToCart(r.Context(), subject(r), id.String(), req.Quantity)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleUpdateCartItem sets a line quantity; zero or less removes the line.
func (a *API) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	v, err := a.cart.UpdateCartItem(r.Context(), subject(r), productID, req.Quantity)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	ok, err := a.cart.RemoveFromCart(r.Context(), subject(r), productID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeError(w, r, common.ErrorNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	ok, err := a.cart.ClearCart(r.Context(), subject(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeError(w, r, common.ErrorNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
