package stock

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.getItem)
	r.Put("/items/{id}", h.updateItem)
	r.Delete("/items/{id}", h.deactivateItem)
	r.Post("/items/{id}/adjust", h.adjustItem)
	r.Get("/items/{id}/movements", h.listMovements)
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
}
