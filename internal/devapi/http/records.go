package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/pmboard/internal/devapi/service"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
	"github.com/aussiebroadwan/pmboard/pkg/httpx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// RecordsHandler serves CRUD for one resource collection.
type RecordsHandler struct {
	RecordService *service.RecordService
	Resource      string
}

// List godoc
//
//	@Summary		List records
//	@Description	Every query parameter is an equality filter on the payload, e.g. ?project_id=5
//	@Tags			Resources
//	@Produce		json
//	@Security		BearerAuth
//	@Param			resource	path		string	true	"projects, sprints, modules, tasks, timesheets, notifications or change-logs"
//	@Success		200			{array}		object
//	@Failure		401			{object}	httpx.ErrorBody
//	@Router			/{resource} [get].
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			filter[k] = vs[0]
		}
	}

	recs, err := h.RecordService.List(r.Context(), h.Resource, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, recs)
}

// Create godoc
//
//	@Summary	Create a record
//	@Tags		Resources
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		resource	path		string	true	"collection"
//	@Param		body		body		object	true	"payload"
//	@Success	201			{object}	object
//	@Failure	400			{object}	httpx.ErrorBody
//	@Router		/{resource} [post].
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := httpx.DecodeJSON(w, r, &data); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	rec, err := h.RecordService.Create(r.Context(), h.Resource, httpx.UserIDFromContext(r.Context()), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

// Get godoc
//
//	@Summary	Fetch a record
//	@Tags		Resources
//	@Produce	json
//	@Security	BearerAuth
//	@Param		resource	path		string	true	"collection"
//	@Param		id			path		string	true	"record id"
//	@Success	200			{object}	object
//	@Failure	404			{object}	httpx.ErrorBody
//	@Router		/{resource}/{id} [get].
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.RecordService.Get(r.Context(), h.Resource, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

// Update godoc
//
//	@Summary	Replace a record's payload
//	@Tags		Resources
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		resource	path		string	true	"collection"
//	@Param		id			path		string	true	"record id"
//	@Param		body		body		object	true	"payload"
//	@Success	200			{object}	object
//	@Failure	404			{object}	httpx.ErrorBody
//	@Router		/{resource}/{id} [put].
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := httpx.DecodeJSON(w, r, &data); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	rec, err := h.RecordService.Update(r.Context(), h.Resource, r.PathValue("id"), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

// Delete godoc
//
//	@Summary	Delete a record (admin only)
//	@Tags		Resources
//	@Security	BearerAuth
//	@Param		resource	path	string	true	"collection"
//	@Param		id			path	string	true	"record id"
//	@Success	204
//	@Failure	403	{object}	httpx.ErrorBody
//	@Failure	404	{object}	httpx.ErrorBody
//	@Router		/{resource}/{id} [delete].
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.RecordService.Delete(r.Context(), h.Resource, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrUnknownResource):
		httpx.WriteMessage(w, http.StatusNotFound, "Unknown resource")
	case errors.Is(err, service.ErrInvalidPayload):
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request")
	default:
		slogx.FromContext(r.Context()).Error("record operation failed", "resource", h.Resource, "err", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
	}
}
