package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sales-copilot/internal/domain"
	"sales-copilot/internal/usecase"
)

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.correlate)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", correlationHeader},
			ExposedHeaders: []string{correlationHeader},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, usecase.ErrorNotFound, "route_not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, usecase.ErrorInvalidInput, "method_not_allowed")
	})

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Patch("/", h.updateSession)

		r.Get("/call", h.getCall)
		r.Post("/call/start", h.startCall)
		r.Post("/call/retry-step", h.retryStep)
		r.Post("/call/responses", h.recordResponse)
		r.Post("/call/recommendations/refresh", h.refreshRecommendations)
		r.Post("/call/strategy", h.selectStrategy)
		r.Post("/call/steps/{stepID}/complete", h.completeStep)

		r.Get("/offer", h.offer)
		r.Post("/selection", h.changeSelection)
		r.Post("/selection/seed", h.seedSelection)
		r.Post("/bundles", h.saveBundle)
	})
	r.Get("/bundles/{bundleID}/items", h.bundleItems)
	r.Get("/bundles/{bundleID}/lineage", h.bundleLineage)
	r.Get("/objections", h.objections)
	return r
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeStrict(r.Body, v); err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid_body")
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func sessionID(r *http.Request) string { return chi.URLParam(r, "sessionID") }

func (h *Handler) getCall(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetCall(r.Context(), sessionID(r))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *Handler) startCall(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.StartCall(r.Context(), sessionID(r))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *Handler) retryStep(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RetryStep(r.Context(), sessionID(r))
	h.respond(w, r, http.StatusOK, view, err)
}

type recordResponseRequest struct {
	ResponseType   domain.ResponseType `json:"responseType"`
	Notes          *string             `json:"notes"`
	OfferPresented *string             `json:"offerPresented"`
}

func (h *Handler) recordResponse(w http.ResponseWriter, r *http.Request) {
	var in recordResponseRequest
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.svc.RecordResponse(r.Context(), sessionID(r), usecase.RecordResponseInput{
		ResponseType:   in.ResponseType,
		Notes:          in.Notes,
		OfferPresented: in.OfferPresented,
	})
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *Handler) refreshRecommendations(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RefreshRecommendations(r.Context(), sessionID(r))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *Handler) selectStrategy(w http.ResponseWriter, r *http.Request) {
	var rec domain.AIRecommendation
	if !h.decode(w, r, &rec) {
		return
	}
	view, err := h.svc.SelectStrategy(r.Context(), sessionID(r), rec)
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *Handler) completeStep(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.CompleteStep(r.Context(), sessionID(r), chi.URLParam(r, "stepID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *Handler) offer(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Offer(r.Context(), sessionID(r))
	h.respond(w, r, http.StatusOK, view, err)
}

type selectionRequest struct {
	Add    []domain.SelectedItem `json:"add"`
	Remove []domain.ItemRef      `json:"remove"`
}

func (h *Handler) changeSelection(w http.ResponseWriter, r *http.Request) {
	var in selectionRequest
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.svc.ChangeSelection(r.Context(), sessionID(r), usecase.SelectionChange{Add: in.Add, Remove: in.Remove})
	h.respond(w, r, http.StatusOK, view, err)
}

type seedRequest struct {
	BundleID string `json:"bundleId"`
}

func (h *Handler) seedSelection(w http.ResponseWriter, r *http.Request) {
	var in seedRequest
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.svc.SeedFromBundle(r.Context(), sessionID(r), in.BundleID)
	h.respond(w, r, http.StatusOK, view, err)
}

type saveBundleRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) saveBundle(w http.ResponseWriter, r *http.Request) {
	var in saveBundleRequest
	if !h.decode(w, r, &in) {
		return
	}
	b, err := h.svc.SaveSelectionAsBundle(r.Context(), sessionID(r), in.Name, in.Description)
	h.respond(w, r, http.StatusCreated, b, err)
}

type sessionUpdateRequest struct {
	FunnelStage   *domain.FunnelStage   `json:"funnelStage"`
	Outcome       *domain.Outcome       `json:"outcome"`
	Notes         *string               `json:"notes"`
	ClientContext *domain.ClientContext `json:"clientContext"`
}

func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request) {
	var in sessionUpdateRequest
	if !h.decode(w, r, &in) {
		return
	}
	err := h.svc.UpdateSession(r.Context(), sessionID(r), usecase.SessionUpdate{
		FunnelStage:   in.FunnelStage,
		Outcome:       in.Outcome,
		Notes:         in.Notes,
		ClientContext: in.ClientContext,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) bundleItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.BundleItems(r.Context(), chi.URLParam(r, "bundleID"))
	h.respond(w, r, http.StatusOK, map[string]any{"items": items}, err)
}

func (h *Handler) bundleLineage(w http.ResponseWriter, r *http.Request) {
	chain, err := h.svc.BundleLineage(r.Context(), chi.URLParam(r, "bundleID"))
	h.respond(w, r, http.StatusOK, map[string]any{"lineage": chain}, err)
}

func (h *Handler) objections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.FindObjectionHandlers(r.URL.Query().Get("q")))
}
