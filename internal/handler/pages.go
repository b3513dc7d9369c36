package handler

import (
	"errors"
	"net/http"

	"github.com/glycoguard/glycoguard/internal/auth"
	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/internal/predictor"
	"github.com/glycoguard/glycoguard/internal/service"
	"github.com/glycoguard/glycoguard/internal/session"
	"github.com/glycoguard/glycoguard/internal/web"
)

// PageHandler serves the landing page and the signed-in prediction pages.
type PageHandler struct {
	*Handler
	predictions *service.PredictionService
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(base *Handler, predictions *service.PredictionService) *PageHandler {
	return &PageHandler{Handler: base, predictions: predictions}
}

// Landing renders the public home page.
// GET /
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PageLanding, h.page(w, r, "Home"))
}

// Dashboard shows the most recent predictions.
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustPrincipalFromContext(r.Context())

	recent, err := h.predictions.Recent(r.Context(), principal.UserID, model.DashboardRecentLimit)
	if err != nil {
		h.serverError(w, r, "load recent predictions failed", err)
		return
	}

	p := h.page(w, r, "Dashboard")
	p.Predictions = recent
	p.Available = h.predictions.Ready() == nil
	h.render(w, r, http.StatusOK, web.PageDashboard, p)
}

// PredictForm renders the feature form.
// GET /predict
func (h *PageHandler) PredictForm(w http.ResponseWriter, r *http.Request) {
	p := h.page(w, r, "New prediction")
	p.Available = h.predictions.Ready() == nil
	h.render(w, r, http.StatusOK, web.PagePredict, p)
}

// Predict scores the submitted features and stores the result.
// POST /predict
func (h *PageHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	principal := auth.MustPrincipalFromContext(r.Context())

	rec, err := h.predictions.Predict(r.Context(), principal.UserID, r.PostForm)
	var vErr *service.ValidationError
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/dashboard", session.CategorySuccess, service.ResultMessage(rec))
	case errors.As(err, &vErr):
		p := h.page(w, r, "New prediction")
		p.Flashes = append(p.Flashes, session.Flash{Category: session.CategoryError, Message: vErr.Message})
		p.Form = submitted(r)
		p.Available = true
		h.render(w, r, http.StatusUnprocessableEntity, web.PagePredict, p)
	case errors.Is(err, predictor.ErrUnavailable):
		p := h.page(w, r, "New prediction")
		p.Flashes = append(p.Flashes, session.Flash{Category: session.CategoryError, Message: service.MsgPredictorUnavailable})
		h.render(w, r, http.StatusServiceUnavailable, web.PagePredict, p)
	default:
		h.serverError(w, r, "prediction failed", err)
	}
}

// History lists every prediction of the current user, newest first.
// GET /history
func (h *PageHandler) History(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustPrincipalFromContext(r.Context())

	records, err := h.predictions.History(r.Context(), principal.UserID)
	if err != nil {
		h.serverError(w, r, "load prediction history failed", err)
		return
	}

	p := h.page(w, r, "History")
	p.Predictions = records
	h.render(w, r, http.StatusOK, web.PageHistory, p)
}

// Profile shows account details and prediction statistics.
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustPrincipalFromContext(r.Context())

	stats, err := h.predictions.Stats(r.Context(), principal.UserID)
	if err != nil {
		h.serverError(w, r, "load profile stats failed", err)
		return
	}

	p := h.page(w, r, "Profile")
	p.Stats = stats
	h.render(w, r, http.StatusOK, web.PageProfile, p)
}

// submitted echoes the posted feature values back into the form.
func submitted(r *http.Request) map[string]string {
	form := make(map[string]string, model.FeatureCount)
	for _, name := range model.FeatureNames() {
		form[name] = r.PostForm.Get(name)
	}
	return form
}
