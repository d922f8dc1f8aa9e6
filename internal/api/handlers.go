package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/tracker"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// Filtered tells an empty board apart from a board with no matches.
type listResponse struct {
	Deals    []tracker.DealView `json:"deals"`
	Count    int                `json:"count"`
	Filtered bool               `json:"filtered"`
}

type enrichmentResponse struct {
	Deal    tracker.DealView   `json:"deal"`
	Outcome enrichment.Outcome `json:"outcome"`
}

type followUpResponse struct {
	Deal             tracker.DealView `json:"deal"`
	GhostingAdvisory bool             `json:"ghostingAdvisory"`
}

type attentionResponse struct {
	tracker.Attention
	Message string `json:"message"`
}

type quickCreateRequest struct {
	BrandName string `json:"brandName"`
}

type statusRequest struct {
	Status models.Status `json:"status"`
}

type followUpRequest struct {
	Description string `json:"description"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type briefRequest struct {
	BriefText string `json:"briefText"`
	URL       string `json:"url"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := tracker.Filter{
		Search:   q.Get("search"),
		Platform: models.Platform(q.Get("platform")),
		Status:   models.Status(q.Get("status")),
		Quick:    tracker.QuickFilter(q.Get("quick")),
		Sort:     tracker.SortOrder(q.Get("sort")),
	}
	deals, err := s.deals.ListDeals(r.Context(), chi.URLParam(r, "owner"), f)
	if err != nil {
		writeError(w, err, "failed to list deals")
		return
	}
	views := make([]tracker.DealView, 0, len(deals))
	for _, d := range deals {
		views = append(views, s.deals.View(d))
	}
	writeJSON(w, http.StatusOK, listResponse{Deals: views, Count: len(views), Filtered: f.Active()})
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var in models.NewDeal
	if !decode(w, r, &in) {
		return
	}
	d, err := s.deals.CreateDeal(r.Context(), chi.URLParam(r, "owner"), in)
	if err != nil {
		writeError(w, err, "failed to create deal")
		return
	}
	writeJSON(w, http.StatusCreated, s.deals.View(d))
}

func (s *Server) handleQuickCreate(w http.ResponseWriter, r *http.Request) {
	var req quickCreateRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.deals.QuickCreate(r.Context(), chi.URLParam(r, "owner"), req.BrandName)
	if err != nil {
		writeError(w, err, "failed to save deal")
		return
	}
	writeJSON(w, http.StatusCreated, s.deals.View(d))
}

func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	a, err := s.deals.Attention(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err, "failed to compute attention summary")
		return
	}
	writeJSON(w, http.StatusOK, attentionResponse{Attention: a, Message: a.Message()})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	res, err := s.digests.RunOwner(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err, "failed to deliver digest")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	d, err := s.deals.GetDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "failed to load deal")
		return
	}
	writeJSON(w, http.StatusOK, s.deals.View(d))
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var details models.DealDetails
	if !decode(w, r, &details) {
		return
	}
	d, err := s.deals.UpdateDetails(r.Context(), chi.URLParam(r, "id"), details)
	if err != nil {
		writeError(w, err, "failed to update deal")
		return
	}
	writeJSON(w, http.StatusOK, s.deals.View(d))
}

func (s *Server) handleDeleteDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.deals.DeleteDeal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "failed to delete deal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.deals.ChangeStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err, "failed to change status")
		return
	}
	writeJSON(w, http.StatusOK, s.deals.View(d))
}

func (s *Server) handleLogFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	res, err := s.deals.LogFollowUp(r.Context(), chi.URLParam(r, "id"), req.Description)
	if err != nil {
		writeError(w, err, "failed to log follow-up")
		return
	}
	writeJSON(w, http.StatusOK, followUpResponse{Deal: s.deals.View(res.Deal), GhostingAdvisory: res.GhostingAdvisory})
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.deals.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeError(w, err, "failed to save notes")
		return
	}
	writeJSON(w, http.StatusOK, s.deals.View(d))
}

func (s *Server) handleRateCheck(w http.ResponseWriter, r *http.Request) {
	var in models.RateCheckInput
	if !decode(w, r, &in) {
		return
	}
	d, outcome, err := s.deals.RunRateCheck(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err, "failed to save rate check")
		return
	}
	writeJSON(w, http.StatusOK, enrichmentResponse{Deal: s.deals.View(d), Outcome: outcome})
}

func (s *Server) handleBriefAnalysis(w http.ResponseWriter, r *http.Request) {
	var req briefRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		d       models.Deal
		outcome enrichment.Outcome
		err     error
	)
	id := chi.URLParam(r, "id")
	switch {
	case strings.TrimSpace(req.URL) != "" && strings.TrimSpace(req.BriefText) != "":
		writeError(w, fmt.Errorf("%w: send either briefText or url, not both", models.ErrValidation), "")
		return
	case strings.TrimSpace(req.URL) != "":
		d, outcome, err = s.deals.RunBriefAnalysisFromURL(r.Context(), id, req.URL)
	default:
		d, outcome, err = s.deals.RunBriefAnalysis(r.Context(), id, req.BriefText)
	}
	if err != nil {
		writeError(w, err, "failed to save brief analysis")
		return
	}
	writeJSON(w, http.StatusOK, enrichmentResponse{Deal: s.deals.View(d), Outcome: outcome})
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	action, err := s.deals.Recommend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "failed to load deal")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// decode reads a JSON body into v, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported with action so the caller knows what to retry.
func writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrDealNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrDealExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		slog.Error("Request failed", "action", action, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: action + ", please try again"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
