package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/digest"
	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/recommend"
	"github.com/pauljones0/creator-deal-tracker/internal/tracker"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockService struct {
	deal      models.Deal
	deals     []models.Deal
	err       error
	outcome   enrichment.Outcome
	advisory  bool
	attention tracker.Attention

	lastOwner   string
	lastID      string
	lastFilter  tracker.Filter
	lastNewDeal models.NewDeal
	lastStatus  models.Status
	lastText    string
	calls       []string
}

func (m *mockService) record(name, id string) {
	m.calls = append(m.calls, name)
	m.lastID = id
}

func (m *mockService) CreateDeal(_ context.Context, ownerID string, in models.NewDeal) (models.Deal, error) {
	m.record("CreateDeal", "")
	m.lastOwner, m.lastNewDeal = ownerID, in
	return m.deal, m.err
}

func (m *mockService) QuickCreate(_ context.Context, ownerID, brandName string) (models.Deal, error) {
	m.record("QuickCreate", "")
	m.lastOwner, m.lastText = ownerID, brandName
	return m.deal, m.err
}

func (m *mockService) ListDeals(_ context.Context, ownerID string, f tracker.Filter) ([]models.Deal, error) {
	m.record("ListDeals", "")
	m.lastOwner, m.lastFilter = ownerID, f
	return m.deals, m.err
}

func (m *mockService) GetDeal(_ context.Context, id string) (models.Deal, error) {
	m.record("GetDeal", id)
	return m.deal, m.err
}

func (m *mockService) DeleteDeal(_ context.Context, id string) error {
	m.record("DeleteDeal", id)
	return m.err
}

func (m *mockService) ChangeStatus(_ context.Context, id string, status models.Status) (models.Deal, error) {
	m.record("ChangeStatus", id)
	m.lastStatus = status
	return m.deal, m.err
}

func (m *mockService) LogFollowUp(_ context.Context, id, description string) (tracker.FollowUpResult, error) {
	m.record("LogFollowUp", id)
	m.lastText = description
	return tracker.FollowUpResult{Deal: m.deal, GhostingAdvisory: m.advisory}, m.err
}

func (m *mockService) UpdateNotes(_ context.Context, id, notes string) (models.Deal, error) {
	m.record("UpdateNotes", id)
	m.lastText = notes
	return m.deal, m.err
}

func (m *mockService) UpdateDetails(_ context.Context, id string, _ models.DealDetails) (models.Deal, error) {
	m.record("UpdateDetails", id)
	return m.deal, m.err
}

func (m *mockService) RunRateCheck(_ context.Context, id string, _ models.RateCheckInput) (models.Deal, enrichment.Outcome, error) {
	m.record("RunRateCheck", id)
	return m.deal, m.outcome, m.err
}

func (m *mockService) RunBriefAnalysis(_ context.Context, id, briefText string) (models.Deal, enrichment.Outcome, error) {
	m.record("RunBriefAnalysis", id)
	m.lastText = briefText
	return m.deal, m.outcome, m.err
}

func (m *mockService) RunBriefAnalysisFromURL(_ context.Context, id, rawURL string) (models.Deal, enrichment.Outcome, error) {
	m.record("RunBriefAnalysisFromURL", id)
	m.lastText = rawURL
	return m.deal, m.outcome, m.err
}

func (m *mockService) Recommend(_ context.Context, id string) (recommend.Action, error) {
	m.record("Recommend", id)
	if m.err != nil {
		return recommend.Action{}, m.err
	}
	return recommend.Evaluate(m.deal, now), nil
}

func (m *mockService) Attention(_ context.Context, ownerID string) (tracker.Attention, error) {
	m.record("Attention", "")
	m.lastOwner = ownerID
	return m.attention, m.err
}

func (m *mockService) View(d models.Deal) tracker.DealView {
	return tracker.NewView(d, now)
}

type mockDigests struct {
	owner string
	err   error
}

func (m *mockDigests) RunOwner(_ context.Context, ownerID string) (digest.Result, error) {
	m.owner = ownerID
	return digest.Result{OwnerID: ownerID, Sent: true, MessageID: "msg-1"}, m.err
}

func sampleDeal() models.Deal {
	return models.Deal{
		ID:                   "deal-1",
		OwnerID:              "owner-1",
		BrandName:            "Glossier",
		Platform:             models.PlatformInstagram,
		Status:               models.StatusReplied,
		FollowUpIntervalDays: 7,
		LastContactedAt:      now.Add(-8 * 24 * time.Hour),
		NextFollowUpAt:       now.Add(-24 * time.Hour),
		Timeline:             []models.TimelineEvent{},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHealth(t *testing.T) {
	rec := do(t, New(&mockService{}, &mockDigests{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	rec := do(t, New(&mockService{}, &mockDigests{}), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("Expected default registry metrics in response")
	}
}

func TestCreateDeal(t *testing.T) {
	svc := &mockService{deal: sampleDeal()}
	rec := do(t, New(svc, &mockDigests{}), http.MethodPost, "/owners/owner-1/deals",
		`{"brandName":"Glossier","platform":"Instagram","followUpIntervalDays":5}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastOwner != "owner-1" || svc.lastNewDeal.BrandName != "Glossier" || svc.lastNewDeal.FollowUpIntervalDays != 5 {
		t.Errorf("CreateDeal called with owner %q, %+v", svc.lastOwner, svc.lastNewDeal)
	}

	var view tracker.DealView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.ID != "deal-1" || !view.Overdue || view.Recommendation.Type != recommend.ActionFollowUp {
		t.Errorf("Unexpected view: id=%s overdue=%v rec=%+v", view.ID, view.Overdue, view.Recommendation)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation", fmt.Errorf("%w: brandName is required", models.ErrValidation), http.StatusBadRequest, "brandName is required"},
		{"not found", fmt.Errorf("deal x: %w", models.ErrDealNotFound), http.StatusNotFound, "deal not found"},
		{"exists", models.ErrDealExists, http.StatusConflict, "deal already exists"},
		{"storage", errors.New("rpc error: code = Unavailable"), http.StatusInternalServerError, "failed to load deal, please try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, New(&mockService{err: tt.err}, &mockDigests{}), http.MethodGet, "/deals/x", "")
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("Body %s does not contain %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantCode == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "rpc error") {
				t.Error("Internal errors must not leak to clients")
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	svc := &mockService{}
	rec := do(t, New(svc, &mockDigests{}), http.MethodPost, "/deals/deal-1/status", `{"status":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if len(svc.calls) != 0 {
		t.Errorf("Service should not be called, got %v", svc.calls)
	}
}

func TestListDeals(t *testing.T) {
	svc := &mockService{deals: []models.Deal{sampleDeal(), sampleDeal()}}
	rec := do(t, New(svc, &mockDigests{}), http.MethodGet,
		"/owners/owner-1/deals?search=gloss&platform=Instagram&quick=followup&sort=value", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	want := tracker.Filter{Search: "gloss", Platform: models.PlatformInstagram, Quick: tracker.QuickFollowUp, Sort: tracker.SortValue}
	if svc.lastFilter != want {
		t.Errorf("Filter = %+v, want %+v", svc.lastFilter, want)
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Deals) != 2 {
		t.Errorf("Expected 2 deals, got %d", resp.Count)
	}
	if !resp.Filtered {
		t.Error("Expected filtered board")
	}
}

func TestListDeals_EmptyIsArray(t *testing.T) {
	rec := do(t, New(&mockService{}, &mockDigests{}), http.MethodGet, "/owners/owner-1/deals", "")
	if !strings.Contains(rec.Body.String(), `"deals":[]`) {
		t.Errorf("Expected empty array, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"filtered":false`) {
		t.Errorf("Unfiltered board reported as filtered: %s", rec.Body.String())
	}
}

func TestListDeals_SortAloneIsNotFiltered(t *testing.T) {
	rec := do(t, New(&mockService{}, &mockDigests{}), http.MethodGet, "/owners/owner-1/deals?sort=value", "")
	if !strings.Contains(rec.Body.String(), `"filtered":false`) {
		t.Errorf("Sorting should not count as filtering: %s", rec.Body.String())
	}
}

func TestLogFollowUp(t *testing.T) {
	svc := &mockService{deal: sampleDeal(), advisory: true}
	h := New(svc, &mockDigests{})

	rec := do(t, h, http.MethodPost, "/deals/deal-1/follow-ups", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 without body, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp followUpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.GhostingAdvisory || resp.Deal.ID != "deal-1" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	do(t, h, http.MethodPost, "/deals/deal-1/follow-ups", `{"description":"Sent media kit"}`)
	if svc.lastText != "Sent media kit" {
		t.Errorf("Description = %q", svc.lastText)
	}
}

func TestBriefAnalysis(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		svc := &mockService{deal: sampleDeal(), outcome: enrichment.OutcomeSuccess}
		rec := do(t, New(svc, &mockDigests{}), http.MethodPost, "/deals/deal-1/brief-analysis", `{"briefText":"Two reels"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if svc.calls[0] != "RunBriefAnalysis" || svc.lastText != "Two reels" {
			t.Errorf("calls = %v, text = %q", svc.calls, svc.lastText)
		}
		if !strings.Contains(rec.Body.String(), `"outcome":"success"`) {
			t.Errorf("Unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("url", func(t *testing.T) {
		svc := &mockService{deal: sampleDeal(), outcome: enrichment.OutcomeFallback}
		do(t, New(svc, &mockDigests{}), http.MethodPost, "/deals/deal-1/brief-analysis", `{"url":"https://brand.example.com/brief"}`)
		if svc.calls[0] != "RunBriefAnalysisFromURL" {
			t.Errorf("calls = %v", svc.calls)
		}
	})

	t.Run("both", func(t *testing.T) {
		svc := &mockService{}
		rec := do(t, New(svc, &mockDigests{}), http.MethodPost, "/deals/deal-1/brief-analysis", `{"url":"https://x.example.com","briefText":"y"}`)
		if rec.Code != http.StatusBadRequest || len(svc.calls) != 0 {
			t.Errorf("Expected 400 without service call, got %d, %v", rec.Code, svc.calls)
		}
	})
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
		wantCall string
	}{
		{http.MethodPost, "/owners/owner-1/deals/quick", `{"brandName":"Liquid Death"}`, http.StatusCreated, "QuickCreate"},
		{http.MethodGet, "/owners/owner-1/attention", "", http.StatusOK, "Attention"},
		{http.MethodPatch, "/deals/deal-1", `{"dealValue":1500}`, http.StatusOK, "UpdateDetails"},
		{http.MethodDelete, "/deals/deal-1", "", http.StatusNoContent, "DeleteDeal"},
		{http.MethodPost, "/deals/deal-1/status", `{"status":"Negotiating"}`, http.StatusOK, "ChangeStatus"},
		{http.MethodPut, "/deals/deal-1/notes", `{"notes":"Call on Friday"}`, http.StatusOK, "UpdateNotes"},
		{http.MethodPost, "/deals/deal-1/rate-check", `{"platform":"YouTube","contentType":"Integration"}`, http.StatusOK, "RunRateCheck"},
		{http.MethodGet, "/deals/deal-1/recommendation", "", http.StatusOK, "Recommend"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			svc := &mockService{deal: sampleDeal()}
			rec := do(t, New(svc, &mockDigests{}), tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if len(svc.calls) != 1 || svc.calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", svc.calls, tt.wantCall)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, New(&mockService{}, &mockDigests{}), http.MethodPut, "/deals/deal-1", `{}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestDigest(t *testing.T) {
	digests := &mockDigests{}
	rec := do(t, New(&mockService{}, digests), http.MethodPost, "/owners/owner-1/digest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if digests.owner != "owner-1" || !strings.Contains(rec.Body.String(), `"messageId":"msg-1"`) {
		t.Errorf("Unexpected digest run: owner=%s body=%s", digests.owner, rec.Body.String())
	}
}

func TestAttentionMessage(t *testing.T) {
	svc := &mockService{attention: tracker.Attention{OwnerID: "owner-1", OverdueCount: 3}}
	rec := do(t, New(svc, &mockDigests{}), http.MethodGet, "/owners/owner-1/attention", "")
	if !strings.Contains(rec.Body.String(), "You have 3 deals that need follow-up!") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestCORS(t *testing.T) {
	h := New(&mockService{}, &mockDigests{}, WithCORS([]string{"https://app.example.com"}))

	req := httptest.NewRequest(http.MethodOptions, "/deals/deal-1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORS_DisabledByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	New(&mockService{}, &mockDigests{}).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header, got %q", got)
	}
}

func TestRecoversFromPanic(t *testing.T) {
	svc := &mockService{}
	rec := do(t, New(svc, &panicDigests{}), http.MethodPost, "/owners/owner-1/digest", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

type panicDigests struct{}

func (panicDigests) RunOwner(context.Context, string) (digest.Result, error) {
	panic("digest exploded")
}
