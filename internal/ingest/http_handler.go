package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/qkbintel/registry/internal/domain"
	"github.com/qkbintel/registry/internal/repository"
)

type Handler struct {
	service *Service
	store   repository.CompanyStore
	changes repository.ChangeRepository
	runs    repository.RunRepository
}

// NewHTTPHandler exposes the ingestion pipeline and the stored registry data
// over a JSON API.
func NewHTTPHandler(service *Service, store repository.CompanyStore, changes repository.ChangeRepository, runs repository.RunRepository) http.Handler {
	h := &Handler{service: service, store: store, changes: changes, runs: runs}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", h.handleStartRun)
	mux.HandleFunc("GET /api/runs", h.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/changed", h.handleChangedIdentifiers)
	mux.HandleFunc("GET /api/companies", h.handleListCompanies)
	mux.HandleFunc("GET /api/companies/{nipt}", h.handleGetCompany)
	mux.HandleFunc("POST /api/companies/{nipt}/refresh", h.handleRefreshCompany)
	mux.HandleFunc("GET /api/companies/{nipt}/ownership", h.handleOwnership)
	mux.HandleFunc("GET /api/companies/{nipt}/ownership-chain", h.handleOwnershipChain)
	mux.HandleFunc("GET /api/companies/{nipt}/changes", h.handleCompanyChanges)
	mux.HandleFunc("GET /api/changes", h.handleRecentChanges)
	return mux
}

type startRunPayload struct {
	Categories  []string `json:"categories"`
	Limit       int      `json:"limit"`
	Concurrency int      `json:"concurrency"`
}

func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload startRunPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			return
		}
	}

	run, err := h.service.StartRun(r.Context(), RunOptions{
		Categories:  payload.Categories,
		Limit:       payload.Limit,
		Concurrency: payload.Concurrency,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 20)
	if !ok {
		return
	}
	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list runs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
		return
	}
	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleChangedIdentifiers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
		return
	}
	nipts, err := h.service.ChangedIdentifiers(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "changed": nipts})
}

func (h *Handler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 50)
	if !ok {
		return
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}
	companies, err := h.store.ListCompanies(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list companies: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

// handleGetCompany serves the stored company, ingesting it on a miss. An
// identifier that is unknown and currently unreachable reports unavailable,
// never a hard error.
func (h *Handler) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	nipt := domain.NormalizeNIPT(r.PathValue("nipt"))
	company, err := h.store.GetCompany(r.Context(), nipt)
	if errors.Is(err, repository.ErrNotFound) {
		company, err = h.service.EnsureFresh(r.Context(), nipt)
	}
	if err != nil {
		h.writeCompanyError(w, err)
		return
	}
	h.writeCompanyDetail(w, r, company)
}

// handleRefreshCompany forces a refresh from the source before serving.
func (h *Handler) handleRefreshCompany(w http.ResponseWriter, r *http.Request) {
	company, err := h.service.EnsureFresh(r.Context(), r.PathValue("nipt"))
	if err != nil {
		h.writeCompanyError(w, err)
		return
	}
	h.writeCompanyDetail(w, r, company)
}

func (h *Handler) writeCompanyDetail(w http.ResponseWriter, r *http.Request, company domain.Company) {
	shareholders, err := h.store.ListShareholders(r.Context(), company.NIPT)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	representatives, err := h.store.ListRepresentatives(r.Context(), company.NIPT)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company":         company,
		"shareholders":    shareholders,
		"representatives": representatives,
	})
}

func (h *Handler) writeCompanyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidNIPT):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUnavailable):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleOwnership(w http.ResponseWriter, r *http.Request) {
	nipt := domain.NormalizeNIPT(r.PathValue("nipt"))
	if _, err := h.store.GetCompany(r.Context(), nipt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	shareholders, err := h.store.ListShareholders(r.Context(), nipt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	representatives, err := h.store.ListRepresentatives(r.Context(), nipt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nipt":            nipt,
		"shareholders":    shareholders,
		"representatives": representatives,
	})
}

func (h *Handler) handleOwnershipChain(w http.ResponseWriter, r *http.Request) {
	nipt := domain.NormalizeNIPT(r.PathValue("nipt"))
	depth := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("depth")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "depth must be a positive integer", http.StatusBadRequest)
			return
		}
		depth = parsed
	}

	chain, err := domain.WalkOwnership(r.Context(), nipt, depth, h.store.ListShareholders)
	if err != nil {
		http.Error(w, fmt.Sprintf("walk ownership: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nipt": nipt, "chain": chain})
}

func (h *Handler) handleCompanyChanges(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 20)
	if !ok {
		return
	}
	nipt := domain.NormalizeNIPT(r.PathValue("nipt"))
	changes, err := h.changes.ListByCompany(r.Context(), nipt, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list changes: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *Handler) handleRecentChanges(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 200)
	if !ok {
		return
	}
	changes, err := h.changes.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list changes: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
