package export

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	h := &Handler{service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/changes/export", h.handleChangesExport)
	mux.HandleFunc("GET /api/companies/export", h.handleCompaniesExport)
	return mux
}

func (h *Handler) handleChangesExport(w http.ResponseWriter, r *http.Request) {
	limit := 1000
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	f, err := h.service.ChangesWorkbook(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("build export: %v", err), http.StatusInternalServerError)
		return
	}
	serveWorkbook(w, f, "ownership-changes")
}

func (h *Handler) handleCompaniesExport(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.CompaniesWorkbook(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("build export: %v", err), http.StatusInternalServerError)
		return
	}
	serveWorkbook(w, f, "companies")
}

func serveWorkbook(w http.ResponseWriter, f *excelize.File, name string) {
	defer func() { _ = f.Close() }()

	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		// Headers are gone at this point; just log it.
		log.Printf("[EXPORT] write workbook %s: %v", filename, err)
	}
}
