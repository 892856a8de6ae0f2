package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"painel/internal/core"
	"painel/internal/log"
)

type uploadResponse struct {
	Filename         string    `json:"filename"`
	Kind             core.Kind `json:"type"`
	RecordsProcessed int       `json:"recordsProcessed"`
}

type importRequest struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
	Kind          string `json:"kind"`
	HeaderRow     *int   `json:"header_row,omitempty"`
}

type manualSaleRequest struct {
	Date    string          `json:"date"`
	Product string          `json:"product"`
	Net     decimal.Decimal `json:"net"`
	Gross   decimal.Decimal `json:"gross"`
}

// handleUpload ingests a multipart spreadsheet in the "file" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	memLimit := s.maxUploadBytes
	if memLimit > 32<<20 {
		memLimit = 32 << 20
	}
	if err := r.ParseMultipartForm(memLimit); err != nil {
		writeError(w, r, log.OpUpload, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	kind, err := core.ParseKind(r.FormValue("kind"))
	if err != nil {
		writeError(w, r, log.OpUpload, err)
		return
	}
	headerRow, err := parseHeaderRow(r.FormValue("header_row"))
	if err != nil {
		writeError(w, r, log.OpUpload, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, log.OpUpload, fmt.Errorf("%w: missing file field", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, log.OpUpload, fmt.Errorf("read upload: %w", err))
		return
	}

	n, err := s.dash.UploadFile(r.Context(), project, header.Filename, data, kind, headerRow)
	if err != nil {
		writeError(w, r, log.OpUpload, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		Filename:         header.Filename,
		Kind:             kind,
		RecordsProcessed: n,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	if req.SpreadsheetID == "" || req.Range == "" {
		writeError(w, r, log.OpImport, fmt.Errorf("%w: spreadsheet_id and range are required", errBadRequest))
		return
	}

	n, err := s.dash.ImportSheet(r.Context(), chi.URLParam(r, "project"), req.SpreadsheetID, req.Range, kind, req.HeaderRow)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		Filename:         req.SpreadsheetID + "!" + req.Range,
		Kind:             kind,
		RecordsProcessed: n,
	})
}

func (s *Server) handleUploadHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	records, err := s.dash.UploadHistory(r.Context(), chi.URLParam(r, "project"), limit)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	if records == nil {
		records = []core.UploadRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.DeleteUpload(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.dash.AvailablePeriods(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	if periods == nil {
		periods = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	report, err := s.dash.GetKPIsForPeriod(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	trends, err := s.dash.GetTrends(r.Context(), chi.URLParam(r, "project"), period)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "trends": trends})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := s.dash.GetPayout(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (s *Server) handleClearPeriod(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.ClearPeriod(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "period")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.DeleteProject(r.Context(), chi.URLParam(r, "project")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddManualSale(w http.ResponseWriter, r *http.Request) {
	var req manualSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "manual_sale", err)
		return
	}
	sale, err := s.dash.AddManualSale(r.Context(), chi.URLParam(r, "project"),
		req.Date, sanitizeInput(req.Product), req.Net, req.Gross)
	if err != nil {
		writeError(w, r, "manual_sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleListManualSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.dash.ListManualSales(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleRemoveManualSale(w http.ResponseWriter, r *http.Request) {
	err := s.dash.RemoveManualSale(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "period"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.dash.GetSettings(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings replaces the settings of the project in the path; a
// projectId in the body is ignored.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	var settings core.ProjectSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, r, "settings", err)
		return
	}
	settings.ProjectID = project
	if err := s.dash.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, r, "settings", err)
		return
	}
	saved, err := s.dash.GetSettings(r.Context(), project)
	if err != nil {
		writeError(w, r, "settings", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
