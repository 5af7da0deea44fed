package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/normalizer"
	"github.com/starford/mdnorm/internal/resolve"
)

// Runner is the run service surface used by the API.
type Runner interface {
	TryRun(ctx context.Context) (*models.Report, error)
	Latest() (*models.Report, error)
	Runs(limit int) ([]models.Report, error)
	RunByID(id string) (*models.Report, error)
	Preview(path string, content []byte) (*normalizer.Result, error)
	ResolveReference(name string) (resolve.Decision, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc Runner
}

// NewHandler creates a new Handler.
func NewHandler(svc Runner) *Handler {
	return &Handler{svc: svc}
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent runs
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	RunListResponse
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []models.Report{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Total: len(runs)})
}

// LatestRun handles GET /api/runs/latest.
//
//	@Summary		Get the most recent run
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	Report
//	@Failure		404	{object}	errResponse
//	@Router			/runs/latest [get]
func (h *Handler) LatestRun(w http.ResponseWriter, _ *http.Request) {
	rep, err := h.svc.Latest()
	h.writeReport(w, rep, err)
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get a run by id
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run id"
//	@Success		200	{object}	Report
//	@Failure		404	{object}	errResponse
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.RunByID(chi.URLParam(r, "id"))
	h.writeReport(w, rep, err)
}

func (h *Handler) writeReport(w http.ResponseWriter, rep *models.Report, err error) {
	if err != nil {
		writeError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// StartRun handles POST /api/runs.
//
//	@Summary		Run a normalisation pass now
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	Report
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs [post]
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not cancel a run that is writing files.
	rep, err := h.svc.TryRun(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, "run", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Preview handles POST /api/preview.
//
//	@Summary		Normalise a document without writing it
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"Document to preview"
//	@Success		200		{object}	PreviewResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Preview(req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "preview "+req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse(res))
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a wiki reference
//	@Tags			tools
//	@Produce		json
//	@Param			name	query		string	true	"Reference text, e.g. Name#Heading|Shown"
//	@Success		200		{object}	ResolveResponse
//	@Failure		400		{object}	errResponse
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	d, err := h.svc.ResolveReference(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{
		Name:   name,
		Action: d.Action.String(),
		Text:   d.Text,
		Reason: d.Reason,
	})
}
