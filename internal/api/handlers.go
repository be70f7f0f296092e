package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lta/internal/analysis"
	"lta/internal/config"
	"lta/internal/cpa"
	"lta/internal/frame"
	"lta/internal/jaccard"
	"lta/internal/models"
	"lta/internal/pipeline"
	"lta/internal/state"
	"lta/internal/store"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

const (
	MaxFileSize = 100 * 1024 * 1024 // 100MB
)

type Handler struct {
	CSVService *analysis.CSVService
	State      *state.AppState
	Defaults   config.Config
	Estimator  jaccard.Estimator
	Store      store.ResultStore // nil without a database
}

func NewHandler(csv *analysis.CSVService, st *state.AppState, defaults config.Config, est jaccard.Estimator, rs store.ResultStore) *Handler {
	if est == nil {
		est = jaccard.Default
	}
	return &Handler{
		CSVService: csv,
		State:      st,
		Defaults:   defaults,
		Estimator:  est,
		Store:      rs,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Post("/api/datasets", h.UploadDataset)
	r.Get("/api/datasets", h.ListDatasets)

	r.Post("/api/runs", h.CreateRun)
	r.Get("/api/runs/history", h.RunHistory)
	r.Get("/api/runs/{runID}", h.GetRun)
	r.Get("/api/runs/{runID}/classes/{class}", h.GetClass)
	r.Get("/api/runs/{runID}/similarity", h.GetSimilarity)
	r.Get("/api/runs/{runID}/enfc", h.GetFoldChanges)

	r.Post("/api/similarity", h.Similarity)
	r.Post("/api/cluster", h.Cluster)
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Datasets
// ============================================================================

// UploadDataset parses a measurement export. Level names may be overridden
// with the phenotype, tissue, mode and sample form fields.
func (h *Handler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxFileSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "Only CSV files are allowed", http.StatusBadRequest)
		return
	}

	levels := h.CSVService.Levels
	for field, dst := range map[string]*string{
		"phenotype": &levels.Condition,
		"tissue":    &levels.Compartment,
		"mode":      &levels.Mode,
		"sample":    &levels.SampleID,
	} {
		if v := r.FormValue(field); v != "" {
			*dst = v
		}
	}

	m, err := analysis.NewCSVService(levels).Read(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse CSV: %v", err), http.StatusBadRequest)
		return
	}
	d := h.State.AddDataset(header.Filename, m)
	ents, samps := m.Dims()

	resp := models.UploadResponse{
		Message:   fmt.Sprintf("File '%s' uploaded successfully", header.Filename),
		DatasetID: d.ID,
		Entities:  ents,
		Samples:   samps,
		Modes:     analysis.Modes(m),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	out := []models.DatasetStatus{}
	for _, d := range h.State.Datasets() {
		ents, samps := d.Matrix.Dims()
		out = append(out, models.DatasetStatus{
			DatasetID: d.ID,
			Filename:  d.FileName,
			Entities:  ents,
			Samples:   samps,
			Modes:     analysis.Modes(d.Matrix),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// ============================================================================
// Runs
// ============================================================================

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.DatasetIDs) == 0 {
		http.Error(w, "dataset_ids is required", http.StatusBadRequest)
		return
	}

	cfg := h.Defaults
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.BootReps != 0 {
		cfg.BootReps = req.BootReps
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.Order[0] != "" || req.Order[1] != "" {
		cfg.Order = req.Order
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := make(map[string][]*frame.Matrix)
	for _, id := range req.DatasetIDs {
		d, ok := h.State.GetDataset(id)
		if !ok {
			http.Error(w, fmt.Sprintf("Dataset %s not found", id), http.StatusNotFound)
			return
		}
		if err := analysis.SplitModes(d.Matrix, data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := pipeline.Run(r.Context(), cfg, data, pipeline.WithEstimator(h.Estimator))
	if err != nil {
		http.Error(w, fmt.Sprintf("Run failed: %v", err), statusFor(err))
		return
	}

	run := &state.Run{ID: state.NewID(), DatasetIDs: req.DatasetIDs, Result: res, Finished: time.Now()}
	if h.Store != nil {
		if err := h.Store.SaveRun(r.Context(), run.ID, cfg, res); err != nil {
			log.WithFields(log.Fields{"run": run.ID, "error": err}).Warn("could not persist run")
		} else {
			run.Persisted = true
		}
	}
	h.State.AddRun(run)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(runResponse(run))
}

func runResponse(run *state.Run) models.RunResponse {
	resp := models.RunResponse{
		RunID:        run.ID,
		Modes:        run.Result.Modes(),
		Similarities: len(run.Result.Similarities),
		Persisted:    run.Persisted,
	}
	for _, cs := range run.Result.Classes() {
		resp.Classes = append(resp.Classes, models.ClassSummary{
			Class:   cs.Class,
			Tables:  cs.Len(),
			Members: cs.Members(),
		})
	}
	return resp
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (*state.Run, bool) {
	id := chi.URLParam(r, "runID")
	run, ok := h.State.GetRun(id)
	if !ok {
		http.Error(w, fmt.Sprintf("Run %s not found", id), http.StatusNotFound)
	}
	return run, ok
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runResponse(run))
}

func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "class")
	cs, ok := run.Result.Class(name)
	if !ok {
		http.Error(w, fmt.Sprintf("Class %s not found", name), http.StatusNotFound)
		return
	}

	out := []models.ClassTableResponse{}
	for _, key := range cs.Keys() {
		t, _ := cs.Get(key)
		out = append(out, models.ClassTableResponse{
			Key:          key,
			Mode:         t.Mode,
			Compartments: t.Compartments,
			Conditions:   t.Conditions,
			Entities:     t.Entities,
			Present:      t.Rows(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *Handler) GetSimilarity(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	rows := run.Result.Similarities
	if class := r.URL.Query().Get("class"); class != "" {
		rows = nil
		for _, s := range run.Result.Similarities {
			if s.Class == class {
				rows = append(rows, s)
			}
		}
	}
	if rows == nil {
		rows = []models.SimilarityResult{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (h *Handler) GetFoldChanges(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	rows := run.Result.FoldChanges
	if rows == nil {
		rows = []models.FoldChange{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// RunHistory lists runs saved to the database
func (h *Handler) RunHistory(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "No database connection", http.StatusServiceUnavailable)
		return
	}
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list runs: %v", err), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// ============================================================================
// Single comparisons
// ============================================================================

func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.BootReps < 0 {
		http.Error(w, "boot_reps must be positive", http.StatusBadRequest)
		return
	}
	opts := []jaccard.Option{jaccard.Quiet(), jaccard.WithReps(h.Defaults.BootReps), jaccard.WithSeed(h.Defaults.Seed)}
	if req.PX != nil {
		opts = append(opts, jaccard.WithPX(*req.PX))
	}
	if req.PY != nil {
		opts = append(opts, jaccard.WithPY(*req.PY))
	}
	if req.BootReps != 0 {
		opts = append(opts, jaccard.WithReps(req.BootReps))
	}
	if req.Seed != nil {
		opts = append(opts, jaccard.WithSeed(*req.Seed))
	}

	x, y, err := jaccard.Validate(req.X, req.Y)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	res, err := h.Estimator.Bootstrap(x, y, opts...)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	resp := models.SimilarityResponse{
		Similarity: res.Similarity,
		Distance:   res.Distance(),
		PValue:     res.PValue,
		Degenerate: res.Degenerate.String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Cluster(w http.ResponseWriter, r *http.Request) {
	var req models.ClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	d, ok := h.State.GetDataset(req.DatasetID)
	if !ok {
		http.Error(w, fmt.Sprintf("Dataset %s not found", req.DatasetID), http.StatusNotFound)
		return
	}
	m := d.Matrix
	if req.Mode != "" {
		split, err := m.SplitBy(models.RoleMode)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if m, ok = split[req.Mode]; !ok {
			http.Error(w, fmt.Sprintf("Mode %s not in dataset", req.Mode), http.StatusNotFound)
			return
		}
	}

	var obs *mat.Dense
	if req.Components > 0 {
		var err error
		if obs, err = (cpa.PCA{Components: req.Components}).Normalize(m.Observations()); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		obs = cpa.Normalizer{}.Normalize(m.Observations())
	}

	hc := cpa.Hierarchical{Clusters: req.Clusters, Linkage: cpa.Linkage(req.Linkage), Metric: cpa.Metric(req.Metric)}
	labels, err := hc.Cluster(obs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := models.ClusterResponse{Labels: labels}
	for _, s := range m.Samples {
		resp.Samples = append(resp.Samples, s.ID)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// statusFor maps validation errors to 400 and the rest to 500.
func statusFor(err error) int {
	var dimErr *jaccard.DimensionError
	var typeErr *jaccard.TypeError
	switch {
	case errors.As(err, &dimErr), errors.As(err, &typeErr),
		errors.Is(err, config.ErrInvalid), errors.Is(err, models.ErrUnknownLevel):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
