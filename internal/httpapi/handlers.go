package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/artifacts"
	"github.com/alphaforge/engine/internal/orchestrator"
)

// submitRunRequest is the POST /runs body: the run config plus where its
// source CSV lives (spec §6 Dataset input).
type submitRunRequest struct {
	orchestrator.RunConfig
	DatasetPath string `json:"dataset_path"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeInvalidParam, "malformed request body"))
		return
	}

	run, err := s.orch.Submit(r.Context(), req.RunConfig, req.DatasetPath)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitRunResponse{
		RunHash: run.RunHash,
		Status:  string(run.State()),
		Reused:  run.Reused(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.orch.List()
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunSummary{
			RunHash:   run.RunHash,
			Status:    string(run.State()),
			Symbol:    run.Config.Symbol,
			Timeframe: run.Config.Timeframe,
		})
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: out})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	runHash := mux.Vars(r)["run_hash"]
	run, ok := s.orch.Lookup(runHash)
	if !ok {
		writeError(w, apperr.New(apperr.CodeNotFound, "run not found"))
		return
	}

	resp := RunDetailResponse{
		RunHash:    run.RunHash,
		Status:     string(run.State()),
		Config:     run.Config,
		CalendarID: run.Config.CalendarID,
	}
	if appErr := run.Error(); appErr != nil {
		resp.Error = appErr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runHash := mux.Vars(r)["run_hash"]
	run, ok := s.orch.Lookup(runHash)
	if !ok {
		writeError(w, apperr.New(apperr.CodeNotFound, "run not found"))
		return
	}

	s.orch.Cancel(runHash)
	writeJSON(w, http.StatusAccepted, CancelRunResponse{RunHash: runHash, Status: string(run.State())})
}

func (s *Server) handleEventsSnapshot(w http.ResponseWriter, r *http.Request) {
	runHash := mux.Vars(r)["run_hash"]
	run, ok := s.orch.Lookup(runHash)
	if !ok {
		writeError(w, apperr.New(apperr.CodeNotFound, "run not found"))
		return
	}

	var afterID int64
	if v := r.URL.Query().Get("after_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, apperr.New(apperr.CodeInvalidParam, "after_id must be an integer"))
			return
		}
		afterID = id
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" && run.Buffer.MatchesETag(inm) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	events, etag := run.Buffer.Snapshot(afterID)
	out := make([]any, len(events))
	for i, ev := range events {
		out[i] = ev
	}

	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, EventsSnapshotResponse{RunHash: runHash, Events: out})
}

func (s *Server) handleArtifactsManifest(w http.ResponseWriter, r *http.Request) {
	runHash := mux.Vars(r)["run_hash"]
	manifestPath := filepath.Join(s.config.ArtifactsDir, runHash, "manifest.json")

	body, err := os.ReadFile(manifestPath)
	if err != nil {
		writeError(w, apperr.New(apperr.CodeNotFound, "manifest not found"))
		return
	}

	var manifest artifacts.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, err, "corrupt manifest"))
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleArtifactFetch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runHash, name := vars["run_hash"], vars["name"]

	if !isWhitelisted(name) {
		writeError(w, apperr.New(apperr.CodeInvalidParam, "artifact name not in whitelist"))
		return
	}

	path := filepath.Join(s.config.ArtifactsDir, runHash, name)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, apperr.New(apperr.CodeNotFound, "artifact not found"))
		return
	}
	defer f.Close()

	http.ServeContent(w, r, name, fileModTime(path), f)
}

func (s *Server) handleHashes(w http.ResponseWriter, r *http.Request) {
	runHash := mux.Vars(r)["run_hash"]
	manifestPath := filepath.Join(s.config.ArtifactsDir, runHash, "manifest.json")

	body, err := os.ReadFile(manifestPath)
	if err != nil {
		writeError(w, apperr.New(apperr.CodeNotFound, "manifest not found"))
		return
	}

	var manifest artifacts.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, err, "corrupt manifest"))
		return
	}

	resp := HashesResponse{ManifestHash: &manifest.ManifestHash}
	for _, f := range manifest.Files {
		switch f.Name {
		case "metrics.json":
			h := f.SHA256
			resp.MetricsHash = &h
		case "equity.parquet":
			h := f.SHA256
			resp.EquityCurveHash = &h
		}
	}

	metricsHash, equityHash := "", ""
	if resp.MetricsHash != nil {
		metricsHash = *resp.MetricsHash
	}
	if resp.EquityCurveHash != nil {
		equityHash = *resp.EquityCurveHash
	}
	provenance, err := provenanceDigest(manifest.ManifestHash, metricsHash, equityHash)
	if err == nil {
		resp.ProvenanceHash = &provenance
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperr.New(apperr.CodeNotFound, "no such route"))
}

func isWhitelisted(name string) bool {
	for _, candidate := range artifacts.Whitelist {
		if candidate == name {
			return true
		}
	}
	return false
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
