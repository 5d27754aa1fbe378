package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/graph"
	"github.com/jonathan/resume-author/internal/pipeline/stages"
	"github.com/jonathan/resume-author/internal/server/middleware"
	"github.com/jonathan/resume-author/internal/types"
)

// CreateRunRequest starts a new authoring run. Exactly one of posting_url
// or posting_text must be provided alongside the resume.
type CreateRunRequest struct {
	ResumeText  string `json:"resume_text" validate:"required"`
	PostingURL  string `json:"posting_url,omitempty" validate:"omitempty,url"`
	PostingText string `json:"posting_text,omitempty"`
}

// CreateRunResponse returns the new run and its scoped access token.
type CreateRunResponse struct {
	RunID uuid.UUID `json:"run_id"`
	Token string    `json:"token"`
}

// BenchmarkEditRequest carries the edited benchmark assumptions and,
// optionally, the stage to rebuild from. Omitting the stage rebuilds from
// gap analysis.
type BenchmarkEditRequest struct {
	Benchmark        types.Benchmark `json:"benchmark" validate:"required"`
	RebuildFromStage types.NodeKey   `json:"rebuild_from_stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[server] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(err), map[string]string{"error": err.Error()})
}

// runScoped authenticates the request and checks that the token grants the
// run named in the path.
func (s *Server) runScoped(handler func(http.ResponseWriter, *http.Request, uuid.UUID)) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run id"})
			return
		}
		tokenRunID, err := middleware.GetRunID(r)
		if err != nil || tokenRunID != runID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		handler(w, r, runID)
	})
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(inner)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if (req.PostingURL == "") == (req.PostingText == "") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "exactly one of posting_url or posting_text is required",
		})
		return
	}

	ctx := r.Context()
	run, err := s.controller.CreateRun(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveArtifact(ctx, run.ID, stages.ArtifactIntake, stages.IntakeInput{
		ResumeText:  req.ResumeText,
		PostingURL:  req.PostingURL,
		PostingText: req.PostingText,
	}); err != nil {
		writeError(w, err)
		return
	}

	token, err := s.jwtService.GenerateToken(run.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The first kick runs synchronously up to the first gate so the client
	// gets a meaningful snapshot immediately after creation.
	if err := s.controller.Kick(ctx, run.ID); err != nil {
		log.Printf("[server] run %s failed during initial kick: %v", run.ID, err)
	}

	writeJSON(w, http.StatusCreated, CreateRunResponse{RunID: run.ID, Token: token})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	snap, err := s.controller.Snapshot(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSubmitGate(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	gateID := r.PathValue("gate_id")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	resolved, err := s.controller.SubmitGate(r.Context(), runID, gateID, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.controller.Snapshot(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved": resolved.ID,
		"snapshot": snap,
	})
}

func (s *Server) handleForceAdvance(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	if err := s.controller.ForceAdvance(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.controller.Snapshot(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBenchmarkEdit(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	var req BenchmarkEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Benchmark.Requirements) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "benchmark requires at least one requirement"})
		return
	}
	if req.RebuildFromStage != "" && !graph.Known(req.RebuildFromStage) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown rebuild_from_stage"})
		return
	}

	replanReq, err := s.trigger.Request(r.Context(), runID, req.Benchmark, req.RebuildFromStage)
	if err != nil {
		writeError(w, err)
		return
	}
	if !replanReq.RequiresRestart {
		if err := s.controller.Kick(r.Context(), runID); err != nil {
			log.Printf("[server] run %s failed after replan: %v", runID, err)
		}
	}
	writeJSON(w, http.StatusAccepted, replanReq)
}

func (s *Server) handleConfirmRestart(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	replanReq, err := s.trigger.ConfirmRestart(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.Kick(r.Context(), runID); err != nil {
		log.Printf("[server] run %s failed after restart: %v", runID, err)
	}
	writeJSON(w, http.StatusOK, replanReq)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	if err := s.controller.Abort(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

// handleArchiveRun flags the run archived and drops its event stream. Runs
// are never deleted; archived runs stay readable.
func (s *Server) handleArchiveRun(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	if err := s.store.ArchiveRun(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	s.bus.Drop(runID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents streams the run's events over SSE. At most one subscriber is
// live per run: a new connection supersedes the previous one, which is told
// to resync via snapshot. Missed events are never replayed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	emitter := s.bus.ForRun(runID)
	ch, cancel := emitter.Subscribe()
	defer cancel()
	superseded := emitter.Superseded()

	sse.WriteEvent("connected", map[string]any{"run_id": runID}) //nolint:errcheck

	for {
		select {
		case <-r.Context().Done():
			return
		case <-superseded:
			sse.WriteError("superseded by a newer subscriber; fetch the run snapshot to resync")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.WriteEvent(ev.Name, ev); err != nil {
				return
			}
		}
	}
}
