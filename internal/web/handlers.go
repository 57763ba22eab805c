package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/service/workflow"
	"github.com/iamxurulin/xu-AI-Zero/internal/web/sse"
)

// maxRequestBody bounds execute request bodies; prompts are capped well below it.
const maxRequestBody = 1 << 20

// executeRequest is the body of POST /workflow/execute.
type executeRequest struct {
	Prompt         string `json:"prompt"`
	SessionKey     string `json:"sessionKey,omitempty"`
	GenerationType string `json:"generationType,omitempty"`
}

// executeResponse carries the final context. On failure it still holds the
// partial context so generated work is not lost.
type executeResponse struct {
	Context core.WorkflowContext `json:"context"`
	Error   string               `json:"error,omitempty"`
}

func (req executeRequest) toWorkflow() (workflow.Request, error) {
	out := workflow.Request{Prompt: req.Prompt, SessionKey: req.SessionKey}
	if err := workflow.ValidateSessionKey(req.SessionKey); err != nil {
		return out, err
	}
	if strings.TrimSpace(req.GenerationType) != "" {
		t, err := core.ParseGenerationType(req.GenerationType)
		if err != nil {
			return out, err
		}
		out.GenerationType = t
	}
	return out, nil
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func httpStatusForError(err error) int {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		return http.StatusInternalServerError
	}
	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest
	case core.ErrCatNotFound:
		return http.StatusNotFound
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleExecute runs a workflow to completion.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := body.toWorkflow()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := workflow.ValidatePrompt(req.Prompt); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wc, err := s.workflow.RunSync(r.Context(), req)
	if err != nil {
		s.respondJSON(w, httpStatusForError(err), executeResponse{Context: wc, Error: err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, executeResponse{Context: wc})
}

// handleExecuteSSE runs a workflow and streams its progress. Parameters come
// from the query string so EventSource clients can call it.
func (s *Server) handleExecuteSSE(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := executeRequest{
		Prompt:         q.Get("prompt"),
		SessionKey:     q.Get("sessionKey"),
		GenerationType: q.Get("generationType"),
	}.toWorkflow()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := workflow.ValidatePrompt(req.Prompt); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	// A client that goes away cancels the run; the channel is still drained
	// so the run's goroutine can finish.
	for p := range s.workflow.RunObservable(r.Context(), req) {
		if err := sw.Event(p.Event, p); err != nil {
			s.logger.Debug("progress stream write failed", "run_id", p.RunID, "error", err)
		}
	}
}

// handleGraph returns the compiled workflow graph as a mermaid flowchart.
func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.workflow.Mermaid()))
}
