package api

import (
	"math"
	"net/http"

	"github.com/bull/policy-rag/internal/rag"
)

func (s *Server) handleBasic(w http.ResponseWriter, r *http.Request) {
	var req BasicQueryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	topK := DefaultBasicTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if msg := validateQuestion(req.Question); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "Validation Error", msg)
		return
	}
	if msg := validateTopK(topK); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "Validation Error", msg)
		return
	}

	s.logger.Info("Basic query received", "question", req.Question, "top_k", topK)
	answer, err := s.pipeline.SearchAndSummarize(r.Context(), req.Question, topK)
	if err != nil {
		s.fail(w, "basic query", err)
		return
	}
	writeJSON(w, http.StatusOK, BasicQueryResponse{
		Question:  req.Question,
		Answer:    answer,
		Timestamp: now(),
	})
}

func (s *Server) handleAdvanced(w http.ResponseWriter, r *http.Request) {
	var req AdvancedQueryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	topK, minScore := s.topK, s.minScore
	if req.TopK != nil {
		topK = *req.TopK
	}
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	if msg := validateQuestion(req.Question); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "Validation Error", msg)
		return
	}
	if msg := validateTopK(topK); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "Validation Error", msg)
		return
	}
	if math.IsNaN(minScore) || minScore < 0 || minScore > 1 {
		writeError(w, http.StatusUnprocessableEntity, "Validation Error", "min_score must be between 0 and 1")
		return
	}

	s.logger.Info("Advanced query received", "question", req.Question, "top_k", topK, "min_score", minScore)
	resp, err := s.pipeline.Query(r.Context(), rag.Request{
		Question:     req.Question,
		TopK:         topK,
		MinScore:     minScore,
		Summarize:    req.Summarize,
		Conversation: req.Conversation,
	})
	if err != nil {
		s.fail(w, "advanced query", err)
		return
	}
	writeJSON(w, http.StatusOK, AdvancedQueryResponse{Response: *resp, Timestamp: now()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.pipeline.History()
	if history == nil {
		history = []rag.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{History: history, Count: len(history)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.pipeline.ClearHistory()
	writeJSON(w, http.StatusOK, MessageResponse{
		Message:   "History cleared successfully",
		Timestamp: now(),
	})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status, title := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "op", op, "error", err)
	} else {
		s.logger.Warn("Request rejected", "op", op, "error", err)
	}
	writeError(w, status, title, err.Error())
}
