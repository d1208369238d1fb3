package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/tegami/internal/indexer"
	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/storage"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.String("account_id", query.AccountID))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIndexEmail(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg.ID == "" {
		s.respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	s.logger.Debug("index email request", zap.String("id", msg.ID), zap.String("account_id", msg.AccountID))
	if s.messages != nil {
		if err := s.messages.PutMessage(r.Context(), &msg); err != nil {
			s.logger.Error("store message failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := s.manager.IndexEmail(r.Context(), &msg, s.provider); err != nil {
		s.respondManagerError(w, "indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": msg.ID, "status": "indexed"})
}

func (s *Server) handleRemoveEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("remove email request", zap.String("id", id))
	if err := s.manager.RemoveEmail(r.Context(), id); err != nil {
		s.respondManagerError(w, "removal failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("remove account request", zap.String("account_id", id))
	if err := s.manager.RemoveAllForAccount(r.Context(), id); err != nil {
		s.respondManagerError(w, "account removal failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"account_id": id, "status": "removed"})
}

func (s *Server) handleReindexAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.manager.ReindexAccount(r.Context(), id, s.provider)
	if err != nil {
		s.respondManagerError(w, "reindex failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"account_id": id, "indexed": n})
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.BackfillAccountIDs(r.Context())
	if err != nil {
		s.respondManagerError(w, "backfill failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: collect stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"index":              stats,
		"semantic_available": s.provider != nil && s.provider.IsAvailable(),
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"database_path":        s.config.Storage.DatabasePath,
			"bleve_index_path":     s.config.Storage.BleveIndexPath,
		}
		paths := append(storage.DatabaseFiles(s.config.Storage.DatabasePath), s.config.Storage.BleveIndexPath)
		if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondManagerError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, indexer.ErrInvalidMessage), errors.Is(err, indexer.ErrInvalidAccount):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, indexer.ErrIndexClosed):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
