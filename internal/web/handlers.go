package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/csvpress/csvpress/internal/importer"
	"github.com/csvpress/csvpress/internal/logging"
)

// startRequest selects the source and optionally overrides the stored
// configuration for this run only.
type startRequest struct {
	Source string           `json:"source"`
	Config *importer.Config `json:"config,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
			Code: "REQ001", Message: "Request body is not valid JSON", Action: "Check the request payload",
		})
		return
	}

	kind := importer.SourceKind(req.Source)
	if !kind.Valid() {
		writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
			Code: "REQ002", Message: fmt.Sprintf("source must be %q or %q", importer.SourceLocal, importer.SourceRemote),
			Action: "Set the source field",
		})
		return
	}

	if err := s.service.StartRun(r.Context(), kind, req.Config); err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import run started", "source", req.Source)
	respond(w, r, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var cfg *importer.Config
	if r.ContentLength > 0 {
		cfg = &importer.Config{}
		if err := decodeJSON(w, r, cfg); err != nil {
			writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
				Code: "REQ001", Message: "Request body is not valid JSON", Action: "Check the request payload",
			})
			return
		}
	}

	result, err := s.service.Validate(r.Context(), cfg)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind := importer.SourceKind(r.URL.Query().Get("source"))
	if !kind.Valid() {
		writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
			Code: "REQ002", Message: "source query parameter must be local or remote", Action: "Add ?source=local or ?source=remote",
		})
		return
	}

	report, err := s.service.Preview(r.Context(), kind)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, report)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.Progress(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, progress)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result := s.service.LastResult()
	if result == nil {
		writeFailure(w, r, http.StatusNotFound, importer.UserMessage{
			Code: "RUN004", Message: "No import has finished in this process yet", Action: "Start an import first",
		})
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("import cancelled")
	respond(w, r, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	result, err := s.service.Rollback(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Backup.SessionListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.service.Sessions(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sessions)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.Backup.RetentionDays
	if v := r.URL.Query().Get("older_than_days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	deleted, err := s.service.CleanupBackups(r.Context(), days)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats)
}

func (s *Server) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.ErrorStats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats)
}

func (s *Server) handleRecentErrors(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.service.RecentErrors(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, entries)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.ActiveConfig(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg importer.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
			Code: "REQ001", Message: "Request body is not valid JSON", Action: "Check the request payload",
		})
		return
	}

	if err := s.service.SaveConfig(r.Context(), &cfg); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, cfg)
}

func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.Notifications().Settings(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, settings)
}

func (s *Server) handlePutNotifications(w http.ResponseWriter, r *http.Request) {
	var settings importer.NotificationSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
			Code: "REQ001", Message: "Request body is not valid JSON", Action: "Check the request payload",
		})
		return
	}

	if err := s.service.Notifications().SaveSettings(r.Context(), settings); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, settings)
}

type saveProfileRequest struct {
	Name   string          `json:"name"`
	Config importer.Config `json:"config"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.service.Profiles().List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, profiles)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req saveProfileRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Name == "" {
		writeFailure(w, r, http.StatusBadRequest, importer.UserMessage{
			Code: "REQ001", Message: "Request must be JSON with a non-empty name", Action: "Check the request payload",
		})
		return
	}

	profile, err := s.service.Profiles().Save(r.Context(), req.Name, req.Config)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, profile)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.Profiles().Get(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, profile)
}

func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.Profiles().Apply(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, cfg)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Profiles().Delete(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Health(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, report)
}
