package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"roulette-pilot/internal/auth"
	"roulette-pilot/internal/session"

	"github.com/go-chi/chi/v5"
)

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeHTTPError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, session.ErrSessionExists):
		writeHTTPError(w, http.StatusConflict, "session_exists")
	case errors.Is(err, session.ErrOperationActive):
		writeHTTPError(w, http.StatusConflict, "operation_active")
	case errors.Is(err, session.ErrOperationInactive):
		writeHTTPError(w, http.StatusConflict, "operation_inactive")
	case errors.Is(err, session.ErrSessionClosed):
		writeHTTPError(w, http.StatusConflict, "session_closed")
	case errors.Is(err, auth.ErrAuthenticate):
		writeHTTPError(w, http.StatusBadGateway, "auth_failed")
	default:
		writeHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}

func userIDParam(r *http.Request) string {
	return chi.URLParam(r, "user_id")
}

func connectHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDParam(r)
		if userID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := reg.Connect(r.Context(), userID); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "connected": true})
	}
}

func disconnectHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDParam(r)
		if err := reg.Disconnect(userID); err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "disconnected": true})
	}
}

func startOperationHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDParam(r)
		if err := reg.StartOperation(r.Context(), userID); err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "operation": "requested"})
	}
}

func stopOperationHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDParam(r)
		if err := reg.StopOperation(r.Context(), userID); err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "operation": "stopped"})
	}
}

func logsHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDParam(r)
		lines, err := reg.Logs(userID)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "lines": lines})
	}
}

func reportHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := reg.Report(userIDParam(r))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(rep)
	}
}

func resetReportHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDParam(r)
		if err := reg.ResetReport(r.Context(), userID); err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "report": "reset"})
	}
}

func statusHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := reg.Status(userIDParam(r))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
