package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wardmail/accountlink/internal/authflow"
	"github.com/wardmail/accountlink/internal/provider"
	"github.com/wardmail/accountlink/internal/refresh"
)

type errorResponse struct {
	Error string `json:"error"`
}

func setJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setJSONHeaders(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing left to do but log upstream.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type initiateResponse struct {
	SessionID       string `json:"session_id"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresAt       string `json:"expires_at"`
	Message         string `json:"message"`
}

func (s *server) handleInitiate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := uuid.NewString()

		reply, err := s.orchestrator.Start(r.Context(), sessionID, userID(r.Context()))
		if err != nil {
			switch {
			case errors.Is(err, authflow.ErrFeatureDisabled):
				writeError(w, http.StatusForbidden, "account linking is disabled")
			case errors.Is(err, authflow.ErrSessionConflict):
				writeError(w, http.StatusConflict, "session id already in use")
			case errors.Is(err, authflow.ErrCallbackTimeout):
				writeError(w, http.StatusGatewayTimeout, "identity provider did not respond in time")
			default:
				s.logger.Error("initiating device authorization",
					slog.String("session_id", sessionID),
					slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "failed to start authorization")
			}
			return
		}

		writeJSON(w, http.StatusOK, initiateResponse{
			SessionID:       reply.SessionID,
			UserCode:        reply.UserCode,
			VerificationURI: reply.VerificationURI,
			ExpiresAt:       reply.ExpiresAt.Format(time.RFC3339),
			Message:         reply.Message,
		})
	}
}

type pollRequest struct {
	SessionID string `json:"session_id"`
}

func (s *server) handlePoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		result, err := s.poller.Poll(r.Context(), req.SessionID)
		if err != nil {
			if errors.Is(err, authflow.ErrSlowDown) {
				writeError(w, http.StatusTooManyRequests, "polling too frequently")
				return
			}
			s.logger.Error("polling session",
				slog.String("session_id", req.SessionID),
				slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to poll session")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func (s *server) handleCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		cancelled := s.orchestrator.Cancel(req.SessionID)
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

// handleAccountToken serves live access tokens to downstream API clients via
// the refresh chain.
func (s *server) handleAccountToken() http.HandlerFunc {
	type response struct {
		AccessToken string `json:"access_token"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")

		acct, err := s.accounts.GetByProviderAccount(r.Context(), s.cfg.Provider.Name, accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load account")
			return
		}
		if acct == nil || acct.UserID != userID(r.Context()) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}

		token, err := s.chain.GetLiveToken(r.Context(), accountID)
		if err != nil {
			if errors.Is(err, refresh.ErrReauthenticationRequired) {
				writeError(w, http.StatusUnauthorized, "please re-authenticate this account")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to acquire token")
			return
		}

		writeJSON(w, http.StatusOK, response{AccessToken: token})
	}
}

type devResolveRequest struct {
	UserCode  string `json:"user_code"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

func (s *server) handleDevApprove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req devResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserCode == "" {
			writeError(w, http.StatusBadRequest, "user_code is required")
			return
		}
		if req.AccountID == "" {
			req.AccountID = uuid.NewString()
		}

		err := s.devProvider.Approve(req.UserCode, provider.Account{
			ID:    req.AccountID,
			Email: req.Email,
		})
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
	}
}

func (s *server) handleDevDecline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req devResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserCode == "" {
			writeError(w, http.StatusBadRequest, "user_code is required")
			return
		}

		if err := s.devProvider.Decline(req.UserCode); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
	}
}

func (s *server) handleHealth() http.HandlerFunc {
	type response struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.checkHealth(r.Context()); err != nil {
			s.logger.Warn("health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, response{
				Status:  "unhealthy",
				Version: Version,
			})
			return
		}
		writeJSON(w, http.StatusOK, response{Status: "ok", Version: Version})
	}
}
