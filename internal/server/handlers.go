package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/centsalert/internal/auth"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

const (
	sessionCookie = "session_token"
	stateCookie   = "oauth_state"
)

// ---- auth ----

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.auth.AuthURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateParam := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || cookie.Value != stateParam {
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	sub, token, err := s.auth.HandleCallback(r.Context(), code)
	if err != nil {
		logger.Error().Err(err).Msg("OAuth callback failed")
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"user":           sub,
		"needs_telegram": sub.TelegramChatID == "",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sub := s.currentUser(r)
	if sub == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(s.sessionToken(r)); err != nil {
		logger.Warn().Err(err).Msg("Failed to delete session")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// ---- channel management ----

func (s *Server) handleConnectTelegram(w http.ResponseWriter, r *http.Request) {
	sub := s.currentUser(r)
	if sub == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ChatID) == "" {
		writeError(w, http.StatusBadRequest, "chat_id required")
		return
	}

	chatID := strings.TrimSpace(req.ChatID)
	if err := s.subscribers.ConnectTelegram(sub.UserID, chatID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to connect telegram")
		return
	}

	// Confirmation message; failure here is not fatal to the connect.
	confirm := "✅ <b>Connected to CEnT-S Alert!</b>\n\nYou'll receive instant notifications when CENT@CASA spots open."
	if err := s.telegram.Send(r.Context(), chatID, confirm); err != nil {
		logger.Warn().Err(err).Str("chat_id", chatID).Msg("Failed to send connect confirmation")
	}

	updated, err := s.subscribers.GetByID(sub.UserID)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscriber")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleConnectPhone(w http.ResponseWriter, r *http.Request) {
	sub := s.currentUser(r)
	if sub == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "phone_number required")
		return
	}

	if err := s.subscribers.ConnectPhone(sub.UserID, strings.TrimSpace(req.PhoneNumber)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to connect phone")
		return
	}

	updated, err := s.subscribers.GetByID(sub.UserID)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscriber")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUpdateAlerts(w http.ResponseWriter, r *http.Request) {
	sub := s.currentUser(r)
	if sub == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req struct {
		AlertTelegram bool `json:"alert_telegram"`
		AlertSMS      bool `json:"alert_sms"`
		AlertVoice    bool `json:"alert_voice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.subscribers.UpdateAlerts(sub.UserID, req.AlertTelegram, req.AlertSMS, req.AlertVoice); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update alerts")
		return
	}

	updated, err := s.subscribers.GetByID(sub.UserID)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscriber")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ---- availability ----

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.GetLatest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"taken_at":        nil,
			"records":         []any{},
			"total_count":     0,
			"available_count": 0,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAvailabilityHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.History(queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sub := s.currentUser(r)
	if sub == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	started := s.sched.TriggerNow()
	status := "started"
	if !started {
		status = "already_running"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

// ---- notifications ----

func (s *Server) handleNotificationHistory(w http.ResponseWriter, r *http.Request) {
	sub := s.currentUser(r)
	if sub == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	records, err := s.ledger.HistoryByUser(sub.UserID, queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []storage.Delivery{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ---- misc ----

func (s *Server) handleBotInfo(w http.ResponseWriter, r *http.Request) {
	if s.botUsername == "" {
		writeError(w, http.StatusServiceUnavailable, "bot not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": s.botUsername})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"bot_username":   s.botUsername,
		"scheduler":      s.sched.Status(),
	})
}

// ---- helpers ----

// sessionToken extracts the session token from the cookie or a Bearer
// header.
func (s *Server) sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (s *Server) currentUser(r *http.Request) *storage.Subscriber {
	sub, err := s.auth.CurrentUser(s.sessionToken(r))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve session")
		return nil
	}
	return sub
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
