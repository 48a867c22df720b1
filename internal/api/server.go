package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"news-trading-bot/internal/intake"
	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/types"
)

const maxBodyBytes = 1 << 16

// Server exposes the webhook intake surface and the health probe.
type Server struct {
	intake *intake.Intake
	ledger *ledger.Ledger
	secret string
	srv    *http.Server
}

func NewServer(addr string, in *intake.Intake, led *ledger.Ledger, secret string) *Server {
	s := &Server{intake: in, ledger: led, secret: secret}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/prediction", s.handlePrediction)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server exits.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if s.secret != "" && !s.verifySignature(r.Header.Get("X-Signature"), body) {
		logger.Warn(r.Context(), "Webhook signature verification failed", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var raw types.RawSignal
	if err := json.Unmarshal(body, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON payload"})
		return
	}
	if raw.Source == "" {
		raw.Source = "webhook"
	}

	res, err := s.intake.Submit(r.Context(), raw)
	if err != nil {
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
			return
		}
		logger.ErrorWithErr(r.Context(), "Webhook intake failed", err, "ticker", raw.Ticker)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleHealthz reports degraded when the ledger is halted so a probe
// can page before capital sits idle unnoticed.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ledger.Halted() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "halted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks a hex-encoded HMAC-SHA256 of the raw body.
func (s *Server) verifySignature(got string, body []byte) bool {
	if got == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
