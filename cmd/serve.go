package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/quota"
	"github.com/sells-group/nonprofit-verify/internal/store"
	"github.com/sells-group/nonprofit-verify/internal/verify"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := buildMux(env.Verify, env.Store, env.Public)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildMux wires the HTTP routes. The authenticated /v1 endpoints charge the
// caller's monthly quota; /public is gated by a per-address daily limit.
func buildMux(svc *verify.Service, st store.Store, public quota.PublicLimiter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /v1/verify/{ein}", func(w http.ResponseWriter, r *http.Request) {
		p, ok := authenticate(w, r, st)
		if !ok {
			return
		}

		record, err := svc.Verify(r.Context(), p, r.PathValue("ein"))
		if err != nil {
			writeVerifyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	mux.HandleFunc("POST /v1/verify/batch", func(w http.ResponseWriter, r *http.Request) {
		p, ok := authenticate(w, r, st)
		if !ok {
			return
		}

		var req struct {
			EINs []string `json:"eins"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.EINs) == 0 {
			writeError(w, http.StatusBadRequest, "eins is required")
			return
		}

		result, err := svc.VerifyBatch(r.Context(), p, req.EINs)
		if err != nil {
			writeVerifyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /public/verify/{ein}", func(w http.ResponseWriter, r *http.Request) {
		if err := public.Allow(r.Context(), clientIP(r)); err != nil {
			writeVerifyError(w, err)
			return
		}

		record, err := svc.Lookup(r.Context(), r.PathValue("ein"))
		if err != nil {
			writeVerifyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	return mux
}

// authenticate resolves the X-Api-Key header to a principal. On failure it
// has already written the response and returns ok=false.
func authenticate(w http.ResponseWriter, r *http.Request, st store.Store) (verify.Principal, bool) {
	rawKey := r.Header.Get("X-Api-Key")
	if rawKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return verify.Principal{}, false
	}

	p, err := st.GetPrincipalByKeyHash(r.Context(), store.HashKey(rawKey))
	if err != nil {
		zap.L().Error("principal lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return verify.Principal{}, false
	}
	if p == nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return verify.Principal{}, false
	}
	if !p.Active {
		writeError(w, http.StatusForbidden, "API key is disabled")
		return verify.Principal{}, false
	}

	st.TouchLastUsed(r.Context(), p.ID)
	return verify.Principal{ID: p.ID, MonthlyLimit: p.MonthlyLimit}, true
}

// clientIP takes the first X-Forwarded-For hop when present, else the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeVerifyError(w http.ResponseWriter, err error) {
	var (
		invalid  *verify.InvalidIdentifierError
		tooLarge *verify.BatchTooLargeError
		notFound *verify.NotFoundError
		exceeded *quota.ExceededError
		daily    *quota.DailyLimitError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &tooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &exceeded):
		w.Header().Set("Retry-After", strconv.Itoa(int(exceeded.RetryAfter.Seconds())))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &daily):
		w.Header().Set("Retry-After", strconv.Itoa(int(daily.RetryAfter.Seconds())))
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		zap.L().Error("verification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
