package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"actionlane/internal/config"
	"actionlane/pkg/allowlist"
	"actionlane/pkg/httpx"
	"actionlane/services/proxy/internal/forward"
)

func newRouter(f *forward.Forwarder, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequestLogger(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/blink", func(w http.ResponseWriter, r *http.Request) {
		actionURL := r.URL.Query().Get("apiUrl")
		if actionURL == "" {
			httpx.WriteError(w, 400, "MISSING_API_URL", "apiUrl query parameter required", nil)
			return
		}
		var req struct {
			Account string `json:"account"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.Account == "" {
			httpx.WriteError(w, 400, "MISSING_ACCOUNT", "account required", nil)
			return
		}

		desc, err := f.Execute(r.Context(), actionURL, req.Account)
		if err != nil {
			writeForwardError(w, err)
			return
		}
		httpx.WriteJSON(w, 200, desc)
	})

	return r
}

func writeForwardError(w http.ResponseWriter, err error) {
	var (
		nae *allowlist.NotAllowedError
		efe *forward.ExecutionFailedError
		ire *forward.InvalidResponseError
	)
	switch {
	case errors.As(err, &nae):
		httpx.WriteError(w, 403, "NOT_ALLOWED", nae.Error(), map[string]any{"url": nae.URL, "reason": nae.Reason})
	case errors.Is(err, forward.ErrProviderUnreachable):
		httpx.WriteError(w, 502, "PROVIDER_UNREACHABLE", err.Error(), nil)
	case errors.As(err, &efe):
		httpx.WriteError(w, 502, "EXECUTION_FAILED", err.Error(), map[string]any{"provider_status": efe.Status})
	case errors.As(err, &ire):
		httpx.WriteError(w, 502, "INVALID_RESPONSE", err.Error(), nil)
	case errors.Is(err, forward.ErrUnsupportedPayload):
		httpx.WriteError(w, 422, "UNSUPPORTED_PAYLOAD", err.Error(), nil)
	default:
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
	}
}

func main() {
	cfg, err := config.Load(os.Getenv("ACTIONLANE_CONFIG"))
	if err != nil {
		panic(err)
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "proxy").Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	f := forward.New(allowlist.Policy{
		Scheme:     cfg.Allowlist.Scheme,
		HostSuffix: cfg.Allowlist.HostSuffix,
		PathPrefix: cfg.Allowlist.PathPrefix,
	}, log)
	f.APIKey = cfg.Proxy.APIKey
	if cfg.Proxy.TimeoutSeconds > 0 {
		f.Timeout = time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second
	}

	log.Info().Str("port", cfg.Proxy.Port).Msg("proxy listening")
	if err := http.ListenAndServe(":"+cfg.Proxy.Port, newRouter(f, log)); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
