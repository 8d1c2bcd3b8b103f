package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"actionlane/internal/config"
	"actionlane/pkg/agreement"
	"actionlane/pkg/db"
	"actionlane/pkg/httpx"
	"actionlane/services/agreements/internal/proof"
	"actionlane/services/agreements/internal/store"
)

// Store is the persistence surface the handlers need; *store.Store
// implements it, tests use an in-memory fake.
type Store interface {
	CreateAgreement(ctx context.Context, t agreement.Terms) error
	GetAgreement(ctx context.Context, id string) (agreement.Terms, error)
	GetReceipt(ctx context.Context, id string) (agreement.Receipt, error)
	MergeReceipt(ctx context.Context, id string, fn func(agreement.Receipt) (agreement.Patch, error)) (agreement.Receipt, error)
	AddEvent(ctx context.Context, agreementID, typ, actor string, payload map[string]any) error
	ListEvents(ctx context.Context, agreementID string) ([]map[string]any, error)
}

func agreementView(t agreement.Terms, r agreement.Receipt, now time.Time) map[string]any {
	return map[string]any{
		"agreement": t,
		"receipt":   r,
		"status":    agreement.EffectiveStatus(t, r, now),
	}
}

func newRouter(st Store, verifier agreement.Verifier, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequestLogger(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/agreements", func(api chi.Router) {

		api.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Title        string     `json:"title"`
				Body         string     `json:"body"`
				Participants [2]string  `json:"participants"`
				CreatedBy    string     `json:"createdBy"`
				Payer        string     `json:"payer"`
				Payee        string     `json:"payee"`
				Amount       string     `json:"amount"`
				Token        string     `json:"token"`
				Deadline     *time.Time `json:"deadline"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			t, err := agreement.New(agreement.NewParams{
				Title:        req.Title,
				Body:         req.Body,
				Participants: req.Participants,
				CreatedBy:    req.CreatedBy,
				Payer:        req.Payer,
				Payee:        req.Payee,
				Amount:       req.Amount,
				Token:        req.Token,
				Deadline:     req.Deadline,
			}, time.Now())
			if err != nil {
				httpx.WriteError(w, 400, "INVALID_TERMS", err.Error(), nil)
				return
			}
			if err := st.CreateAgreement(r.Context(), t); err != nil {
				httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
				return
			}
			_ = st.AddEvent(r.Context(), t.ID, "CREATED", t.CreatedBy, map[string]any{"hash": t.Hash})
			httpx.WriteJSON(w, 201, agreementView(t, agreement.NewReceipt(t), time.Now()))
		})

		api.Get("/{agreement_id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			t, rcpt, err := load(r.Context(), st, id)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, agreementView(t, rcpt, time.Now()))
		})

		// prepareSign returns the unsigned memo transaction for a
		// wallet-backed step, or a null transaction when the signer opts
		// for the off-chain acknowledgement.
		api.Post("/{agreement_id}:prepareSign", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			var req struct {
				Signer   string `json:"signer"`
				Offchain bool   `json:"offchain"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			t, rcpt, err := load(r.Context(), st, id)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			// Dry-run the guard so a wrong signer learns now, not after
			// producing a transaction.
			if _, err := agreement.SignPatch(t, rcpt, req.Signer, ""); err != nil {
				writeAgreementError(w, err)
				return
			}
			if req.Offchain {
				httpx.WriteJSON(w, 200, map[string]any{"transaction": nil})
				return
			}
			blob, err := agreement.PrepareSignTx(t, req.Signer)
			if err != nil {
				httpx.WriteError(w, 400, "INVALID_SIGNER", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"transaction": blob})
		})

		api.Post("/{agreement_id}:sign", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			var req struct {
				Signer string `json:"signer"`
				TxSig  string `json:"txSig"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			t, err := st.GetAgreement(r.Context(), id)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			merged, err := st.MergeReceipt(r.Context(), id, func(cur agreement.Receipt) (agreement.Patch, error) {
				return agreement.SignPatch(t, cur, req.Signer, req.TxSig)
			})
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			_ = st.AddEvent(r.Context(), id, "SIGNED", req.Signer, map[string]any{"status": merged.Status})
			httpx.WriteJSON(w, 200, agreementView(t, merged, time.Now()))
		})

		api.Post("/{agreement_id}/settlement", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			var req struct {
				Account string `json:"account"`
				TxSig   string `json:"txSig"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			t, err := st.GetAgreement(r.Context(), id)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			merged, err := st.MergeReceipt(r.Context(), id, func(cur agreement.Receipt) (agreement.Patch, error) {
				return agreement.AttachSettlement(t, cur, req.Account, req.TxSig)
			})
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			_ = st.AddEvent(r.Context(), id, "SETTLEMENT_ATTACHED", req.Account, map[string]any{"txSig": req.TxSig})
			httpx.WriteJSON(w, 200, agreementView(t, merged, time.Now()))
		})

		api.Post("/{agreement_id}:verify", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			t, rcpt, err := load(r.Context(), st, id)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			verified, err := agreement.Verify(r.Context(), verifier, t, rcpt)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			_ = st.AddEvent(r.Context(), id, "VERIFIED", "", map[string]any{"verified": verified})
			httpx.WriteJSON(w, 200, map[string]any{"verified": verified, "hash": t.Hash})
		})

		api.Get("/{agreement_id}/export", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			t, err := st.GetAgreement(r.Context(), id)
			if err != nil {
				writeAgreementError(w, err)
				return
			}
			doc, err := agreement.Export(t)
			if err != nil {
				httpx.WriteError(w, 500, "EXPORT_FAILED", err.Error(), nil)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", agreement.ExportFilename(t)))
			w.WriteHeader(200)
			_, _ = w.Write(doc)
		})

		api.Get("/{agreement_id}/events", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "agreement_id")
			evs, err := st.ListEvents(r.Context(), id)
			if err != nil {
				httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"events": evs})
		})
	})

	return r
}

func load(ctx context.Context, st Store, id string) (agreement.Terms, agreement.Receipt, error) {
	t, err := st.GetAgreement(ctx, id)
	if err != nil {
		return agreement.Terms{}, agreement.Receipt{}, err
	}
	rcpt, err := st.GetReceipt(ctx, id)
	if err != nil {
		return agreement.Terms{}, agreement.Receipt{}, err
	}
	return t, rcpt, nil
}

func writeAgreementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, agreement.ErrWrongSigner), errors.Is(err, agreement.ErrNotParticipant):
		httpx.WriteError(w, 403, "WRONG_SIGNER", err.Error(), nil)
	case errors.Is(err, agreement.ErrBadTransition), errors.Is(err, agreement.ErrNotSettleable), errors.Is(err, agreement.ErrAlreadySettled):
		httpx.WriteError(w, 409, "BAD_STATE", err.Error(), nil)
	case errors.Is(err, agreement.ErrBadSignature), errors.Is(err, agreement.ErrMissingSignatures):
		httpx.WriteError(w, 400, "BAD_SIGNATURE", err.Error(), nil)
	default:
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
	}
}

func main() {
	cfg, err := config.Load(os.Getenv("ACTIONLANE_CONFIG"))
	if err != nil {
		panic(err)
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "agreements").Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	pool, err := db.Connect(context.Background(), cfg.Agreements.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	st := store.New(pool)
	verifier := proof.New(cfg.Solana.RPC, log)

	log.Info().Str("port", cfg.Agreements.Port).Msg("agreements listening")
	if err := http.ListenAndServe(":"+cfg.Agreements.Port, newRouter(st, verifier, log)); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
