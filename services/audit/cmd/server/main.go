package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/EduBrainBoost/SSID-sub010/internal/attest"
	"github.com/EduBrainBoost/SSID-sub010/internal/config"
	"github.com/EduBrainBoost/SSID-sub010/internal/governance"
	"github.com/EduBrainBoost/SSID-sub010/internal/lineage"
	"github.com/EduBrainBoost/SSID-sub010/internal/registry"
	"github.com/EduBrainBoost/SSID-sub010/pkg/httpx"
)

// Read-only audit surface over the ledger documents on disk. Every response
// reflects the files at request time; nothing here ever writes.
func main() {
	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		panic(err)
	}

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8090"
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/v1", func(api chi.Router) {

		api.Get("/registry/summary", func(w http.ResponseWriter, r *http.Request) {
			raw, err := os.ReadFile(cfg.Paths.Registry)
			if err != nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "registry not built", nil)
				return
			}
			reg, err := registry.ParseRegistryStrict(raw)
			if err != nil {
				httpx.WriteError(w, 500, "BAD_DOCUMENT", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "summary": reg.Summary()})
		})

		api.Get("/attestation", func(w http.ResponseWriter, r *http.Request) {
			raw, err := os.ReadFile(cfg.Paths.Attestation)
			if err != nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "no attestation", nil)
				return
			}
			att, err := attest.ParseStrict(raw)
			if err != nil {
				httpx.WriteError(w, 500, "BAD_DOCUMENT", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "attestation": att})
		})

		api.Get("/lineage", func(w http.ResponseWriter, r *http.Request) {
			doc, err := lineage.NewManager(cfg.Paths.Lineage).Load()
			if err != nil {
				httpx.WriteError(w, 500, "BAD_DOCUMENT", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "lineage": doc})
		})

		api.Get("/lineage/verify", func(w http.ResponseWriter, r *http.Request) {
			withSignatures := r.URL.Query().Get("signatures") == "true"
			report, err := lineage.NewManager(cfg.Paths.Lineage).Verify(withSignatures)
			if err != nil {
				httpx.WriteError(w, 500, "BAD_DOCUMENT", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "report": report})
		})

		api.Get("/proposals/{proposal_id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "proposal_id")
			p, err := governance.NewStore(cfg.Paths.ProposalsDir).Load(id)
			if err != nil {
				httpx.WriteError(w, 404, "NOT_FOUND", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "proposal": p})
		})
	})

	http.ListenAndServe(":"+port, r)
}
