package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// UpdateResponse is the JSON body returned by NewUpdateHandler.
type UpdateResponse struct {
	Status string `json:"status"`
}

// NewUpdateHandler builds an HTTP handler that merges the JSON body of
// the request into the in-memory config and persists the result to
// disk, exactly the teacher's config-reload idiom.
func NewUpdateHandler(log *slog.Logger, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		log.Info("configuration updated",
			"advert_interval", cfg.AdvertInterval(),
			"timeout", cfg.Timeout(),
			"garbage_collection_enabled", cfg.GarbageCollectionEnabled())

		res := UpdateResponse{Status: "ok"}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			http.Error(w, fmt.Sprintf("error generating response: %v", err), http.StatusInternalServerError)
		}
	}
}
