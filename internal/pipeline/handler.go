package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/croplens/indexcache/internal/core/model"
	"github.com/croplens/indexcache/internal/index"
)

// HandleIndex serves one pre-validated HTTP request through Run and
// maps domain errors to status codes.
func (e *Engine) HandleIndex(ctx context.Context, w http.ResponseWriter, _ *http.Request, req model.IndexRequest) {
	resp, err := e.Run(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, index.ErrNoScene):
			http.Error(w, "no scene matches the date and cloud constraints", http.StatusNotFound)
		case errors.Is(err, model.ErrUnsupportedIndex):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			e.logger.Error("index extraction failed", "index", req.Index, "err", err)
			http.Error(w, "index extraction failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
