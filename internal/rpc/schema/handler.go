package schema

import (
	"encoding/json"
	"net/http"

	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// Handler serves the registered tool schemas as JSON.
type Handler struct {
	Registry *tools.Registry
}

// ServeHTTP renders schemas.
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Registry.Schemas())
}
