package server

import (
	"encoding/json"
	"net/http"
)

// HandleStatus returns the promotion engine's status summary.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	st := h.status.Status()
	resp := map[string]any{
		"connected":  h.transport != nil && h.transport.Connected(),
		"channel":    st.Channel,
		"nickname":   st.Nickname,
		"cooldown":   st.Cooldown,
		"tracked":    st.Tracked,
		"promotions": st.Promotions,
		"failures":   st.Failures,
	}
	if st.LastPromoted != "" {
		resp["last_promoted"] = st.LastPromoted
	}
	if st.LastPromotedAt != nil {
		resp["last_promoted_at"] = st.LastPromotedAt.UTC()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleConfig returns the effective, non-secret settings.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := h.settings
	if out == nil {
		out = map[string]string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
