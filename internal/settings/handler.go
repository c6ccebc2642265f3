package settings

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ubva/crm-scheduler/pkg/logging"
)

// ChangeNotifier is told when the policy changes so clients re-query.
type ChangeNotifier interface {
	NotifyChanged(ctx context.Context)
}

// Handler serves GET/PUT /api/settings/agendamento.
type Handler struct {
	store    Store
	notifier ChangeNotifier
	logger   *logging.Logger
}

func NewHandler(store Store, notifier ChangeNotifier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, notifier: notifier, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load schedule settings", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	var in Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Save(r.Context(), in); err != nil {
		h.logger.Error("failed to save schedule settings", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	h.logger.Info("schedule settings updated", "timezone", in.Timezone, "days", in.Days)
	if h.notifier != nil {
		h.notifier.NotifyChanged(r.Context())
	}
	writeJSON(w, http.StatusOK, in)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
