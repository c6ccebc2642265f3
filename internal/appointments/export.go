package appointments

import (
	"fmt"
	"net/http"
	"time"
)

// ExportSlot is one offerable time formatted for an outbound messaging list.
type ExportSlot struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Title       string `json:"title"`
}

// EmptyExport is returned instead of an empty list so the automation can
// relay a sentence to the customer.
type EmptyExport struct {
	Message string `json:"message"`
	Details string `json:"details"`
}

var weekdayLabels = [...]string{
	time.Sunday:    "Domingo",
	time.Monday:    "Segunda-feira",
	time.Tuesday:   "Terça-feira",
	time.Wednesday: "Quarta-feira",
	time.Thursday:  "Quinta-feira",
	time.Friday:    "Sexta-feira",
	time.Saturday:  "Sábado",
}

// FormatExportSlot renders a as "Quarta-feira, 17/12" / "13:00" in loc.
func FormatExportSlot(a Appointment, loc *time.Location) ExportSlot {
	local := a.DateTime.In(locationOrUTC(loc))
	return ExportSlot{
		ID:          a.ID,
		Description: fmt.Sprintf("%s, %s", weekdayLabels[local.Weekday()], local.Format("02/01")),
		Title:       local.Format("15:04"),
	}
}

// Available handles GET /api/agendamento/disponiveis. The caller gates it
// behind the automation API key.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListAvailable(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to fetch available appointments")
		return
	}
	if rows == nil {
		rows = []Appointment{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// AvailableWhatsApp handles GET /api/agendamento/disponiveis/whatsapp. Only
// eligible slots are listed.
func (h *Handler) AvailableWhatsApp(w http.ResponseWriter, r *http.Request) {
	rules, _ := h.currentSchedule(r.Context())
	rows, err := h.svc.ListAvailable(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to fetch available appointments")
		return
	}
	now := h.now()
	out := make([]ExportSlot, 0, len(rows))
	for _, a := range rows {
		if !rules.IsEligible(a.DateTime, now) {
			continue
		}
		out = append(out, FormatExportSlot(a, rules.Location))
	}
	if len(out) == 0 {
		writeJSON(w, http.StatusOK, EmptyExport{
			Message: "Nenhum horário disponível no momento",
			Details: "Não há horários livres dentro do expediente. Tente novamente mais tarde.",
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}
