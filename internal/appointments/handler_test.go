package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubva/crm-scheduler/internal/eligibility"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

var brt = time.FixedZone("BRT", -3*3600)

func testKeyGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newTestServer(t *testing.T, now time.Time) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := newTestService()
	rules := eligibility.DefaultRules()
	rules.Location = brt
	h := NewHandler(svc, StaticSchedule{Rules: rules, Window: eligibility.DefaultWindow()}, logging.New("error"))
	h.now = func() time.Time { return now }
	srv := httptest.NewServer(h.Routes(testKeyGate))
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var raw json.RawMessage
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	}
	return resp, raw
}

// Wednesday 2025-12-17 08:00 BRT
var handlerNow = time.Date(2025, 12, 17, 8, 0, 0, 0, brt)

func TestCreateThenListRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/", `{"date_time":"2025-12-17T13:00:00-03:00","title":"Demo","status":"disponivel"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created Appointment
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, StatusAvailable, created.Status)
	assert.Equal(t, 30, created.DurationMinutes)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/?startDate=2025-12-17&endDate=2025-12-17", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []Appointment
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, created.ID, rows[0].ID)
	assert.True(t, rows[0].DateTime.Equal(time.Date(2025, 12, 17, 16, 0, 0, 0, time.UTC)))

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/?startDate=2025-12-18", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestCreateDuplicateReturnsConflict(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/", `{"date_time":"2025-12-17T13:00:00-03:00"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/", `{"date_time":"2025-12-17T13:00"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Time slot already exists"}`, string(body))
}

func TestToggleBookedReturnsConflict(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/book", `{"date_time":"2025-12-17T13:00:00-03:00","customer_name":"Ana","contactId":17}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/toggle-availability", `{"date_time":"2025-12-17T13:00:00-03:00","contactId":"17"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Time slot already booked"}`, string(body))
}

func TestToggleRequiresDateTime(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/toggle-availability", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"date_time is required"}`, string(body))
}

func TestUpdateAndDeleteUnknownID(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/missing", `{"notes":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Appointment not found"}`, string(body))

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	srv, svc := newTestServer(t, handlerNow)
	row, err := svc.Create(t.Context(), CreateInput{DateTime: slot})
	require.NoError(t, err)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/"+row.ID, `{"status":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/"+row.ID, `{"status":"nao_disponivel"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated Appointment
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, StatusUnavailable, updated.Status)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/"+row.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestExportRequiresAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/disponiveis", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, string(body))
}

func getWithKey(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("x-api-key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp, raw
}

func TestWhatsAppExportEmpty(t *testing.T) {
	srv, svc := newTestServer(t, handlerNow)
	// Same-day slots before opening and a Saturday slot are never offered.
	for _, at := range []time.Time{
		time.Date(2025, 12, 17, 8, 30, 0, 0, brt),
		time.Date(2025, 12, 17, 8, 45, 0, 0, brt),
		time.Date(2025, 12, 20, 10, 0, 0, 0, brt),
	} {
		_, err := svc.Toggle(t.Context(), at, nil)
		require.NoError(t, err)
	}

	resp, body := getWithKey(t, srv.URL+"/disponiveis/whatsapp")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty EmptyExport
	require.NoError(t, json.Unmarshal(body, &empty))
	assert.Equal(t, "Nenhum horário disponível no momento", empty.Message)
	assert.NotEmpty(t, empty.Details)

	resp, body = getWithKey(t, srv.URL+"/disponiveis")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw []Appointment
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Len(t, raw, 3)
}

func TestWhatsAppExportFormatsEligibleSlots(t *testing.T) {
	srv, svc := newTestServer(t, handlerNow)
	for _, at := range []time.Time{
		time.Date(2025, 12, 17, 13, 0, 0, 0, brt),
		time.Date(2025, 12, 19, 17, 0, 0, 0, brt), // Friday after 16h
		time.Date(2025, 12, 18, 9, 0, 0, 0, brt),
	} {
		_, err := svc.Toggle(t.Context(), at, nil)
		require.NoError(t, err)
	}

	resp, body := getWithKey(t, srv.URL+"/disponiveis/whatsapp")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var slots []ExportSlot
	require.NoError(t, json.Unmarshal(body, &slots))
	require.Len(t, slots, 2)
	assert.Equal(t, "Quarta-feira, 17/12", slots[0].Description)
	assert.Equal(t, "13:00", slots[0].Title)
	assert.Equal(t, "Quinta-feira, 18/12", slots[1].Description)
	assert.Equal(t, "09:00", slots[1].Title)
}

func TestDayGridEndpoint(t *testing.T) {
	srv, svc := newTestServer(t, handlerNow)
	_, err := svc.Toggle(t.Context(), time.Date(2025, 12, 17, 14, 0, 0, 0, brt), nil)
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/grade?date=2025-12-17", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var grid eligibility.DayGrid
	require.NoError(t, json.Unmarshal(body, &grid))
	assert.Equal(t, "2025-12-17", grid.Date)
	require.NotEmpty(t, grid.Slots)

	states := map[string]eligibility.SlotState{}
	for _, s := range grid.Slots {
		states[s.Label] = s.State
	}
	assert.Equal(t, eligibility.StateAvailable, states["14:00"])
	assert.Equal(t, eligibility.StateUnset, states["15:00"])
	assert.Equal(t, eligibility.StateNotOffered, states["08:00"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/grade?date=17-12-2025", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonthCalendarEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, handlerNow)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/calendario?month=2025-12", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var month eligibility.MonthSummary
	require.NoError(t, json.Unmarshal(body, &month))
	assert.Len(t, month.Days, 31)
}

func TestParseInstantNaiveUsesLocation(t *testing.T) {
	got, err := ParseInstant("2025-12-17T13:00", brt)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 12, 17, 16, 0, 0, 0, time.UTC)))

	_, err = ParseInstant("tomorrow", brt)
	assert.Error(t, err)
}

type brokenSchedule struct{}

func (brokenSchedule) Schedule(context.Context) (eligibility.Rules, eligibility.Window, error) {
	return eligibility.Rules{}, eligibility.Window{}, errors.New("redis: connection refused")
}

func TestHandlersFallBackWhenScheduleSourceFails(t *testing.T) {
	svc, _ := newTestService()
	rules := eligibility.DefaultRules()
	rules.Location = brt
	h := NewHandler(svc, brokenSchedule{}, logging.New("error")).WithFallback(rules, eligibility.DefaultWindow())
	h.now = func() time.Time { return handlerNow }
	srv := httptest.NewServer(h.Routes(testKeyGate))
	t.Cleanup(srv.Close)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/toggle-availability", `{"date_time":"2025-12-17T13:00:00-03:00"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/", `{"date_time":"2025-12-18T10:00:00"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created Appointment
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.DateTime.Equal(time.Date(2025, 12, 18, 13, 0, 0, 0, time.UTC)), "naive time uses fallback zone")

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/?startDate=2025-12-17&endDate=2025-12-18", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rows []Appointment
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Len(t, rows, 2)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/grade?date=2025-12-18", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
