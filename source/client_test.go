package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/violation-sync/violations"
)

const sampleResponse = `[
  {
    "ticket_number": "0123456789",
    "respondent_last_name": "GC WAREHOUSE",
    "hearing_date": "2025-07-01T00:00:00.000",
    "hearing_status": "SCHEDULED",
    "respondent_plate": "ABC1234",
    "penalty_imposed": "350",
    "balance_due": 350.5,
    "violation_date": "2025-01-10T00:00:00.000",
    "violation_location_house": "123"
  },
  {
    "ticket_number": "0987654321",
    "hearing_status": "DEFAULTED"
  }
]`

func TestClient_FetchBuildsQueryAndMapsFields(t *testing.T) {
	// GIVEN: A source endpoint returning two rows
	// WHEN: Fetching with limit, category and order
	// THEN: The query carries all three and rows map onto RawRecord

	var gotQuery map[string]string
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"$limit": r.URL.Query().Get("$limit"),
			"$where": r.URL.Query().Get("$where"),
			"$order": r.URL.Query().Get("$order"),
		}
		gotToken = r.Header.Get("X-App-Token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, AppToken: "secret"})
	require.NoError(t, err)

	records, err := client.Fetch(context.Background(), violations.Query{
		Limit:    1000,
		Category: "charge_1_code_section like '%24-163%'",
		OrderBy:  violations.DefaultHearingDateCol,
		Order:    violations.SortDescending,
	})
	require.NoError(t, err)

	assert.Equal(t, "1000", gotQuery["$limit"])
	assert.Equal(t, "charge_1_code_section like '%24-163%'", gotQuery["$where"])
	assert.Equal(t, "hearing_date DESC", gotQuery["$order"])
	assert.Equal(t, "secret", gotToken)

	require.Len(t, records, 2)
	first := records[0]
	assert.Equal(t, "0123456789", first.ReferenceNumber)
	assert.Equal(t, "GC WAREHOUSE", first.Respondent)
	assert.Equal(t, "2025-07-01T00:00:00.000", first.HearingDate)
	assert.Equal(t, "SCHEDULED", first.Status)
	assert.Equal(t, "ABC1234", first.Plate)
	assert.Equal(t, "123", first.ViolationLocation)
	assert.Equal(t, "350.50", violations.NormalizeAmount(first.AmountDue).StringFixed(2))
	assert.Equal(t, "350.00", violations.NormalizeAmount(first.BaseFine).StringFixed(2))

	second := records[1]
	assert.Empty(t, second.Respondent)
	assert.Nil(t, second.AmountDue)
}

func TestClient_RenamedColumns(t *testing.T) {
	var order string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = r.URL.Query().Get("$order")
		w.Write([]byte(`[{"summons": "A1", "name": "Acme", "when": "2025-01-01"}]`))
	}))
	defer srv.Close()

	fields := DefaultFieldMap
	fields.ReferenceNumber = "summons"
	fields.Respondent = "name"
	fields.HearingDate = "when"
	client, err := New(Config{BaseURL: srv.URL, Fields: fields})
	require.NoError(t, err)

	records, err := client.Fetch(context.Background(), violations.Query{OrderBy: violations.DefaultHearingDateCol})
	require.NoError(t, err)

	assert.Equal(t, "when DESC", order)
	require.Len(t, records, 1)
	assert.Equal(t, "A1", records[0].ReferenceNumber)
	assert.Equal(t, "Acme", records[0].Respondent)
	assert.Equal(t, "2025-01-01", records[0].HearingDate)
}

func TestClient_NonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), violations.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_BadJSONIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), violations.Query{})
	assert.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), violations.Query{})
	assert.Error(t, err)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
