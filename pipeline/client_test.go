package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-ai/callbridge/types"
)

func TestHTTPClient_ProcessConversation(t *testing.T) {
	var gotPath string
	var gotReq ProcessRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ProcessResult{Success: true, ConversationID: "c1", Alerts: []string{"low_mood"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "pk"}, nil)
	res, err := c.ProcessConversation(context.Background(), ProcessRequest{
		PatientID: "p1",
		CallSID:   "CA1",
		Transcript: []types.TranscriptEntry{
			{Speaker: types.SpeakerPatient, Text: "hello", Timestamp: time.Now()},
		},
		DurationS: 61.5,
		Mood:      "neutral",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/conversations/process", gotPath)
	assert.Equal(t, "p1", gotReq.PatientID)
	assert.True(t, res.Success)
	assert.Equal(t, "c1", res.ConversationID)
	assert.Equal(t, []string{"low_mood"}, res.Alerts)
}

func TestHTTPClient_GetPatientContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/patients/context", r.URL.Path)
		json.NewEncoder(w).Encode(PatientContext{PatientID: "p1", Name: "Rose", Interests: []string{"jazz"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL}, nil)
	pc, err := c.GetPatientContext(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Rose", pc.Name)
	assert.Equal(t, []string{"jazz"}, pc.Interests)
}

func TestHTTPClient_SearchAndLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/content/nostalgia", "/v1/content/realtime":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []SearchResult{{Title: "1952 World Series", Snippet: "Yankees win"}},
			})
		case "/v1/medications/log", "/v1/alerts/trigger":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL}, nil)
	ctx := context.Background()

	hits, err := c.SearchNostalgia(ctx, "p1", "baseball")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1952 World Series", hits[0].Title)

	hits, err = c.SearchRealtime(ctx, "p1", "weather")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, c.LogMedicationCheck(ctx, "p1", "lisinopril", "taken"))
	require.NoError(t, c.TriggerAlert(ctx, "p1", "high", "confusion"))
}

func TestHTTPClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pipeline down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.ProcessConversation(context.Background(), ProcessRequest{PatientID: "p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
