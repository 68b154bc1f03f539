package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-ai/callbridge/types"
)

func TestHTTPScorer_Score(t *testing.T) {
	var gotLines []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Lines []string `json:"lines"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotLines = body.Lines
		json.NewEncoder(w).Encode(map[string]string{"sentiment": "Negative"})
	}))
	defer srv.Close()

	s := NewHTTPScorer(Config{URL: srv.URL}, nil)
	label, err := s.Score(context.Background(), []string{"patient: I feel lonely"})
	require.NoError(t, err)
	assert.Equal(t, "negative", label)
	assert.Equal(t, []string{"patient: I feel lonely"}, gotLines)
}

func TestHTTPScorer_FailuresAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPScorer(Config{URL: srv.URL}, nil)
	_, err := s.Score(context.Background(), []string{"line"})
	require.Error(t, err)
	assert.Equal(t, types.ErrTransientAnalysis, types.GetErrorCode(err))
	assert.False(t, types.IsFatal(err))
}

func TestHTTPScorer_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewHTTPScorer(Config{URL: srv.URL}, nil)
	_, err := s.Score(ctx, []string{"line"})
	require.Error(t, err)
	assert.Equal(t, types.ErrTransientAnalysis, types.GetErrorCode(err))
}

func TestLabelHelpers(t *testing.T) {
	assert.True(t, IsNegative("negative"))
	assert.True(t, IsNegative("Negative_anxious"))
	assert.False(t, IsNegative("neutral"))
	assert.True(t, IsPositive("positive_excited"))
	assert.False(t, IsPositive("negative"))
}
