package search_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/randalmurphal/mindflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/search"
)

func TestSearch_Disabled(t *testing.T) {
	c := search.New("")
	assert.False(t, c.Enabled())
	assert.Equal(t, "Search disabled (No API Key).", c.Search(context.Background(), "rates"))

	_, err := c.Lookup(context.Background(), "rates")
	assert.ErrorIs(t, err, search.ErrNoAPIKey)
}

func TestSearch_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"title": "Debt Avalanche", "url": "https://nerdwallet.com/a", "content": "Pay highest rate first.", "score": 0.9},
			{"title": "TFSA limits", "url": "https://canada.ca/b", "content": "Annual limit is $7000."}
		]}`))
	}))
	defer srv.Close()

	c := search.New("key-1", search.WithEndpoint(srv.URL), search.WithMaxResults(2))
	text := c.Search(context.Background(), "pay off credit card debt")

	assert.Equal(t,
		"- Debt Avalanche: Pay highest rate first. (Source: https://nerdwallet.com/a)\n"+
			"- TFSA limits: Annual limit is $7000. (Source: https://canada.ca/b)",
		text)
	assert.False(t, search.IsDegraded(text))

	assert.Equal(t, "pay off credit card debt", got["query"])
	assert.Equal(t, "basic", got["search_depth"])
	assert.EqualValues(t, 2, got["max_results"])
	assert.Len(t, got["include_domains"], len(search.DefaultDomains))
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c := search.New("k", search.WithEndpoint(srv.URL), search.WithIncludeDomains())
	assert.Equal(t, search.NoResults, c.Search(context.Background(), "x"))
}

func TestSearch_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category flowerrors.Category
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", category: flowerrors.CategoryTransient},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "bad key", category: flowerrors.CategoryPermanent},
		{name: "server error", status: http.StatusBadGateway, body: "upstream", category: flowerrors.CategoryTransient},
		{name: "malformed body", status: http.StatusOK, body: "<html>", category: flowerrors.CategoryMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := search.New("k", search.WithEndpoint(srv.URL))

			_, err := c.Lookup(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.category, flowerrors.Categorize(err))

			text := c.Search(context.Background(), "x")
			assert.True(t, search.IsDegraded(text))
			assert.Contains(t, text, "Search unavailable: ")
		})
	}
}

func TestSearch_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := search.New("k", search.WithEndpoint(url), search.WithHTTPClient(srv.Client()))
	_, err := c.Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, flowerrors.IsTransient(err))
}

func TestSearch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := search.New("k", search.WithEndpoint(srv.URL), search.WithTimeout(50*time.Millisecond))
	_, err := c.Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, flowerrors.IsTransient(err))
	assert.Contains(t, c.Search(context.Background(), "x"), "Search unavailable: ")
}

func TestSearch_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := search.New("k", search.WithEndpoint(srv.URL))
	_, err := c.Lookup(ctx, "x")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsDegraded(t *testing.T) {
	assert.True(t, search.IsDegraded(search.Disabled))
	assert.True(t, search.IsDegraded(search.NoResults))
	assert.True(t, search.IsDegraded(search.Unavailable(errors.New("boom"))))
	assert.False(t, search.IsDegraded("- a: b (Source: c)"))
}
