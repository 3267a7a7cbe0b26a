package loader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/state"
)

func TestRESTLoader(t *testing.T) {
	var gotQuery Query
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[{"id":"1","name":"anvil"},{"id":"2","name":"rope"}],"totalCount":42}`))
	}))
	defer srv.Close()

	l, err := NewREST(DefaultRESTConfig(srv.URL))
	require.NoError(t, err)
	defer l.Close()

	res, err := l.Load(context.Background(), Query{
		Pagination: state.PaginationModel{Page: 2, PageSize: 25},
		Search:     "an",
	})
	require.NoError(t, err)

	assert.Equal(t, 42, res.TotalCount)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "anvil", res.Rows[0]["name"])

	assert.Equal(t, 2, gotQuery.Pagination.Page)
	assert.Equal(t, 25, gotQuery.Pagination.PageSize)
	assert.Equal(t, "an", gotQuery.Search)
}

func TestRESTLoaderSendsHeaders(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`{"rows":[],"totalCount":0}`))
	}))
	defer srv.Close()

	cfg := DefaultRESTConfig(srv.URL)
	cfg.Headers = map[string]string{"X-Api-Key": "secret"}
	l, err := NewREST(cfg)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Load(context.Background(), Query{Pagination: state.PaginationModel{PageSize: 10}})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestRESTLoaderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	l, err := NewREST(DefaultRESTConfig(srv.URL))
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Load(context.Background(), Query{Pagination: state.PaginationModel{PageSize: 10}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLoader))
	assert.True(t, errors.IsRetryable(err))
}

func TestRESTLoaderHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	l, err := NewREST(DefaultRESTConfig(srv.URL))
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Load(ctx, Query{Pagination: state.PaginationModel{PageSize: 10}})
	require.Error(t, err)
}

func TestNewRESTRejectsBadURL(t *testing.T) {
	_, err := NewREST(RESTConfig{BaseURL: "not-a-url"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
