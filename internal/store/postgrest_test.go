// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mockPostgREST(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPostgRESTStore_Select(t *testing.T) {
	server := mockPostgREST(t, map[string]http.HandlerFunc{
		"/rest/v1/projects": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "*", r.URL.Query().Get("select"))
			assert.Equal(t, "12", r.URL.Query().Get("limit"))
			assert.Equal(t, "anon-key", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"title":"Alpha","sort_order":1,"published":true},{"title":"Beta"}]`))
		},
	})

	store, err := NewPostgRESTStore(server.URL+"/", "anon-key", time.Second, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	rows, err := store.Select(context.Background(), "projects", 12)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alpha", rows[0]["title"])
	assert.Equal(t, float64(1), rows[0]["sort_order"])
	assert.True(t, rows[0].Published())
	assert.Equal(t, float64(1), rows[0].SortOrder())
}

func TestPostgRESTStore_NotFound(t *testing.T) {
	server := mockPostgREST(t, map[string]http.HandlerFunc{
		"/rest/v1/": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"42P01","message":"relation \"public.papers\" does not exist"}`))
		},
	})

	store, err := NewPostgRESTStore(server.URL, "", time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Select(context.Background(), "papers", 12)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceNotFound))
	assert.Contains(t, err.Error(), "42P01")
}

func TestPostgRESTStore_ServerError(t *testing.T) {
	server := mockPostgREST(t, map[string]http.HandlerFunc{
		"/rest/v1/skills": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("upstream exploded"))
		},
	})

	store, err := NewPostgRESTStore(server.URL, "", time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Select(context.Background(), "skills", 12)
	require.Error(t, err)

	var pgErr *PostgRESTError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, http.StatusInternalServerError, pgErr.StatusCode)
	assert.Equal(t, "upstream exploded", pgErr.Message)
	assert.False(t, errors.Is(err, ErrSourceNotFound))
}

func TestPostgRESTStore_MalformedBody(t *testing.T) {
	server := mockPostgREST(t, map[string]http.HandlerFunc{
		"/rest/v1/skills": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a list"}`))
		},
	})

	store, err := NewPostgRESTStore(server.URL, "", time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Select(context.Background(), "skills", 12)
	assert.Error(t, err)
}

func TestPostgRESTStore_Ping(t *testing.T) {
	server := mockPostgREST(t, map[string]http.HandlerFunc{
		"/rest/v1/": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	store, err := NewPostgRESTStore(server.URL, "key", 0, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewPostgRESTStore_InvalidURL(t *testing.T) {
	_, err := NewPostgRESTStore("not a url", "", time.Second, nil)
	assert.Error(t, err)
}
