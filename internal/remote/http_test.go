package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailbase/possync/internal/models"
)

func TestCreateSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	var gotBody models.Category

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/categories", r.URL.Path)
		gotKey = r.Header.Get(IdempotencyKeyHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Category{ID: "srv-1", Name: gotBody.Name, UpdatedAt: 42})
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Category](srv.URL, "/api/categories")
	created, err := client.Create(context.Background(), models.Category{Name: "Drinks"}, "key-abc")
	require.NoError(t, err)

	assert.Equal(t, "key-abc", gotKey)
	assert.Equal(t, "Drinks", gotBody.Name)
	assert.Equal(t, "srv-1", created.ID)
	assert.Equal(t, int64(42), created.UpdatedAt)
}

func TestCreateConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Category](srv.URL, "/api/categories")
	_, err := client.Create(context.Background(), models.Category{Name: "Dup"}, "key")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
}

func TestCreateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Category](srv.URL, "/api/categories")
	_, err := client.Create(context.Background(), models.Category{Name: "X"}, "key")
	require.Error(t, err)
	assert.False(t, IsConflict(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Contains(t, statusErr.Body, "database unavailable")
}

func TestUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/products/srv-7", r.URL.Path)
		json.NewEncoder(w).Encode(models.Product{ID: "srv-7", Name: "Espresso", UpdatedAt: 99})
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Product](srv.URL, "/api/products")
	updated, err := client.Update(context.Background(), "srv-7", models.Product{Name: "Espresso"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), updated.UpdatedAt)
}

func TestUpdateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Product](srv.URL, "/api/products")
	_, err := client.Update(context.Background(), "gone", models.Product{})
	assert.True(t, IsNotFound(err))
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErr    bool
		isNotFound bool
	}{
		{"ok", http.StatusOK, false, false},
		{"no content", http.StatusNoContent, false, false},
		{"not found", http.StatusNotFound, true, true},
		{"server error", http.StatusInternalServerError, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewHTTPClient[models.Category](srv.URL, "/api/categories")
			err := client.Delete(context.Background(), "c1")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.isNotFound, IsNotFound(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode([]models.Category{
			{ID: "c1", Name: "Drinks"},
			{ID: "c2", Name: "Food"},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Category](srv.URL, "/api/categories")
	got, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[1].ID)
}

func TestListError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient[models.Category](srv.URL, "/api/categories")
	_, err := client.List(context.Background())
	require.Error(t, err)
}

func TestPathNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/categories", r.URL.Path)
		json.NewEncoder(w).Encode([]models.Category{})
	}))
	defer srv.Close()

	// Trailing and leading slashes must not produce double slashes.
	client := NewHTTPClient[models.Category](srv.URL+"/", "api/categories/")
	_, err := client.List(context.Background())
	require.NoError(t, err)
}
