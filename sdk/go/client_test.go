package teamdesksdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInKeepsTokenForLaterCalls(t *testing.T) {
	var seenAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0/auth/signin":
			json.NewEncoder(w).Encode(Session{Token: "tok", User: User{UID: "u1"}})
		case "/v0/me":
			seenAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{"user": User{UID: "u1", Role: "staff"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SignIn(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", seenAuth)
	assert.Equal(t, "staff", me.Role)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"forbidden","message":"not allowed to delete task: nope"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "key"
	err := c.DeleteTask(context.Background(), "t1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "not allowed to delete task")
}

func TestEventsPageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/events", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "42", r.URL.Query().Get("cursor"))
		w.Write([]byte(`{"items":[{"id":41,"type":"task.created"}],"nextCursor":"41"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL).EventsPage(context.Background(), 10, "42")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "41", page.NextCursor)
}
