package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The wallet paths are part of the public API contract; resolve each one
// against the router rather than invoking handlers, so a rename shows up as
// a failed match.
func TestRouterWalletPaths(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h, nil, slogt.New(t))

	cases := []struct {
		method string
		path   string
		vars   map[string]string
	}{
		{http.MethodPost, "/api/v1/wallet/webhook", nil},
		{http.MethodPost, "/api/v1/wallet/upi/pay", nil},
		{http.MethodGet, "/api/v1/wallet/upi/status/track_abc123", map[string]string{"trackingId": "track_abc123"}},
		{http.MethodPost, "/api/v1/wallet/upi/validate", nil},
		{http.MethodGet, "/api/v1/wallet/user_42", map[string]string{"userId": "user_42"}},
		{http.MethodGet, "/api/v1/wallet/user_42/transactions", map[string]string{"userId": "user_42"}},
		{http.MethodPost, "/api/v1/wallet/user_42/add", map[string]string{"userId": "user_42"}},
		{http.MethodPost, "/api/v1/wallet/user_42/verify-payment", map[string]string{"userId": "user_42"}},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			var match mux.RouteMatch
			require.True(t, router.Match(req, &match), "no route for %s %s", tc.method, tc.path)
			require.NoError(t, match.MatchErr)
			for k, v := range tc.vars {
				assert.Equal(t, v, match.Vars[k])
			}
		})
	}
}

// Fixed wallet paths must win over the {userId} wildcard.
func TestRouterFixedPathsNotCapturedAsUserID(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h, nil, slogt.New(t))

	for _, path := range []string{
		"/api/v1/wallet/upi/validate",
		"/api/v1/wallet/webhook",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		var match mux.RouteMatch
		require.True(t, router.Match(req, &match))
		assert.Empty(t, match.Vars["userId"], "%s resolved to the wildcard route", path)
	}
}
