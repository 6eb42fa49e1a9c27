package pd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/pkg/retry"
	"github.com/lorepanichi/pdh/record"
)

func testClient(t *testing.T, serverURL, email string, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithBaseURL(serverURL),
		WithRateLimit(1000, 1000),
		WithRetry(retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		}),
	}
	client, err := NewClient("test-key", email, append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(body))
	assert.NoError(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "ops@example.com")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestRequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token token=test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.pagerduty+json;version=2", r.Header.Get("Accept"))
		assert.Equal(t, "pdh", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("From"), "GET requests carry no From header")
		writeJSON(t, w, `{"users":[{"id":"U1"}],"more":false}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "ops@example.com")
	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "U1", record.ID(users[0]))
}

func TestPagination(t *testing.T) {
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		if offset == "0" {
			writeJSON(t, w, `{"users":[{"id":"U1"},{"id":"U2"}],"more":true}`)
			return
		}
		writeJSON(t, w, `{"users":[{"id":"U3"}],"more":false}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "", WithPageLimit(2))
	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "2"}, offsets)
	assert.Equal(t, []string{"U1", "U2", "U3"}, users.IDs())
}

func TestUnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	_, err := client.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestRateLimitedThenRecovered(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, `{"users":[],"more":false}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	_, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitedExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	_, err := client.ListUsers(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRateLimited)
	assert.True(t, errors.IsTransient(err))
}

func TestServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(t, w, `{"users":[{"id":"U1"}],"more":false}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	_, err := client.ListAlerts(context.Background(), "PNOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.True(t, errors.IsData(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMalformedResponseNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, `{"users": [{`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	_, err := client.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsData(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestListIncidentsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/incidents", r.URL.Path)
		query := r.URL.Query()
		assert.Equal(t, []string{"triggered", "acknowledged"}, query["statuses[]"])
		assert.Equal(t, []string{"high"}, query["urgencies[]"])
		assert.Equal(t, []string{"U1"}, query["user_ids[]"])
		assert.Equal(t, []string{"T1"}, query["team_ids[]"])
		writeJSON(t, w, `{"incidents":[{"id":"P1"},{"id":"P2"}],"more":false}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	incidents, err := client.ListIncidents(context.Background(), ListIncidentsOptions{
		Statuses:  []string{"triggered", "acknowledged"},
		Urgencies: []string{"high"},
		UserIDs:   []string{"U1"},
		TeamIDs:   []string{"T1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, incidents.IDs())
}

func TestAcknowledge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/incidents", r.URL.Path)
		assert.Equal(t, "ops@example.com", r.Header.Get("From"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Incidents []map[string]any `json:"incidents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Incidents, 2)
		assert.Equal(t, "P1", body.Incidents[0]["id"])
		assert.Equal(t, "incident_reference", body.Incidents[0]["type"])
		assert.Equal(t, "acknowledged", body.Incidents[0]["status"])
		assert.Equal(t, "P2", body.Incidents[1]["id"])

		writeJSON(t, w, `{"incidents":[{"id":"P1","status":"acknowledged"},{"id":"P2","status":"acknowledged"}]}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "ops@example.com")
	updated, err := client.Acknowledge(context.Background(), []string{"P1", "P2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, updated.IDs())
}

func TestResolveSetsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Incidents []map[string]any `json:"incidents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Incidents, 1)
		assert.Equal(t, "resolved", body.Incidents[0]["status"])
		writeJSON(t, w, `{"incidents":[{"id":"P1","status":"resolved"}]}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "ops@example.com")
	updated, err := client.Resolve(context.Background(), []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, "resolved", record.StringAt(updated[0], "status"))
}

func TestSnooze(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(14400), body["duration"])
		writeJSON(t, w, `{"incident":{"id":"P1"}}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "ops@example.com")
	err := client.Snooze(context.Background(), []string{"P1", "P2"}, 14400)
	require.NoError(t, err)
	assert.Equal(t, []string{"/incidents/P1/snooze", "/incidents/P2/snooze"}, paths)
}

func TestSnoozeRejectsNonPositiveDuration(t *testing.T) {
	client := testClient(t, "http://unused.invalid", "ops@example.com")
	err := client.Snooze(context.Background(), []string{"P1"}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestReassign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)

		var body struct {
			Incidents []struct {
				ID          string `json:"id"`
				Type        string `json:"type"`
				Assignments []struct {
					Assignee map[string]any `json:"assignee"`
				} `json:"assignments"`
			} `json:"incidents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Incidents, 1)
		require.Len(t, body.Incidents[0].Assignments, 1)
		assert.Equal(t, "U9", body.Incidents[0].Assignments[0].Assignee["id"])
		assert.Equal(t, "user_reference", body.Incidents[0].Assignments[0].Assignee["type"])

		writeJSON(t, w, `{"incidents":[{"id":"P1"}]}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "ops@example.com")
	updated, err := client.Reassign(context.Background(), []string{"P1"}, "U9")
	require.NoError(t, err)
	assert.Len(t, updated, 1)
}

func TestMutationsRequireEmail(t *testing.T) {
	client := testClient(t, "http://unused.invalid", "")

	_, err := client.Acknowledge(context.Background(), []string{"P1"})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	err = client.Snooze(context.Background(), []string{"P1"}, 600)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = client.Reassign(context.Background(), []string{"P1"}, "U9")
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestListAlerts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/incidents/P1/alerts", r.URL.Path)
		writeJSON(t, w, `{"alerts":[{"id":"A1","status":"triggered"}]}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	alerts, err := client.ListAlerts(context.Background(), "P1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "A1", record.ID(alerts[0]))

	_, err = client.ListAlerts(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestMe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		writeJSON(t, w, `{"user":{"id":"U1","name":"Alice Ops"}}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U1", record.ID(me))
	assert.Equal(t, "Alice Ops", record.StringAt(me, "name"))
}

func TestFindUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("query") {
		case "alice@example.com":
			writeJSON(t, w, `{"users":[
				{"id":"U1","name":"Alice Ops","email":"alice@example.com"},
				{"id":"U2","name":"Alice Opsuki","email":"alice2@example.com"}],"more":false}`)
		case "bob":
			writeJSON(t, w, `{"users":[{"id":"U3","name":"Bob Builder","email":"bob@example.com"}],"more":false}`)
		case "al":
			writeJSON(t, w, `{"users":[
				{"id":"U1","name":"Alice Ops","email":"alice@example.com"},
				{"id":"U4","name":"Alan Grant","email":"alan@example.com"}],"more":false}`)
		default:
			writeJSON(t, w, `{"users":[],"more":false}`)
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, "")
	ctx := context.Background()

	id, err := client.FindUserID(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "U1", id, "exact email match wins over other candidates")

	id, err = client.FindUserID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "U3", id, "a single candidate is accepted without an exact match")

	_, err = client.FindUserID(ctx, "al")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = client.FindUserID(ctx, "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/incidents", "/incidents"},
		{"/users/me", "/users"},
		{"/incidents/P123/alerts", "/incidents/alerts"},
		{"/incidents/P123/snooze", "/incidents/snooze"},
		{"/", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endpointLabel(tt.path), "path %q", tt.path)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), retryAfter(resp))

	resp.Header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, retryAfter(resp))

	resp.Header.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), retryAfter(resp))
}
