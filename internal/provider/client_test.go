package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newProviderServer wires a token endpoint and a data mux into one test
// server and returns a client pointed at it.
func newProviderServer(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":3600}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	tokens := NewTokenCache(srv.URL+"/oauth/token", zap.NewNop())
	return NewClient(srv.URL, tokens, zap.NewNop()), srv
}

func TestListFleetsFollowsPaginationAndNormalizes(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/Fleets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("Page") == "2" {
			// camelCase variant, no further pages
			_, _ = w.Write([]byte(`{"items":[{"id":"HF2","uniqueName":"beta"},{"uniqueName":"no-id-skipped"}]}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"fleets":[{"sid":"HF1","unique_name":"alpha"}],"meta":{"next_page_url":"%s/v1/Fleets?Page=2"}}`, srv.URL)
	})
	client, s := newProviderServer(t, mux)
	srv = s

	fleets, err := client.ListFleets(context.Background(), testTenant())
	require.NoError(t, err)
	require.Len(t, fleets, 2, "entry without a resolvable id is skipped")
	assert.Equal(t, RemoteFleet{Sid: "HF1", Name: "alpha"}, fleets[0])
	assert.Equal(t, RemoteFleet{Sid: "HF2", Name: "beta"}, fleets[1])
}

func TestListSimsEndpointFallback(t *testing.T) {
	var dataCalls atomic.Int32
	mux := http.NewServeMux()
	// The flat /v1/Sims path rejects every query-parameter casing; only
	// the nested fleet path (the fifth candidate) works.
	mux.HandleFunc("/v1/Sims", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/v1/Fleets/HF1/Sims", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sims":[
			{"sid":"S1","iccid":"8901","status":"active"},
			{"sid":"S2","iccid":"8902","status":"active"},
			{"sid":"S3","iccid":"8903","status":"inactive"}
		]}`))
	})
	client, _ := newProviderServer(t, mux)

	sims, err := client.ListSims(context.Background(), testTenant(), "HF1")
	require.NoError(t, err)
	require.Len(t, sims, 3)
	assert.Equal(t, "S1", sims[0].Sid)
	assert.Equal(t, "8903", sims[2].ICCID)
	// Four rejected candidates plus the one that succeeded.
	assert.Equal(t, int32(5), dataCalls.Load())
}

func TestListSimsAllCandidatesNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"gone"}`, http.StatusNotFound)
	})
	client, _ := newProviderServer(t, mux)

	_, err := client.ListSims(context.Background(), testTenant(), "HF9")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "missing fleet surfaces as not-found")
}

func TestListSimsFatalErrorAborts(t *testing.T) {
	var dataCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/Sims", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		http.Error(w, `{"message":"server exploded"}`, http.StatusInternalServerError)
	})
	client, _ := newProviderServer(t, mux)

	_, err := client.ListSims(context.Background(), testTenant(), "HF1")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Equal(t, int32(1), dataCalls.Load(), "no further candidates probed")
}

func TestListSimsPaginationLoopGuard(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/Sims", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// next_page_url points back to the same page forever.
		_, _ = fmt.Fprintf(w, `{"sims":[{"sid":"S1","iccid":"8901"}],"next_page_url":"%s%s"}`, srv.URL, r.URL.RequestURI())
	})
	client, s := newProviderServer(t, mux)
	srv = s

	sims, err := client.ListSims(context.Background(), testTenant(), "HF1")
	require.NoError(t, err)
	assert.Len(t, sims, 1, "visited-URL guard stops the self-referencing page")
}

func TestSendCommandFormEncoded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/SmsCommands", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "S1", r.PostFormValue("Sim"))
		// Payload must be present even when empty.
		_, ok := r.PostForm["Payload"]
		assert.True(t, ok, "payload field always present")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"CMD1","status":"queued"}`))
	})
	client, _ := newProviderServer(t, mux)

	resp, err := client.SendCommand(context.Background(), testTenant(), "S1", "")
	require.NoError(t, err)
	assert.Equal(t, "CMD1", resp.Sid)
	assert.Equal(t, "queued", resp.Status)
}

func TestListCommandLogsCursorStripped(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/SmsCommands", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("PageToken") == "p2" {
			_, _ = w.Write([]byte(`{"sms_commands":[{"sid":"C2","sim_sid":"S1","payload":"reset","status":"delivered"}]}`))
			return
		}
		assert.Equal(t, "S1", r.URL.Query().Get("Sim"))
		_, _ = fmt.Fprintf(w, `{"sms_commands":[{"sid":"C1","sim_sid":"S1","payload":"reset","status":"queued","date_created":"2026-02-01T10:00:00Z"}],"meta":{"next_page_url":"%s/v1/SmsCommands?PageToken=p2"}}`, srv.URL)
	})
	client, s := newProviderServer(t, mux)
	srv = s

	page, err := client.ListCommandLogs(context.Background(), testTenant(), ListLogsOptions{SimSid: "S1", PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "C1", page.Entries[0].Sid)
	require.NotNil(t, page.Entries[0].CreatedAt)
	assert.Equal(t, "/v1/SmsCommands?PageToken=p2", page.NextCursor, "cursor is base-stripped")

	next, err := client.ListCommandLogs(context.Background(), testTenant(), ListLogsOptions{Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Entries, 1)
	assert.Equal(t, "C2", next.Entries[0].Sid)
	assert.Empty(t, next.NextCursor)
}
