package migrator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// bitbucketContextFor builds a RepoContext on bitbucket.org, the only
// Bitbucket host providerAPIBase accepts; requests reach srv because the
// adapter's client dials srv whatever host a URL names (see
// bitbucketTransportTo). The API base therefore adds a /2.0 path prefix.
func bitbucketContextFor(_ *httptest.Server, token string) RepoContext {
	return RepoContext{Provider: providerBitbucket, Token: token, Host: "bitbucket.org", Path: "ws/repo"}
}

// bitbucketTransportTo returns a transport that dials srv for every request
// and skips certificate verification, so calls to api.bitbucket.org land on
// the test server.
func bitbucketTransportTo(srv *httptest.Server) *http.Transport {
	addr := srv.Listener.Addr().String()

	return &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer

			return d.DialContext(ctx, network, addr)
		},
	}
}

func newInsecureBitbucketAdapter(srv *httptest.Server) *bitbucketAdapter {
	a := newBitbucketAdapter(0)
	a.client.HTTPClient = &http.Client{Transport: bitbucketTransportTo(srv)}

	return a
}

func TestBitbucketHeadersBasicForColonToken(t *testing.T) {
	a := newBitbucketAdapter(0)
	h := a.headers("user:app-pass")
	require.True(t, len(h.Get("Authorization")) > 0)
	require.Contains(t, h.Get("Authorization"), "Basic ")
}

func TestBitbucketHeadersBearerForBareToken(t *testing.T) {
	a := newBitbucketAdapter(0)
	h := a.headers("bare-token")
	require.Equal(t, "Bearer bare-token", h.Get("Authorization"))
}

func TestBitbucketPaginatedGetFollowsNextCursor(t *testing.T) {
	var calls int

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		if calls == 1 {
			_ = json.NewEncoder(w).Encode(bitbucketPage{
				Values: []map[string]any{{"id": float64(1)}},
				Next:   "https://" + r.Host + "/repositories/ws/repo/issues?page=2",
			})

			return
		}

		_ = json.NewEncoder(w).Encode(bitbucketPage{Values: []map[string]any{{"id": float64(2)}}})
	}))
	defer srv.Close()

	a := newInsecureBitbucketAdapter(srv)
	rc := bitbucketContextFor(srv, "bare-token")

	items, err := a.paginatedGet(context.Background(), rc, "https://"+rc.Host+"/repositories/ws/repo/issues")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, calls)
}

func TestBitbucketCreatePullRequestCountsCreatedEvenIfDeclineFails(t *testing.T) {
	var declineCalled bool

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/2.0/repositories/ws/repo/pullrequests":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 3})
		case r.Method == http.MethodPost:
			declineCalled = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	a := newInsecureBitbucketAdapter(srv)
	rc := bitbucketContextFor(srv, "bare-token")

	err := a.createPullRequest(context.Background(), rc, NormalizedPullRequest{
		Title: "x", SourceBranch: "feat/x", TargetBranch: "main", State: issueStateClosed,
	})
	require.NoError(t, err)
	require.True(t, declineCalled)
}

func TestBitbucketListCollaboratorsSilentlyDropsFailingSubFetch(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2.0/repositories/ws/repo/default-reviewers":
			_ = json.NewEncoder(w).Encode(bitbucketPage{Values: []map[string]any{{"username": "alice"}}})
		case "/2.0/repositories/ws/repo/watchers":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_ = json.NewEncoder(w).Encode(bitbucketPage{})
		}
	}))
	defer srv.Close()

	a := newInsecureBitbucketAdapter(srv)
	rc := bitbucketContextFor(srv, "bare-token")

	users, err := a.listCollaborators(context.Background(), rc)
	require.NoError(t, err)
	require.Contains(t, users, "alice")
}

func TestBitbucketUserExistsLooksUpPrecomputedSet(t *testing.T) {
	a := newBitbucketAdapter(0)

	exists, err := a.userExists(context.Background(), RepoContext{}, "alice", map[string]bool{"alice": true})
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = a.userExists(context.Background(), RepoContext{}, "bob", map[string]bool{"alice": true})
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDecodeMapRoundTrips(t *testing.T) {
	out := decodeMap[bitbucketIssue](map[string]any{"id": float64(5), "title": "hi", "state": "new"})
	require.Equal(t, 5, out.ID)
	require.Equal(t, "hi", out.Title)
}
