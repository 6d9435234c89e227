package migrator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// githubContextFor builds a RepoContext whose API base resolves to srv by
// pretending srv's host is a GitHub Enterprise instance (providerAPIBase
// appends /api/v3 for any non-github.com host).
func githubContextFor(srv *httptest.Server) RepoContext {
	return RepoContext{Provider: providerGitHub, Token: "tok", Host: srv.Listener.Addr().String(), Path: "owner/repo"}
}

// newInsecureGitHubAdapter points a githubAdapter's client at an
// httptest.NewTLSServer, skipping certificate verification since
// providerAPIBase always builds an https:// base URL.
func newInsecureGitHubAdapter() *githubAdapter {
	a := newGitHubAdapter(0)
	a.client.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}

	return a
}

func TestGitHubListIssuesSkipsPullRequestTaggedEntries(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		if r.URL.Query().Get("page") == "1" {
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"title": "A", "body": "x", "state": "open", "labels": []map[string]any{{"name": "bug"}}},
				{"title": "B", "body": nil, "state": "closed"},
				{"title": "PR", "state": "open", "pull_request": map[string]any{"url": "x"}},
			})

			return
		}

		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	a := newInsecureGitHubAdapter()

	issues, err := a.listIssues(context.Background(), githubContextFor(srv))
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.Equal(t, "A", issues[0].Title)
	require.Equal(t, []string{"bug"}, issues[0].Labels)
	require.Equal(t, issueStateClosed, issues[1].State)
}

func TestGitHubCreateIssueClosesAfterCreateWhenStateClosed(t *testing.T) {
	var postSeen, patchSeen bool

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			postSeen = true
			_ = json.NewEncoder(w).Encode(map[string]any{"number": 7})
		case http.MethodPatch:
			patchSeen = true

			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			require.Equal(t, "closed", body["state"])
		}
	}))
	defer srv.Close()

	a := newInsecureGitHubAdapter()

	err := a.createIssue(context.Background(), githubContextFor(srv), NormalizedIssue{Title: "B", State: issueStateClosed})
	require.NoError(t, err)
	require.True(t, postSeen)
	require.True(t, patchSeen)
}

func TestGitHubUserExistsTreats404AsFalse(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := newInsecureGitHubAdapter()
	exists, err := a.userExists(context.Background(), githubContextFor(srv), "ghost")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestGitHubUserExistsTrueOn200(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newInsecureGitHubAdapter()
	exists, err := a.userExists(context.Background(), githubContextFor(srv), "alice")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestGitHubListIssuesPaginationStopsAtTenPages(t *testing.T) {
	var calls int

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		issues := make([]map[string]any, pageSize)
		for i := range issues {
			issues[i] = map[string]any{"title": "x", "state": "open"}
		}

		_ = json.NewEncoder(w).Encode(issues)
	}))
	defer srv.Close()

	a := newInsecureGitHubAdapter()
	_, err := a.listIssues(context.Background(), githubContextFor(srv))
	require.NoError(t, err)
	require.Equal(t, maxPaginationPages, calls)
}
