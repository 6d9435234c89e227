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

func insecureTransport() *http.Transport {
	return &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
}

func newTestOrchestrator(workRoot string) *Orchestrator {
	o := newOrchestrator(workRoot, 0)
	o.github.client.HTTPClient = &http.Client{Transport: insecureTransport()}
	o.gitlab.client.HTTPClient = &http.Client{Transport: insecureTransport()}
	o.bitbucket.client.HTTPClient = &http.Client{Transport: insecureTransport()}

	return o
}

// TestOrchestratorMigrateIssuesGitHubToGitLab covers S3: one open, one
// closed, and one PR-tagged GitHub issue; the closed issue must reach
// GitLab via create-then-close (POST followed by PUT state_event=close),
// and the PR-tagged entry must never be created.
func TestOrchestratorMigrateIssuesGitHubToGitLab(t *testing.T) {
	var createCalls, closeCalls int

	sourceSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_ = json.NewEncoder(w).Encode([]map[string]any{})

			return
		}

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"title": "A", "body": "x", "state": "open", "labels": []map[string]any{{"name": "bug"}}},
			{"title": "B", "body": nil, "state": "closed"},
			{"title": "PR", "state": "open", "pull_request": map[string]any{"url": "y"}},
		})
	}))
	defer sourceSrv.Close()

	destSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			createCalls++
			_ = json.NewEncoder(w).Encode(map[string]any{"iid": createCalls})
		case http.MethodPut:
			closeCalls++
		}
	}))
	defer destSrv.Close()

	o := newTestOrchestrator(t.TempDir())

	src := RepoContext{Provider: providerGitHub, Token: "tok", Host: sourceSrv.Listener.Addr().String(), Path: "owner/repo"}
	dst := RepoContext{Provider: providerGitLab, Token: "tok", Host: destSrv.Listener.Addr().String(), Path: "group/project"}

	result := o.migrateIssues(context.Background(), src, dst)

	require.Equal(t, "completed", result["status"])
	require.Equal(t, 2, result["source_count"])
	require.Equal(t, 2, result["created"])
	require.Equal(t, 0, result["failed"])
	require.Equal(t, 2, createCalls)
	require.Equal(t, 1, closeCalls)
}

// TestOrchestratorMigratePullRequestsBitbucketToGitHub covers S4: a
// DECLINED Bitbucket PR must reach GitHub as POST /pulls followed by a
// PATCH {state:"closed"}.
func TestOrchestratorMigratePullRequestsBitbucketToGitHub(t *testing.T) {
	var sawHeadBase bool

	sourceSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bitbucketPage{Values: []map[string]any{{
			"id": float64(1), "title": "x", "state": "DECLINED",
			"source":      map[string]any{"branch": map[string]any{"name": "feat/x"}},
			"destination": map[string]any{"branch": map[string]any{"name": "main"}},
		}}})
	}))
	defer sourceSrv.Close()

	var patchBody map[string]any

	destSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)

			if body["head"] == "feat/x" && body["base"] == "main" {
				sawHeadBase = true
			}

			_ = json.NewEncoder(w).Encode(map[string]any{"number": 1})
		case http.MethodPatch:
			_ = json.NewDecoder(r.Body).Decode(&patchBody)
		}
	}))
	defer destSrv.Close()

	o := newTestOrchestrator(t.TempDir())
	o.bitbucket.client.HTTPClient = &http.Client{Transport: bitbucketTransportTo(sourceSrv)}

	src := RepoContext{Provider: providerBitbucket, Token: "bare-token", Host: "bitbucket.org", Path: "ws/repo"}
	dst := RepoContext{Provider: providerGitHub, Token: "tok", Host: destSrv.Listener.Addr().String(), Path: "owner/repo"}

	result := o.migratePullRequests(context.Background(), src, dst)

	require.Equal(t, "completed", result["status"])
	require.Equal(t, 1, result["created"])
	require.True(t, sawHeadBase)
	require.Equal(t, "closed", patchBody["state"])
}

// TestOrchestratorMigrateUsersGitHubToBitbucket covers S5: GitHub source
// collaborators alice/bob mapped against a Bitbucket destination set
// containing only alice.
func TestOrchestratorMigrateUsersGitHubToBitbucket(t *testing.T) {
	sourceSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_ = json.NewEncoder(w).Encode([]map[string]any{})

			return
		}

		_ = json.NewEncoder(w).Encode([]map[string]any{{"login": "alice"}, {"login": "bob"}})
	}))
	defer sourceSrv.Close()

	destSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2.0/repositories/ws/repo/default-reviewers":
			_ = json.NewEncoder(w).Encode(bitbucketPage{Values: []map[string]any{{"username": "alice"}}})
		default:
			_ = json.NewEncoder(w).Encode(bitbucketPage{})
		}
	}))
	defer destSrv.Close()

	o := newTestOrchestrator(t.TempDir())
	o.bitbucket.client.HTTPClient = &http.Client{Transport: bitbucketTransportTo(destSrv)}

	src := RepoContext{Provider: providerGitHub, Token: "tok", Host: sourceSrv.Listener.Addr().String(), Path: "owner/repo"}
	dst := RepoContext{Provider: providerBitbucket, Token: "bare-token", Host: "bitbucket.org", Path: "ws/repo"}

	result := o.migrateUsers(context.Background(), src, dst)

	require.Equal(t, "completed", result["status"])
	require.Equal(t, 2, result["source_count"])
	require.Equal(t, 1, result["mapped_count"])
	require.Equal(t, 1, result["unmapped_count"])
	require.Equal(t, []string{"alice"}, result["mapped_sample"])
	require.Equal(t, []string{"bob"}, result["unmapped_sample"])
}

// TestOrchestratorRunFailsOnInvalidSourceURLBeforeAnyGitActivity covers §8
// boundary behavior 9 as observed through the full Run path: a source URL
// with fewer than two path segments fails during RepoContext construction,
// before the Ref Transport Driver ever runs, and the failure is recorded
// with the redacted message rather than a panic or a hang.
func TestOrchestratorRunFailsOnInvalidSourceURLBeforeAnyGitActivity(t *testing.T) {
	o := newTestOrchestrator(t.TempDir())
	store := newJobStore()

	req := MigrationRequest{
		SourceType: "github", DestType: "gitlab",
		SourceRepoURL: "https://github.com/onlyowner",
		DestRepoURL:   "https://gitlab.com/group/project",
		SourceToken:   "leaktoken",
		Actions:       MigrationActions{MigrateRepo: true},
	}

	o.Run(context.Background(), "manual_invalid", req, store)

	rec := store.snapshot("manual_invalid")
	require.Equal(t, JobFailed, rec.Status)
	require.NotNil(t, rec.Error)
	require.NotContains(t, *rec.Error, "leaktoken")
}

func TestOrchestratorFailPrefixesGitCommandErrors(t *testing.T) {
	o := newTestOrchestrator(t.TempDir())
	store := newJobStore()

	o.fail(store, "manual_bad", &GitCommandError{Message: "boom"}, nil)

	rec := store.snapshot("manual_bad")
	require.Equal(t, JobFailed, rec.Status)
	require.NotNil(t, rec.Error)
	require.Contains(t, *rec.Error, "Git command failed:")
}

func TestOrchestratorMigrateIssuesUnsupportedProviderPair(t *testing.T) {
	o := newTestOrchestrator(t.TempDir())

	result := o.migrateIssues(context.Background(), RepoContext{Provider: "gitea"}, RepoContext{Provider: providerGitHub})
	require.Equal(t, "unsupported", result["status"])
}
