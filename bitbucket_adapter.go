package migrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// bitbucketAdapter implements the Provider REST Adapter operations against
// Bitbucket Cloud. Header selection (Basic vs Bearer) and the oauth2
// client-credential exchange follow the teacher's bitbucket.go auth()
// pattern; cursor-following pagination follows _bitbucket_paginated_get in
// original_source/backend/main.py.
type bitbucketAdapter struct {
	client *retryablehttp.Client
}

func newBitbucketAdapter(timeout time.Duration) *bitbucketAdapter {
	return &bitbucketAdapter{client: newRetryableClient(timeout)}
}

// headers selects Basic auth for a "user:app_password" token and Bearer auth
// for a bare token, per §4.B.
func (a *bitbucketAdapter) headers(token string) http.Header {
	h := http.Header{}

	if strings.Contains(token, ":") {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(token)))
	} else {
		h.Set("Authorization", "Bearer "+token)
	}

	return h
}

type bitbucketPage struct {
	Values []map[string]any `json:"values"`
	Next   string           `json:"next"`
}

// paginatedGet follows the "next" cursor returned in the payload, capped at
// maxPaginationPages, with an initial pagelen=100 (§4.B).
func (a *bitbucketAdapter) paginatedGet(ctx context.Context, rc RepoContext, initialURL string) ([]map[string]any, error) {
	var items []map[string]any

	nextURL := initialURL
	if !strings.Contains(nextURL, "?") {
		nextURL += "?pagelen=100"
	} else {
		nextURL += "&pagelen=100"
	}

	for page := 0; page < maxPaginationPages && nextURL != ""; page++ {
		resp, err := doAPIRequest(ctx, apiRequestInput{
			client: a.client, method: http.MethodGet, url: nextURL,
			headers: a.headers(rc.Token), secrets: []string{rc.Token},
		})
		if err != nil {
			return nil, err
		}

		payload, err := decodeJSON[bitbucketPage](resp.body)
		if err != nil {
			return nil, err
		}

		items = append(items, payload.Values...)
		nextURL = payload.Next
	}

	return items, nil
}

func (a *bitbucketAdapter) listIssues(ctx context.Context, rc RepoContext) ([]NormalizedIssue, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repositories/%s/issues?q=%s", base, repoPath,
		`state="new" OR state="open" OR state="resolved" OR state="closed"`)

	raw, err := a.paginatedGet(ctx, rc, u)
	if err != nil {
		return nil, err
	}

	issues := make([]NormalizedIssue, 0, len(raw))

	for _, item := range raw {
		issues = append(issues, normalizeBitbucketIssue(decodeMap[bitbucketIssue](item)))
	}

	return issues, nil
}

func (a *bitbucketAdapter) createIssue(ctx context.Context, rc RepoContext, issue NormalizedIssue) error {
	base, err := providerAPIBase(rc)
	if err != nil {
		return err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/repositories/%s/issues", base, repoPath)

	type createdIssue struct {
		ID int `json:"id"`
	}

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{
			"title":   issue.Title,
			"content": map[string]any{"raw": issue.Description},
		},
	})
	if err != nil {
		return err
	}

	if issue.State != issueStateClosed {
		return nil
	}

	created, err := decodeJSON[createdIssue](resp.body)
	if err != nil {
		return err
	}

	_, err = doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPut,
		url:     fmt.Sprintf("%s/repositories/%s/issues/%d", base, repoPath, created.ID),
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{"state": "resolved"},
	})

	return err
}

func (a *bitbucketAdapter) listPullRequests(ctx context.Context, rc RepoContext) ([]NormalizedPullRequest, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repositories/%s/pullrequests?state=OPEN,MERGED,DECLINED,SUPERSEDED", base, repoPath)

	raw, err := a.paginatedGet(ctx, rc, u)
	if err != nil {
		return nil, err
	}

	prs := make([]NormalizedPullRequest, 0, len(raw))

	for _, item := range raw {
		prs = append(prs, normalizeBitbucketPR(decodeMap[bitbucketPullRequest](item)))
	}

	return prs, nil
}

func (a *bitbucketAdapter) createPullRequest(ctx context.Context, rc RepoContext, pr NormalizedPullRequest) error {
	base, err := providerAPIBase(rc)
	if err != nil {
		return err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/repositories/%s/pullrequests", base, repoPath)

	type createdPR struct {
		ID int `json:"id"`
	}

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{
			"title":       pr.Title,
			"description": pr.Description,
			"source":      map[string]any{"branch": map[string]any{"name": pr.SourceBranch}},
			"destination": map[string]any{"branch": map[string]any{"name": pr.TargetBranch}},
		},
	})
	if err != nil {
		return err
	}

	// Created is still counted even if the close call below fails, per §4.B
	// "create-then-close" semantics.
	if pr.State != issueStateClosed {
		return nil
	}

	created, decodeErr := decodeJSON[createdPR](resp.body)
	if decodeErr != nil {
		return nil
	}

	_, _ = doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost,
		url:     fmt.Sprintf("%s/repositories/%s/pullrequests/%d/decline", base, repoPath, created.ID),
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
	})

	return nil
}

// listCollaborators composes a best-effort destination/source user set from
// default-reviewers, watchers, issue reporters/assignees, and PR authors.
// Any sub-fetch that fails is silently dropped (§4.F step 4: "any sub-fetch
// that fails is silently dropped").
func (a *bitbucketAdapter) listCollaborators(ctx context.Context, rc RepoContext) ([]string, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return nil, err
	}

	users := map[string]bool{}

	addUsername := func(obj map[string]any) {
		for _, key := range []string{"username", "nickname", "display_name"} {
			if v, ok := obj[key].(string); ok && v != "" {
				users[v] = true

				return
			}
		}
	}

	safeCollect := func(url string, extract func([]map[string]any)) {
		values, err := a.paginatedGet(ctx, rc, url)
		if err != nil {
			return
		}

		extract(values)
	}

	safeCollect(fmt.Sprintf("%s/repositories/%s/default-reviewers", base, repoPath), func(values []map[string]any) {
		for _, v := range values {
			addUsername(v)
		}
	})

	safeCollect(fmt.Sprintf("%s/repositories/%s/watchers", base, repoPath), func(values []map[string]any) {
		for _, v := range values {
			if wrapped, ok := v["user"].(map[string]any); ok {
				addUsername(wrapped)
			}
		}
	})

	safeCollect(fmt.Sprintf("%s/repositories/%s/issues", base, repoPath), func(values []map[string]any) {
		for _, v := range values {
			for _, key := range []string{"reporter", "assignee"} {
				if wrapped, ok := v[key].(map[string]any); ok {
					addUsername(wrapped)
				}
			}
		}
	})

	safeCollect(fmt.Sprintf("%s/repositories/%s/pullrequests?state=OPEN,MERGED,DECLINED,SUPERSEDED", base, repoPath), func(values []map[string]any) {
		for _, v := range values {
			if wrapped, ok := v["author"].(map[string]any); ok {
				addUsername(wrapped)
			}
		}
	})

	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}

	return out, nil
}

func (a *bitbucketAdapter) userExists(ctx context.Context, rc RepoContext, username string, destinationSet map[string]bool) (bool, error) {
	return destinationSet[username], nil
}

// oauthAccessToken exchanges a key/secret pair for a short-lived Bitbucket
// OAuth2 access token, supplementing the bearer-token-only REST path with
// the teacher's bitbucket.go client-credential flow (SPEC_FULL.md §9). It is
// called from the orchestrator when a request's *_bitbucket_oauth hint is
// set, before any Bitbucket REST call is made.
func (a *bitbucketAdapter) oauthAccessToken(ctx context.Context, key, secret string) (string, error) {
	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost,
		url: "https://" + key + ":" + secret + "@bitbucket.org/site/oauth2/access_token",
		headers: http.Header{
			"Content-Type": []string{"application/x-www-form-urlencoded"},
		},
		secrets: []string{key, secret},
	})
	if err != nil {
		return "", err
	}

	type tokenResponse struct {
		AccessToken string `json:"access_token"`
	}

	parsed, err := decodeJSON[tokenResponse](resp.body)
	if err != nil {
		return "", errors.Wrap(err, "failed to unmarshal bitbucket oauth2 response")
	}

	return parsed.AccessToken, nil
}

// decodeMap re-marshals a generic map[string]any into a typed struct. Used
// for Bitbucket responses: paginatedGet keeps each page's values as generic
// maps so one cursor-following loop serves every endpoint, and callers then
// decode each value into a concrete shape.
func decodeMap[T any](m map[string]any) T {
	var out T

	b, err := json.Marshal(m)
	if err != nil {
		return out
	}

	_ = json.Unmarshal(b, &out)

	return out
}
