package migrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// githubAdapter implements the five Provider REST Adapter operations (§4.B)
// against GitHub.com or GitHub Enterprise, following the header/timeout/
// pagination conventions of the teacher's github.go, generalized from its
// GraphQL repository-listing call to the REST issues/pulls/collaborators
// endpoints this spec actually needs.
type githubAdapter struct {
	client *retryablehttp.Client
}

func newGitHubAdapter(timeout time.Duration) *githubAdapter {
	return &githubAdapter{client: newRetryableClient(timeout)}
}

func (a *githubAdapter) headers(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", "2022-11-28")

	return h
}

func (a *githubAdapter) listIssues(ctx context.Context, rc RepoContext) ([]NormalizedIssue, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return nil, err
	}

	var issues []NormalizedIssue

	for page := 1; page <= maxPaginationPages; page++ {
		u := fmt.Sprintf("%s/repos/%s/issues?state=all&per_page=%d&page=%d", base, repoPath, pageSize, page)

		resp, err := doAPIRequest(ctx, apiRequestInput{
			client: a.client, method: http.MethodGet, url: u,
			headers: a.headers(rc.Token), secrets: []string{rc.Token},
		})
		if err != nil {
			return nil, err
		}

		var raw []githubIssue

		raw, err = decodeJSON[[]githubIssue](resp.body)
		if err != nil {
			return nil, err
		}

		if len(raw) == 0 {
			break
		}

		for _, item := range raw {
			// GitHub returns PRs through the issues endpoint; skip them.
			if item.PullRequest != nil {
				continue
			}

			issues = append(issues, normalizeGitHubIssue(item))
		}

		if len(raw) < pageSize {
			break
		}
	}

	return issues, nil
}

func (a *githubAdapter) createIssue(ctx context.Context, rc RepoContext, issue NormalizedIssue) error {
	base, err := providerAPIBase(rc)
	if err != nil {
		return err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/repos/%s/issues", base, repoPath)

	type createdIssue struct {
		Number int `json:"number"`
	}

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{
			"title":  issue.Title,
			"body":   issue.Description,
			"labels": issue.Labels,
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
		client: a.client, method: http.MethodPatch,
		url:     fmt.Sprintf("%s/repos/%s/issues/%d", base, repoPath, created.Number),
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{"state": "closed"},
	})

	return err
}

func (a *githubAdapter) listPullRequests(ctx context.Context, rc RepoContext) ([]NormalizedPullRequest, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return nil, err
	}

	var prs []NormalizedPullRequest

	for page := 1; page <= maxPaginationPages; page++ {
		u := fmt.Sprintf("%s/repos/%s/pulls?state=all&per_page=%d&page=%d", base, repoPath, pageSize, page)

		resp, err := doAPIRequest(ctx, apiRequestInput{
			client: a.client, method: http.MethodGet, url: u,
			headers: a.headers(rc.Token), secrets: []string{rc.Token},
		})
		if err != nil {
			return nil, err
		}

		raw, err := decodeJSON[[]githubPullRequest](resp.body)
		if err != nil {
			return nil, err
		}

		if len(raw) == 0 {
			break
		}

		for _, item := range raw {
			prs = append(prs, normalizeGitHubPR(item))
		}

		if len(raw) < pageSize {
			break
		}
	}

	return prs, nil
}

func (a *githubAdapter) createPullRequest(ctx context.Context, rc RepoContext, pr NormalizedPullRequest) error {
	base, err := providerAPIBase(rc)
	if err != nil {
		return err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/repos/%s/pulls", base, repoPath)

	type createdPR struct {
		Number int `json:"number"`
	}

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{
			"title": pr.Title,
			"body":  pr.Description,
			"head":  pr.SourceBranch,
			"base":  pr.TargetBranch,
			"draft": pr.Draft,
		},
	})
	if err != nil {
		return err
	}

	if pr.State != issueStateClosed {
		return nil
	}

	created, err := decodeJSON[createdPR](resp.body)
	if err != nil {
		return err
	}

	_, err = doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPatch,
		url:     fmt.Sprintf("%s/repos/%s/pulls/%d", base, repoPath, created.Number),
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{"state": "closed"},
	})

	return err
}

func (a *githubAdapter) listCollaborators(ctx context.Context, rc RepoContext) ([]string, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	repoPath, err := rc.RepoPath()
	if err != nil {
		return nil, err
	}

	var usernames []string

	for page := 1; page <= maxPaginationPages; page++ {
		u := fmt.Sprintf("%s/repos/%s/collaborators?per_page=%d&page=%d", base, repoPath, pageSize, page)

		resp, err := doAPIRequest(ctx, apiRequestInput{
			client: a.client, method: http.MethodGet, url: u,
			headers: a.headers(rc.Token), secrets: []string{rc.Token},
		})
		if err != nil {
			return nil, err
		}

		raw, err := decodeJSON[[]githubUser](resp.body)
		if err != nil {
			return nil, err
		}

		if len(raw) == 0 {
			break
		}

		for _, u := range raw {
			if u.Login != "" {
				usernames = append(usernames, u.Login)
			}
		}

		if len(raw) < pageSize {
			break
		}
	}

	return usernames, nil
}

// userExists checks GET /users/{login}: a 200 means the destination account
// exists, any other status (404 included) means it does not.
func (a *githubAdapter) userExists(ctx context.Context, rc RepoContext, username string) (bool, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return false, err
	}

	u := fmt.Sprintf("%s/users/%s", base, url.PathEscape(username))

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodGet, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
	})

	var apiErr *ProviderAPIError
	if err != nil {
		if errors.As(err, &apiErr) {
			return false, nil
		}

		return false, err
	}

	return resp.status == http.StatusOK, nil
}
