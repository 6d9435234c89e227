package migrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/peterhellberg/link"
)

// gitlabAdapter implements the Provider REST Adapter operations against
// GitLab.com or a self-managed GitLab instance, following the
// PRIVATE-TOKEN/url.Values construction already used by the teacher's
// gitlab.go. GitLab's numeric page/per_page pagination is the primary
// stopping signal (§4.B); the Link response header — already a teacher
// dependency via github.com/peterhellberg/link — is consulted as a
// secondary check that no further page is being withheld by a short final
// page that happened to land exactly on a 100-item boundary.
type gitlabAdapter struct {
	client *retryablehttp.Client
}

func newGitLabAdapter(timeout time.Duration) *gitlabAdapter {
	return &gitlabAdapter{client: newRetryableClient(timeout)}
}

func (a *gitlabAdapter) headers(token string) http.Header {
	h := http.Header{}
	h.Set("PRIVATE-TOKEN", token)

	return h
}

func linkHasNext(headers http.Header) bool {
	group := link.ParseHeader(headers)

	return group["next"] != nil
}

func (a *gitlabAdapter) doPaged(ctx context.Context, rc RepoContext, pathAndQuery string) ([][]byte, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return nil, err
	}

	var pages [][]byte

	for page := 1; page <= maxPaginationPages; page++ {
		u := fmt.Sprintf("%s%s&per_page=%d&page=%d", base, pathAndQuery, pageSize, page)

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, &InternalError{Message: redactSecrets(err.Error(), rc.Token)}
		}

		req.Header = a.headers(rc.Token)

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, &InternalError{Message: redactSecrets(err.Error(), rc.Token)}
		}

		body, readErr := readAndClose(resp)
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &ProviderAPIError{
				Method: http.MethodGet, URL: redactSecrets(u, rc.Token),
				Status: resp.StatusCode, Snippet: squashNewlines(truncate(body, 400)),
			}
		}

		count, err := jsonArrayLen(body)
		if err != nil {
			return nil, err
		}

		if count == 0 {
			break
		}

		pages = append(pages, body)

		if count < pageSize || !linkHasNext(resp.Header) {
			break
		}
	}

	return pages, nil
}

func (a *gitlabAdapter) listIssues(ctx context.Context, rc RepoContext) ([]NormalizedIssue, error) {
	projectID, err := rc.ProjectID()
	if err != nil {
		return nil, err
	}

	pages, err := a.doPaged(ctx, rc, fmt.Sprintf("/projects/%s/issues?state=all", projectID))
	if err != nil {
		return nil, err
	}

	var issues []NormalizedIssue

	for _, page := range pages {
		raw, err := decodeJSON[[]gitlabIssue](page)
		if err != nil {
			return nil, err
		}

		for _, item := range raw {
			issues = append(issues, normalizeGitLabIssue(item))
		}
	}

	return issues, nil
}

func (a *gitlabAdapter) createIssue(ctx context.Context, rc RepoContext, issue NormalizedIssue) error {
	base, err := providerAPIBase(rc)
	if err != nil {
		return err
	}

	projectID, err := rc.ProjectID()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/projects/%s/issues", base, projectID)

	type createdIssue struct {
		IID int `json:"iid"`
	}

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{
			"title":       issue.Title,
			"description": issue.Description,
			"labels":      joinLabels(issue.Labels),
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
		url:     fmt.Sprintf("%s/projects/%s/issues/%d", base, projectID, created.IID),
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{"state_event": "close"},
	})

	return err
}

func (a *gitlabAdapter) listPullRequests(ctx context.Context, rc RepoContext) ([]NormalizedPullRequest, error) {
	projectID, err := rc.ProjectID()
	if err != nil {
		return nil, err
	}

	pages, err := a.doPaged(ctx, rc, fmt.Sprintf("/projects/%s/merge_requests?state=all", projectID))
	if err != nil {
		return nil, err
	}

	var prs []NormalizedPullRequest

	for _, page := range pages {
		raw, err := decodeJSON[[]gitlabMergeRequest](page)
		if err != nil {
			return nil, err
		}

		for _, item := range raw {
			prs = append(prs, normalizeGitLabMR(item))
		}
	}

	return prs, nil
}

func (a *gitlabAdapter) createPullRequest(ctx context.Context, rc RepoContext, pr NormalizedPullRequest) error {
	base, err := providerAPIBase(rc)
	if err != nil {
		return err
	}

	projectID, err := rc.ProjectID()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/projects/%s/merge_requests", base, projectID)

	type createdMR struct {
		IID int `json:"iid"`
	}

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPost, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{
			"title":         pr.Title,
			"description":   pr.Description,
			"source_branch": pr.SourceBranch,
			"target_branch": pr.TargetBranch,
		},
	})
	if err != nil {
		return err
	}

	if pr.State != issueStateClosed {
		return nil
	}

	created, err := decodeJSON[createdMR](resp.body)
	if err != nil {
		return err
	}

	_, err = doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodPut,
		url:     fmt.Sprintf("%s/projects/%s/merge_requests/%d", base, projectID, created.IID),
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
		body: map[string]any{"state_event": "close"},
	})

	return err
}

func (a *gitlabAdapter) listCollaborators(ctx context.Context, rc RepoContext) ([]string, error) {
	projectID, err := rc.ProjectID()
	if err != nil {
		return nil, err
	}

	pages, err := a.doPaged(ctx, rc, fmt.Sprintf("/projects/%s/members/all?", projectID))
	if err != nil {
		return nil, err
	}

	var usernames []string

	for _, page := range pages {
		raw, err := decodeJSON[[]gitlabUser](page)
		if err != nil {
			return nil, err
		}

		for _, u := range raw {
			if u.UserName != "" {
				usernames = append(usernames, u.UserName)
			}
		}
	}

	return usernames, nil
}

type gitlabUser struct {
	ID       int    `json:"id"`
	UserName string `json:"username"`
}

// userExists filters the users collection on username: GitLab returns a
// (possibly empty) array rather than a 404 for a non-existent username.
func (a *gitlabAdapter) userExists(ctx context.Context, rc RepoContext, username string) (bool, error) {
	base, err := providerAPIBase(rc)
	if err != nil {
		return false, err
	}

	u := fmt.Sprintf("%s/users?username=%s&per_page=1", base, url.QueryEscape(username))

	resp, err := doAPIRequest(ctx, apiRequestInput{
		client: a.client, method: http.MethodGet, url: u,
		headers: a.headers(rc.Token), secrets: []string{rc.Token},
	})
	if err != nil {
		var apiErr *ProviderAPIError
		if errors.As(err, &apiErr) {
			return false, nil
		}

		return false, err
	}

	users, err := decodeJSON[[]gitlabUser](resp.body)
	if err != nil {
		return false, err
	}

	return len(users) > 0, nil
}

func joinLabels(labels []string) string {
	out := ""

	for i, l := range labels {
		if i > 0 {
			out += ","
		}

		out += l
	}

	return out
}
