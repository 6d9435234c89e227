package migrator

// This file implements the Metadata Normalizer (§4.C): pure functions
// mapping each provider's raw JSON shape to the common NormalizedIssue /
// NormalizedPullRequest form. The reverse direction, each provider's create
// payload, is built in the adapters' create* methods. Nothing here performs
// I/O.

func stringOrDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}

	return s
}

// --- GitHub ---

type githubLabel struct {
	Name string `json:"name"`
}

type githubUser struct {
	Login string `json:"login"`
}

type githubIssue struct {
	Number      int           `json:"number"`
	Title       string        `json:"title"`
	Body        *string       `json:"body"`
	State       string        `json:"state"`
	Labels      []githubLabel `json:"labels"`
	PullRequest map[string]any `json:"pull_request,omitempty"`
}

func normalizeGitHubIssue(i githubIssue) NormalizedIssue {
	labels := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		if l.Name != "" {
			labels = append(labels, l.Name)
		}
	}

	desc := ""
	if i.Body != nil {
		desc = *i.Body
	}

	return NormalizedIssue{
		Title:       stringOrDefault(i.Title, untitledIssue),
		Description: desc,
		State:       stringOrDefault(i.State, issueStateOpen),
		Labels:      labels,
	}
}

type githubPRBranch struct {
	Ref string `json:"ref"`
}

type githubPullRequest struct {
	Number int            `json:"number"`
	Title  string         `json:"title"`
	Body   *string        `json:"body"`
	State  string         `json:"state"`
	Draft  bool           `json:"draft"`
	Head   githubPRBranch `json:"head"`
	Base   githubPRBranch `json:"base"`
}

func normalizeGitHubPR(pr githubPullRequest) NormalizedPullRequest {
	desc := ""
	if pr.Body != nil {
		desc = *pr.Body
	}

	return NormalizedPullRequest{
		Title:        stringOrDefault(pr.Title, untitledPR),
		Description:  desc,
		SourceBranch: pr.Head.Ref,
		TargetBranch: pr.Base.Ref,
		State:        stringOrDefault(pr.State, issueStateOpen),
		Draft:        pr.Draft,
	}
}

// --- GitLab ---

type gitlabIssue struct {
	IID         int      `json:"iid"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	State       string   `json:"state"`
	Labels      []string `json:"labels"`
}

func normalizeGitLabIssue(i gitlabIssue) NormalizedIssue {
	desc := ""
	if i.Description != nil {
		desc = *i.Description
	}

	state := i.State
	if state == "opened" {
		state = issueStateOpen
	}

	return NormalizedIssue{
		Title:       stringOrDefault(i.Title, untitledIssue),
		Description: desc,
		State:       stringOrDefault(state, issueStateOpen),
		Labels:      append([]string(nil), i.Labels...),
	}
}

type gitlabMergeRequest struct {
	IID          int     `json:"iid"`
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	SourceBranch string  `json:"source_branch"`
	TargetBranch string  `json:"target_branch"`
	State        string  `json:"state"`
}

func normalizeGitLabMR(mr gitlabMergeRequest) NormalizedPullRequest {
	desc := ""
	if mr.Description != nil {
		desc = *mr.Description
	}

	// Only a literal "closed" state maps to closed; "merged" falls through
	// to open, matching the source implementation's gitlab branch.
	state := issueStateOpen
	if mr.State == "closed" {
		state = issueStateClosed
	}

	return NormalizedPullRequest{
		Title:        stringOrDefault(mr.Title, untitledPR),
		Description:  desc,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		State:        state,
	}
}

// --- Bitbucket ---

type bitbucketIssueContent struct {
	Raw string `json:"raw"`
}

type bitbucketIssue struct {
	ID      int                   `json:"id"`
	Title   string                `json:"title"`
	Content bitbucketIssueContent `json:"content"`
	State   string                `json:"state"`
}

func normalizeBitbucketIssue(i bitbucketIssue) NormalizedIssue {
	state := issueStateOpen
	if i.State == "resolved" || i.State == "closed" {
		state = issueStateClosed
	}

	return NormalizedIssue{
		Title:       stringOrDefault(i.Title, untitledIssue),
		Description: i.Content.Raw,
		State:       state,
		// Bitbucket does not surface issue labels.
		Labels: nil,
	}
}

type bitbucketBranchRef struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
}

type bitbucketPullRequest struct {
	ID          int                `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Source      bitbucketBranchRef `json:"source"`
	Destination bitbucketBranchRef `json:"destination"`
	State       string             `json:"state"`
}

func normalizeBitbucketPR(pr bitbucketPullRequest) NormalizedPullRequest {
	state := issueStateOpen
	if pr.State == "DECLINED" || pr.State == "SUPERSEDED" {
		state = issueStateClosed
	}

	return NormalizedPullRequest{
		Title:        stringOrDefault(pr.Title, untitledPR),
		Description:  pr.Description,
		SourceBranch: pr.Source.Branch.Name,
		TargetBranch: pr.Destination.Branch.Name,
		State:        state,
	}
}
