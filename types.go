package migrator

import (
	"net/url"
	"strings"
)

// MigrationActions is the set of flags and selectors controlling which parts
// of a repository are migrated. migrate_repo=true is a superset of every
// ref-level flag: when set, branches/tags/specific_branches are bypassed
// entirely in favour of a single mirror push.
type MigrationActions struct {
	MigrateRepo      bool     `json:"migrate_repo"`
	MigrateBranches  bool     `json:"migrate_branches"`
	SpecificBranches []string `json:"specific_branches"`
	MigrateTags      bool     `json:"migrate_tags"`
	MigrateIssues    bool     `json:"migrate_issues"`
	MigratePRs       bool     `json:"migrate_prs"`
	MigrateUsers     bool     `json:"migrate_users"`
}

// Normalize de-duplicates and trims SpecificBranches in place, preserving
// the order of first occurrence and discarding blank entries. This is the Go
// equivalent of the original's pydantic field_validator.
func (a *MigrationActions) Normalize() {
	if len(a.SpecificBranches) == 0 {
		return
	}

	seen := make(map[string]bool, len(a.SpecificBranches))
	cleaned := make([]string, 0, len(a.SpecificBranches))

	for _, raw := range a.SpecificBranches {
		branch := strings.TrimSpace(raw)
		if branch == "" || seen[branch] {
			continue
		}

		seen[branch] = true
		cleaned = append(cleaned, branch)
	}

	a.SpecificBranches = cleaned
}

// MigrationRequest is the immutable, value-typed description of one
// migration: where to read from, where to write to, and what to carry over.
type MigrationRequest struct {
	SourceType    string           `json:"source_type"`
	DestType      string           `json:"dest_type"`
	SourceToken   string           `json:"source_token"`
	DestToken     string           `json:"dest_token"`
	SourceRepoURL string           `json:"source_repo_url"`
	DestRepoURL   string           `json:"dest_repo_url"`
	Actions       MigrationActions `json:"actions"`

	// SourceBitbucketOAuth and DestBitbucketOAuth hint that the
	// corresponding *Token field holds a "key:secret" OAuth2
	// client-credential pair rather than a "user:app_password" or bearer
	// token; set, the orchestrator exchanges it for a short-lived access
	// token before any Bitbucket REST call (§9).
	SourceBitbucketOAuth bool `json:"source_bitbucket_oauth,omitempty"`
	DestBitbucketOAuth   bool `json:"dest_bitbucket_oauth,omitempty"`
}

// RepoContext is the parsed, provider-tagged view of one side of a
// migration. Values are passed by copy; nothing here is mutated after
// construction.
type RepoContext struct {
	Provider string
	Token    string
	RepoURL  string
	Host     string
	Path     string
}

// OwnerRepo splits Path into owner/repo segments for GitHub and Bitbucket,
// which both address repositories as a two-segment path. Returns
// InvalidURLError if Path does not contain at least two segments.
func (c RepoContext) OwnerRepo() (owner, repo string, err error) {
	parts := strings.Split(c.Path, "/")
	if len(parts) < 2 {
		return "", "", &InvalidURLError{URL: c.RepoURL}
	}

	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// RepoPath renders the "owner/repo" form GitHub and Bitbucket REST paths use.
func (c RepoContext) RepoPath() (string, error) {
	owner, repo, err := c.OwnerRepo()
	if err != nil {
		return "", err
	}

	return owner + "/" + repo, nil
}

// ProjectID renders the percent-encoded GitLab project identifier: the full
// path, not just the last two segments, since GitLab project paths can be
// arbitrarily nested under groups/subgroups.
func (c RepoContext) ProjectID() (string, error) {
	if c.Path == "" {
		return "", &InvalidURLError{URL: c.RepoURL}
	}

	return url.PathEscape(c.Path), nil
}

// JobStatus is the closed set of states a JobRecord may occupy.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobScheduled  JobStatus = "scheduled"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobNotFound   JobStatus = "not_found"
)

// JobRecord is the externally observable state of one migration invocation.
// It is always handed out as a defensive copy by the Job Store.
type JobRecord struct {
	Status  JobStatus      `json:"status"`
	Results map[string]any `json:"results,omitempty"`
	Error   *string        `json:"error,omitempty"`
}

// NormalizedIssue is the provider-agnostic shape used between listing an
// issue at the source and creating it at the destination.
type NormalizedIssue struct {
	Title       string
	Description string
	State       string // "open" | "closed"
	Labels      []string
}

// NormalizedPullRequest is the provider-agnostic shape used between listing
// a pull/merge request at the source and creating it at the destination.
type NormalizedPullRequest struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	State        string // "open" | "closed"
	Draft        bool
}

const (
	issueStateOpen   = "open"
	issueStateClosed = "closed"
)

// validateRequest performs the synchronous API-boundary checks required
// before a job identifier is ever minted (§7 "Validation errors surface
// synchronously at the API boundary as 4xx"; §8 boundary behavior 9).
func validateRequest(req MigrationRequest) error {
	if _, err := newRepoContext(req.SourceType, req.SourceToken, req.SourceRepoURL); err != nil {
		return err
	}

	if _, err := newRepoContext(req.DestType, req.DestToken, req.DestRepoURL); err != nil {
		return err
	}

	sourceCtx, _ := newRepoContext(req.SourceType, req.SourceToken, req.SourceRepoURL)
	if _, _, err := sourceCtx.OwnerRepo(); err != nil {
		return err
	}

	destCtx, _ := newRepoContext(req.DestType, req.DestToken, req.DestRepoURL)
	if _, _, err := destCtx.OwnerRepo(); err != nil {
		return err
	}

	return nil
}
