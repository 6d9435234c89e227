package migrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Orchestrator runs the per-request pipeline: shape URLs, drive the ref
// transport, then walk each enabled metadata action through its provider
// adapter pair via the Normalizer (§4.F).
type Orchestrator struct {
	workRoot  string
	github    *githubAdapter
	gitlab    *gitlabAdapter
	bitbucket *bitbucketAdapter
}

func newOrchestrator(workRoot string, httpTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		workRoot:  workRoot,
		github:    newGitHubAdapter(httpTimeout),
		gitlab:    newGitLabAdapter(httpTimeout),
		bitbucket: newBitbucketAdapter(httpTimeout),
	}
}

type issueProvider interface {
	listIssues(ctx context.Context, rc RepoContext) ([]NormalizedIssue, error)
	createIssue(ctx context.Context, rc RepoContext, issue NormalizedIssue) error
}

type prProvider interface {
	listPullRequests(ctx context.Context, rc RepoContext) ([]NormalizedPullRequest, error)
	createPullRequest(ctx context.Context, rc RepoContext, pr NormalizedPullRequest) error
}

type collaboratorLister interface {
	listCollaborators(ctx context.Context, rc RepoContext) ([]string, error)
}

// forProvider resolves the adapter for one of the three supported
// providers. Callers must check metadataSupportedProviders first.
func (o *Orchestrator) forProvider(provider string) any {
	switch provider {
	case providerGitHub:
		return o.github
	case providerGitLab:
		return o.gitlab
	case providerBitbucket:
		return o.bitbucket
	default:
		return nil
	}
}

func metadataSupported(src, dst RepoContext) bool {
	return metadataSupportedProviders[src.Provider] && metadataSupportedProviders[dst.Provider]
}

func unsupportedResult(action string, src, dst RepoContext) map[string]any {
	return map[string]any{
		"status":  "unsupported",
		"message": fmt.Sprintf("%s migration supports providers github/gitlab/bitbucket. Got %s -> %s", action, src.Provider, dst.Provider),
	}
}

// Run executes one migration job end to end and writes its terminal state
// into store under jobID. It never panics: every exit path reports a
// terminal JobRecord and removes the per-job temporary directory.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req MigrationRequest, store *jobStore) {
	logger.Printf("starting migration job %s (%s -> %s)", jobID, req.SourceType, req.DestType)

	store.upsert(jobID, func(r *JobRecord) {
		r.Status = JobProcessing
		r.Results = map[string]any{}
		r.Error = nil
	})

	secrets := []string{req.SourceToken, req.DestToken}

	if err := validateRequest(req); err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	sourceCtx, err := newRepoContext(req.SourceType, req.SourceToken, req.SourceRepoURL)
	if err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	destCtx, err := newRepoContext(req.DestType, req.DestToken, req.DestRepoURL)
	if err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	sourceCtx, secrets, err = o.resolveBitbucketOAuthToken(ctx, sourceCtx, req.SourceBitbucketOAuth, secrets)
	if err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	destCtx, secrets, err = o.resolveBitbucketOAuthToken(ctx, destCtx, req.DestBitbucketOAuth, secrets)
	if err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	sourceAuthURL, err := authTransportURL(req.SourceRepoURL, req.SourceToken, req.SourceType)
	if err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	destAuthURL, err := authTransportURL(req.DestRepoURL, req.DestToken, req.DestType)
	if err != nil {
		o.fail(store, jobID, err, secrets)

		return
	}

	plan, transportErr := runTransport(o.workRoot, jobID, sourceAuthURL, destAuthURL, req.SourceRepoURL, req.Actions, secrets)
	defer cleanupWorkingDir(plan.workingDir)

	if transportErr != nil {
		o.fail(store, jobID, transportErr, secrets)

		return
	}

	results := plan.results
	if results == nil {
		results = map[string]any{}
	}

	if req.Actions.MigrateIssues {
		results["issues"] = o.migrateIssues(ctx, sourceCtx, destCtx)
	}

	if req.Actions.MigratePRs {
		results["prs"] = o.migratePullRequests(ctx, sourceCtx, destCtx)
	}

	if req.Actions.MigrateUsers {
		results["users"] = o.migrateUsers(ctx, sourceCtx, destCtx)
	}

	store.upsert(jobID, func(r *JobRecord) {
		r.Status = JobCompleted
		r.Results = results
		r.Error = nil
	})

	logger.Printf("migration job %s completed", jobID)
}

// resolveBitbucketOAuthToken exchanges rc's "key:secret" token for a
// short-lived Bitbucket OAuth2 access token when hint is set, replacing the
// RepoContext's REST token. It never touches the git transport auth URL,
// which still follows the user:app_password rule pinned by §4.A (§9
// Bitbucket OAuth2 client-credential auth fallback).
func (o *Orchestrator) resolveBitbucketOAuthToken(ctx context.Context, rc RepoContext, hint bool, secrets []string) (RepoContext, []string, error) {
	if !hint || rc.Provider != providerBitbucket {
		return rc, secrets, nil
	}

	idx := strings.Index(rc.Token, ":")
	if idx < 0 {
		return rc, secrets, &InternalError{Message: "bitbucket oauth hint set but token is not in key:secret form"}
	}

	key, secret := rc.Token[:idx], rc.Token[idx+1:]

	accessToken, err := o.bitbucket.oauthAccessToken(ctx, key, secret)
	if err != nil {
		return rc, secrets, err
	}

	rc.Token = accessToken

	return rc, append(secrets, accessToken), nil
}

func (o *Orchestrator) fail(store *jobStore, jobID string, err error, secrets []string) {
	var gitErr *GitCommandError

	message := redactSecrets(err.Error(), secrets...)
	if errors.As(err, &gitErr) {
		message = "Git command failed: " + message
	}

	logger.Printf("migration job %s failed: %s", jobID, message)

	store.upsert(jobID, func(r *JobRecord) {
		r.Status = JobFailed
		r.Error = &message
	})
}

func (o *Orchestrator) migrateIssues(ctx context.Context, src, dst RepoContext) map[string]any {
	if !metadataSupported(src, dst) {
		return unsupportedResult("Issues", src, dst)
	}

	sourceAdapter, _ := o.forProvider(src.Provider).(issueProvider)
	destAdapter, _ := o.forProvider(dst.Provider).(issueProvider)

	items, err := sourceAdapter.listIssues(ctx, src)
	if err != nil {
		return unsupportedResult("Issues", src, dst)
	}

	created, failed := 0, 0

	for _, item := range items {
		if createErr := destAdapter.createIssue(ctx, dst, item); createErr != nil {
			failed++

			continue
		}

		created++
	}

	return map[string]any{
		"status":       "completed",
		"source_count": len(items),
		"created":      created,
		"failed":       failed,
	}
}

func (o *Orchestrator) migratePullRequests(ctx context.Context, src, dst RepoContext) map[string]any {
	if !metadataSupported(src, dst) {
		return unsupportedResult("PR", src, dst)
	}

	sourceAdapter, _ := o.forProvider(src.Provider).(prProvider)
	destAdapter, _ := o.forProvider(dst.Provider).(prProvider)

	items, err := sourceAdapter.listPullRequests(ctx, src)
	if err != nil {
		return unsupportedResult("PR", src, dst)
	}

	created, skipped, failed := 0, 0, 0

	for _, item := range items {
		if item.SourceBranch == "" || item.TargetBranch == "" {
			skipped++

			continue
		}

		if createErr := destAdapter.createPullRequest(ctx, dst, item); createErr != nil {
			failed++

			continue
		}

		created++
	}

	return map[string]any{
		"status":       "completed",
		"source_count": len(items),
		"created":      created,
		"skipped":      skipped,
		"failed":       failed,
	}
}

const userSampleSize = 20

// migrateUsers collects source usernames and checks their existence on the
// destination, producing a mapping report only — it never creates
// destination users (§1 Non-goals). GitHub/GitLab existence checks are
// per-username; Bitbucket precomputes a destination set once and looks
// membership up locally, per the asymmetry preserved from §9.
func (o *Orchestrator) migrateUsers(ctx context.Context, src, dst RepoContext) map[string]any {
	if !metadataSupported(src, dst) {
		return unsupportedResult("User mapping", src, dst)
	}

	sourceAdapter, _ := o.forProvider(src.Provider).(collaboratorLister)

	sourceUsers, err := sourceAdapter.listCollaborators(ctx, src)
	if err != nil {
		return unsupportedResult("User mapping", src, dst)
	}

	var destinationBitbucketSet map[string]bool

	if dst.Provider == providerBitbucket {
		names, err := o.bitbucket.listCollaborators(ctx, dst)
		if err == nil {
			destinationBitbucketSet = make(map[string]bool, len(names))
			for _, n := range names {
				destinationBitbucketSet[n] = true
			}
		} else {
			destinationBitbucketSet = map[string]bool{}
		}
	}

	var mapped, unmapped []string

	for _, username := range sourceUsers {
		exists, err := o.userExistsOnDestination(ctx, dst, username, destinationBitbucketSet)
		if err != nil || !exists {
			unmapped = append(unmapped, username)

			continue
		}

		mapped = append(mapped, username)
	}

	return map[string]any{
		"status":          "completed",
		"source_count":    len(sourceUsers),
		"mapped_count":    len(mapped),
		"unmapped_count":  len(unmapped),
		"mapped_sample":   sample(mapped, userSampleSize),
		"unmapped_sample": sample(unmapped, userSampleSize),
		"note":            "This step maps usernames only; it does not create destination users.",
	}
}

func (o *Orchestrator) userExistsOnDestination(ctx context.Context, dst RepoContext, username string, destinationBitbucketSet map[string]bool) (bool, error) {
	switch dst.Provider {
	case providerGitHub:
		return o.github.userExists(ctx, dst, username)
	case providerGitLab:
		return o.gitlab.userExists(ctx, dst, username)
	case providerBitbucket:
		return destinationBitbucketSet[username], nil
	default:
		return false, &UnsupportedProviderError{Provider: dst.Provider}
	}
}

func sample(items []string, n int) []string {
	if len(items) <= n {
		return items
	}

	return items[:n]
}
