package migrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeGitHubIssueSkipsNilBodyAndMapsLabels(t *testing.T) {
	raw := githubIssue{Title: "A", Body: nil, State: "open", Labels: []githubLabel{{Name: "bug"}}}
	issue := normalizeGitHubIssue(raw)

	require.Equal(t, "A", issue.Title)
	require.Equal(t, "", issue.Description)
	require.Equal(t, issueStateOpen, issue.State)
	require.Equal(t, []string{"bug"}, issue.Labels)
}

func TestNormalizeGitHubIssueFallsBackToUntitled(t *testing.T) {
	issue := normalizeGitHubIssue(githubIssue{})
	require.Equal(t, untitledIssue, issue.Title)
	require.Equal(t, issueStateOpen, issue.State)
}

func TestNormalizeGitLabIssueMapsOpenedToOpen(t *testing.T) {
	desc := "x"
	issue := normalizeGitLabIssue(gitlabIssue{Title: "B", Description: &desc, State: "opened"})
	require.Equal(t, issueStateOpen, issue.State)
	require.Equal(t, "x", issue.Description)
}

func TestNormalizeGitLabMRMapsOnlyClosedToClosed(t *testing.T) {
	merged := normalizeGitLabMR(gitlabMergeRequest{State: "merged"})
	require.Equal(t, issueStateOpen, merged.State)

	closed := normalizeGitLabMR(gitlabMergeRequest{State: "closed"})
	require.Equal(t, issueStateClosed, closed.State)

	opened := normalizeGitLabMR(gitlabMergeRequest{State: "opened"})
	require.Equal(t, issueStateOpen, opened.State)
}

func TestNormalizeBitbucketIssueMapsResolvedAndClosed(t *testing.T) {
	resolved := normalizeBitbucketIssue(bitbucketIssue{State: "resolved"})
	require.Equal(t, issueStateClosed, resolved.State)

	open := normalizeBitbucketIssue(bitbucketIssue{State: "new"})
	require.Equal(t, issueStateOpen, open.State)
}

func TestNormalizeBitbucketPRMapsDeclinedAndSupersededToClosed(t *testing.T) {
	declined := normalizeBitbucketPR(bitbucketPullRequest{State: "DECLINED"})
	require.Equal(t, issueStateClosed, declined.State)

	superseded := normalizeBitbucketPR(bitbucketPullRequest{State: "SUPERSEDED"})
	require.Equal(t, issueStateClosed, superseded.State)

	open := normalizeBitbucketPR(bitbucketPullRequest{State: "OPEN"})
	require.Equal(t, issueStateOpen, open.State)
}

func TestNormalizeBitbucketPRExtractsBranchNames(t *testing.T) {
	pr := bitbucketPullRequest{}
	pr.Source.Branch.Name = "feat/x"
	pr.Destination.Branch.Name = "main"

	normalized := normalizeBitbucketPR(pr)
	require.Equal(t, "feat/x", normalized.SourceBranch)
	require.Equal(t, "main", normalized.TargetBranch)
}
