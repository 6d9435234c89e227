// Package migrator implements the migration engine: URL/credential shaping,
// provider REST adapters, metadata normalization, the git ref transport
// driver, the job store, the orchestrator and the scheduler. The HTTP API
// surface that wraps this engine lives in cmd/repomigrator-server.
package migrator

import (
	"log"
	"net/http"
	"os"
	"time"
)

const (
	logEntryPrefix = "[repomigrator] "

	defaultHTTPRequestTimeout = 30 * time.Second
	maxIdleConns              = 10
	idleConnTimeout           = 30 * time.Second

	maxPaginationPages = 10
	pageSize           = 100

	manualJobPrefix    = "manual_"
	scheduledJobPrefix = "sched_"

	providerGitHub    = "github"
	providerGitLab    = "gitlab"
	providerBitbucket = "bitbucket"

	workingDirName = "temp_repos"

	untitledIssue = "Untitled issue"
	untitledPR    = "Untitled PR"
)

var logger *log.Logger

func init() {
	// allow for tests to override
	if logger == nil {
		logger = log.New(os.Stdout, logEntryPrefix, log.Lshortfile|log.LstdFlags)
	}
}

var httpTransport = &http.Transport{
	MaxIdleConns:       maxIdleConns,
	IdleConnTimeout:    idleConnTimeout,
	DisableCompression: true,
}

// metadataSupportedProviders is the closed set of providers the metadata
// actions (issues, PRs, users) can bridge between. Ref transport (clone/push)
// works against any git+https remote; metadata actions do not.
var metadataSupportedProviders = map[string]bool{
	providerGitHub:    true,
	providerGitLab:    true,
	providerBitbucket: true,
}
