package migrator

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// refTransportPlan is the result of driving the external git binary for one
// migration job: clone, remote management, and one of the three push plans
// described in §4.D.
type refTransportPlan struct {
	workingDir string
	results    map[string]any
}

// repoBasenameFromURL derives the <job_id>_<repo_basename> working
// directory name: the last path segment of the source URL minus any
// trailing ".git", defaulting to "repository" if empty.
func repoBasenameFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")

	idx := strings.LastIndex(trimmed, "/")
	name := trimmed
	if idx >= 0 {
		name = trimmed[idx+1:]
	}

	if name == "" {
		return "repository"
	}

	return name
}

// runGit executes one git subprocess in dir, returning a GitCommandError
// carrying its combined, redacted output on failure. This mirrors the
// teacher's core.go exec.Command("git", ...).CombinedOutput() idiom.
func runGit(dir string, secrets []string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	var out bytes.Buffer

	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		wrapped := errors.Errorf("git %s: %s", strings.Join(args, " "), out.String())

		return nil, &GitCommandError{Message: redactSecrets(wrapped.Error(), secrets...)}
	}

	return out.Bytes(), nil
}

// runTransport performs the Ref Transport Driver (§4.D): bare clone of the
// source, remote management, and the branch/tag/mirror push plan selected
// by actions. workRoot is the shared working-tree root directory
// (created if absent); jobID names the per-job subdirectory.
func runTransport(workRoot, jobID, sourceAuthURL, destAuthURL, sourceRepoURL string, actions MigrationActions, secrets []string) (refTransportPlan, error) {
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return refTransportPlan{}, &InternalError{Message: redactSecrets(errors.Wrap(err, "failed to create working directory").Error(), secrets...)}
	}

	workingDir := filepath.Join(workRoot, jobID+"_"+repoBasenameFromURL(sourceRepoURL))

	if _, err := runGit(workRoot, secrets, "clone", "--bare", sourceAuthURL, workingDir); err != nil {
		return refTransportPlan{workingDir: workingDir}, err
	}

	if out, err := runGit(workingDir, secrets, "remote"); err == nil {
		for _, name := range strings.Fields(string(out)) {
			if name == "migration_dest" {
				if _, err := runGit(workingDir, secrets, "remote", "remove", "migration_dest"); err != nil {
					return refTransportPlan{workingDir: workingDir}, err
				}

				break
			}
		}
	}

	if _, err := runGit(workingDir, secrets, "remote", "add", "migration_dest", destAuthURL); err != nil {
		return refTransportPlan{workingDir: workingDir}, err
	}

	results := map[string]any{}

	switch {
	case actions.MigrateRepo:
		if _, err := runGit(workingDir, secrets, "push", "--mirror", "migration_dest"); err != nil {
			return refTransportPlan{workingDir: workingDir}, err
		}

		results["repository"] = "success"

	default:
		anyRefAction := false

		if actions.MigrateBranches {
			anyRefAction = true

			if _, err := runGit(workingDir, secrets, "push", "migration_dest", "refs/heads/*:refs/heads/*"); err != nil {
				return refTransportPlan{workingDir: workingDir}, err
			}

			results["branches"] = "success"
		}

		if len(actions.SpecificBranches) > 0 {
			anyRefAction = true

			var pushed, missing []string

			for _, branch := range actions.SpecificBranches {
				ref := "refs/heads/" + branch

				if _, err := runGit(workingDir, secrets, "rev-parse", "--verify", ref); err != nil {
					missing = append(missing, branch)

					continue
				}

				if _, err := runGit(workingDir, secrets, "push", "migration_dest", ref+":"+ref); err != nil {
					return refTransportPlan{workingDir: workingDir}, err
				}

				pushed = append(pushed, branch)
			}

			if len(pushed) > 0 {
				results["specific_branches"] = map[string]any{"pushed": pushed}
			}

			if len(missing) > 0 {
				results["specific_branches_missing"] = missing
			}
		}

		if actions.MigrateTags {
			anyRefAction = true

			if _, err := runGit(workingDir, secrets, "push", "migration_dest", "refs/tags/*:refs/tags/*"); err != nil {
				return refTransportPlan{workingDir: workingDir}, err
			}

			results["tags"] = "success"
		}

		if !anyRefAction {
			results["repository"] = "skipped"
		}
	}

	return refTransportPlan{workingDir: workingDir, results: results}, nil
}

// cleanupWorkingDir recursively removes the per-job temporary directory,
// ignoring errors, on every Orchestrator exit path (§4.F step 5, §7).
func cleanupWorkingDir(workingDir string) {
	if workingDir == "" {
		return
	}

	_ = os.RemoveAll(workingDir)
}
