package migrator

import (
	"net/url"
	"strings"
)

// normalizeRepoURL prepends "https://" when the scheme is absent and fails
// with InvalidURLError when the result still has no network location.
func normalizeRepoURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &InvalidURLError{URL: raw}
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return nil, &InvalidURLError{URL: raw}
	}

	return parsed, nil
}

// newRepoContext derives a RepoContext from one side of a MigrationRequest:
// provider, token, host, and a path with its leading slash and trailing
// ".git" suffix stripped.
func newRepoContext(provider, token, repoURL string) (RepoContext, error) {
	parsed, err := normalizeRepoURL(repoURL)
	if err != nil {
		return RepoContext{}, err
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	path = strings.TrimSuffix(path, ".git")

	return RepoContext{
		Provider: strings.ToLower(provider),
		Token:    token,
		RepoURL:  repoURL,
		Host:     parsed.Host,
		Path:     path,
	}, nil
}

// authTransportURL builds the auth-embedded HTTPS URL the Ref Transport
// Driver clones from / pushes to. GitHub(+Enterprise) embed a bare token;
// GitLab uses the oauth2 username convention; Bitbucket splits a
// "user:app_password" token across the userinfo component. A Bitbucket token
// without a colon is not valid here — it is bearer-only, usable for REST but
// not for git+https authentication, and this function returns it unchanged
// so the subsequent clone fails loudly rather than silently degrading.
func authTransportURL(repoURL, token, provider string) (string, error) {
	parsed, err := normalizeRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	hostAndPath := parsed.Host + parsed.Path
	if parsed.RawQuery != "" {
		hostAndPath += "?" + parsed.RawQuery
	}

	switch strings.ToLower(provider) {
	case providerBitbucket:
		if idx := strings.Index(token, ":"); idx >= 0 {
			user := url.QueryEscape(token[:idx])
			pass := url.QueryEscape(token[idx+1:])

			return "https://" + user + ":" + pass + "@" + hostAndPath, nil
		}

		// Bearer-only Bitbucket token: not usable as transport userinfo.
		// Returned verbatim; the clone/push step will fail and the
		// orchestrator will report it as a GitCommandError.
		return "https://" + url.QueryEscape(token) + "@" + hostAndPath, nil

	case providerGitLab:
		return "https://oauth2:" + url.QueryEscape(token) + "@" + hostAndPath, nil

	default:
		// GitHub and GitHub Enterprise.
		return "https://" + url.QueryEscape(token) + "@" + hostAndPath, nil
	}
}

// providerAPIBase returns the REST base URL for a RepoContext, per §4.B.
func providerAPIBase(ctx RepoContext) (string, error) {
	switch ctx.Provider {
	case providerGitHub:
		if isDefaultHost(ctx.Host, "github.com") {
			return "https://api.github.com", nil
		}

		return "https://" + ctx.Host + "/api/v3", nil

	case providerGitLab:
		return "https://" + ctx.Host + "/api/v4", nil

	case providerBitbucket:
		if isDefaultHost(ctx.Host, "bitbucket.org") {
			return "https://api.bitbucket.org/2.0", nil
		}

		return "", &UnsupportedProviderError{Provider: ctx.Provider, Host: ctx.Host}

	default:
		return "", &UnsupportedProviderError{Provider: ctx.Provider}
	}
}

func isDefaultHost(host, canonical string) bool {
	h := strings.ToLower(host)

	return h == canonical || h == "www."+canonical
}
