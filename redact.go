package migrator

import "strings"

// redactSecrets replaces every occurrence of each non-empty secret in
// content with "***". This is the one gate through which error text must
// pass before reaching a JobRecord or an HTTP response — see §7 of
// SPEC_FULL.md: redaction is mandatory even for messages synthesized by the
// engine itself, not just ones echoed back from a provider.
func redactSecrets(content string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}

		content = strings.ReplaceAll(content, s, "***")
	}

	return content
}
