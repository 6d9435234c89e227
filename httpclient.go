package migrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"gitlab.com/tozd/go/errors"
)

// newRetryableClient builds the retryablehttp.Client one provider adapter
// owns (each adapter constructor calls it once), matching the teacher's
// github.go/gitlab.go construction: a silenced internal logger (this package
// owns logging) and the httpTransport defined in main.go, which every such
// client shares. timeout becomes the wall-clock deadline
// doAPIRequest applies to every call through this client (Config.HTTPTimeout,
// §3); a zero value falls back to defaultHTTPRequestTimeout.
func newRetryableClient(timeout time.Duration) *retryablehttp.Client {
	if timeout <= 0 {
		timeout = defaultHTTPRequestTimeout
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.HTTPClient = &http.Client{Transport: httpTransport, Timeout: timeout}

	return rc
}

// apiRequestInput describes one REST call. headers never include the token
// in a form that could be logged without going through redaction first; the
// token is carried separately in secrets so any error text can be scrubbed.
type apiRequestInput struct {
	client  *retryablehttp.Client
	method  string
	url     string
	headers http.Header
	body    any // JSON-encoded if non-nil
	secrets []string
}

// apiResponse is the raw result of a provider REST call: status and body,
// left to the caller to decode or to turn into a ProviderAPIError.
type apiResponse struct {
	status int
	body   []byte
}

// doAPIRequest issues one provider REST call under the client's configured
// wall-clock timeout (§4.B, Config.HTTPTimeout) and returns a
// ProviderAPIError for any status code >= 400, carrying the first 400 bytes
// of the response body with newlines squashed, exactly as SPEC_FULL.md
// requires.
func doAPIRequest(ctx context.Context, in apiRequestInput) (apiResponse, error) {
	var reqBody io.Reader

	if in.body != nil {
		encoded, err := json.Marshal(in.body)
		if err != nil {
			return apiResponse{}, &InternalError{Message: errors.Errorf("failed to encode request body: %s", err).Error()}
		}

		reqBody = bytes.NewReader(encoded)
	}

	timeout := defaultHTTPRequestTimeout
	if in.client != nil && in.client.HTTPClient != nil && in.client.HTTPClient.Timeout > 0 {
		timeout = in.client.HTTPClient.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, in.method, in.url, reqBody)
	if err != nil {
		return apiResponse{}, &InternalError{Message: redactSecrets(errors.Wrap(err, "failed to build request").Error(), in.secrets...)}
	}

	if in.headers != nil {
		req.Header = in.headers
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return apiResponse{}, &InternalError{Message: redactSecrets(errors.Wrap(err, "request failed").Error(), in.secrets...)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, &InternalError{Message: redactSecrets(errors.Wrap(err, "failed to read response body").Error(), in.secrets...)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return apiResponse{status: resp.StatusCode, body: respBody}, &ProviderAPIError{
			Method:  in.method,
			URL:     redactSecrets(in.url, in.secrets...),
			Status:  resp.StatusCode,
			Snippet: redactSecrets(squashNewlines(truncate(respBody, 400)), in.secrets...),
		}
	}

	return apiResponse{status: resp.StatusCode, body: respBody}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}

	return b[:n]
}

func squashNewlines(b []byte) string {
	return string(bytes.ReplaceAll(bytes.ReplaceAll(b, []byte("\r\n"), []byte(" ")), []byte("\n"), []byte(" ")))
}

// readAndClose drains and closes a raw *http.Response body, for the few call
// sites (GitLab pagination) that need the response headers alongside the
// body and so cannot go through doAPIRequest.
func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InternalError{Message: errors.Wrap(err, "failed to read response body").Error()}
	}

	return body, nil
}

// jsonArrayLen reports the length of a top-level JSON array without
// decoding it into a concrete type, used to apply the pagination
// short-page-stops rule before the caller picks a destination shape.
func jsonArrayLen(body []byte) (int, error) {
	var raw []json.RawMessage

	if len(body) == 0 {
		return 0, nil
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, &InternalError{Message: errors.Errorf("failed to decode paginated response: %s", err).Error()}
	}

	return len(raw), nil
}

func decodeJSON[T any](body []byte) (T, error) {
	var out T

	if len(body) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, &InternalError{Message: errors.Errorf("failed to decode response: %s", err).Error()}
	}

	return out, nil
}
