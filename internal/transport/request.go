package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/logging"
)

// maxErrorBody caps how much of an error response is kept in the message.
const maxErrorBody = 512

// DecodeResponse decodes a JSON response into the target structure. Non-2xx
// responses become an APIError carrying the status and body.
func DecodeResponse(resp *http.Response, source string, target any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn().Err(err).Str("source", source).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", "response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		apiErr := errors.NewAPIError(source, resp.StatusCode, msg)
		if resp.Request != nil && resp.Request.URL != nil {
			apiErr.Endpoint = resp.Request.URL.String()
		}
		return apiErr
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return errors.WrapParse("json", "response", err)
	}

	return nil
}
