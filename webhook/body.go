package webhook

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const contentTypeHeader = "Content-Type"

/* NormalizeBody turns a raw inbound body into the JSON value stored on the record
 * JSON is kept verbatim, urlencoded forms become objects, anything else a JSON string
 */
func NormalizeBody(contentType string, raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		if values, err := url.ParseQuery(string(trimmed)); err == nil {
			if b, err := json.Marshal(formObject(values)); err == nil {
				return b
			}
		}
	}

	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}

	b, _ := json.Marshal(string(raw))
	return b
}

func formObject(values url.Values) map[string]interface{} {
	obj := make(map[string]interface{}, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			obj[key] = vals[0]
			continue
		}
		obj[key] = vals
	}
	return obj
}

// contentType returns the first Content-Type value found in headers
func contentType(headers map[string][]string) string {
	for name, values := range headers {
		if !strings.EqualFold(name, contentTypeHeader) {
			continue
		}
		for _, v := range values {
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// forwardHeaders reduces captured headers to the single Content-Type sent downstream
func forwardHeaders(headers map[string][]string) http.Header {
	out := make(http.Header, 1)
	if ct := contentType(headers); ct != "" {
		out.Set(contentTypeHeader, ct)
	}
	return out
}
