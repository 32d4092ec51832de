package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fllarpy/api-debugger/domain/debug"
)

// DebugKey is the top-level key the debug section is stored under.
const DebugKey = "debug"

// augment returns a copy of body with section stored under DebugKey. An
// existing key is replaced in place; a new one is appended as the last key.
func augment(contentType string, body []byte, section *debug.Section, maxBody int64) ([]byte, error) {
	if contentType != "" && !isJSONContentType(contentType) {
		return nil, errors.Wrapf(ErrMalformedResponseBody, "content type %q is not JSON", contentType)
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, errors.Wrapf(ErrBodyTooLarge, "%d bytes exceeds limit of %d", len(body), maxBody)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.Wrap(ErrMalformedResponseBody, "body is not valid JSON")
	}
	if parsed := gjson.ParseBytes(body); !parsed.IsObject() {
		return nil, errors.Wrapf(ErrMalformedResponseBody, "body is a JSON %s, not an object", jsonKind(parsed))
	}

	raw, err := encodeJSON(section)
	if err != nil {
		return nil, errors.Wrap(err, "encode debug section")
	}

	out, err := sjson.SetRawBytes(body, DebugKey, raw)
	if err != nil {
		return nil, errors.Wrap(err, "splice debug section")
	}
	return out, nil
}

// encodeJSON marshals v without HTML escaping so that comparison operators in
// rendered queries stay readable.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// encodeDump marshals a dumped value. Values encoding/json rejects (channels,
// funcs, cyclic maps and slices) are reported as a string naming their type.
// The value itself is never printed, fmt would recurse forever on a cycle.
func encodeDump(v any) json.RawMessage {
	raw, err := encodeJSON(v)
	if err == nil {
		return raw
	}
	raw, _ = encodeJSON(unsupportedDump(v, err))
	return raw
}

func unsupportedDump(v any, err error) string {
	var (
		typeErr  *json.UnsupportedTypeError
		valueErr *json.UnsupportedValueError
	)
	switch {
	case errors.As(err, &typeErr):
		return fmt.Sprintf("<unsupported type %s>", typeErr.Type)
	case errors.As(err, &valueErr):
		return fmt.Sprintf("<unsupported value %T: %s>", v, valueErr.Str)
	default:
		return fmt.Sprintf("<unencodable %T>", v)
	}
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func jsonKind(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return "null"
	case gjson.False, gjson.True:
		return "boolean"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	default:
		if r.IsArray() {
			return "array"
		}
		return "value"
	}
}
