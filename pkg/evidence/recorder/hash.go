package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

// RedactedPrefix marks a field value replaced by its hash.
const RedactedPrefix = "sha256:"

// HashContent computes the SHA-256 hash of the content and returns it as a
// hex-encoded string. Returns an empty string if content is empty.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// HashContext hashes the canonical JSON form of an evaluation context. Map
// keys are sorted by encoding/json, so equal contexts hash equally.
func HashContext(ctx domain.Context) (string, error) {
	data, err := json.Marshal(ctx)
	if err != nil {
		return "", err
	}
	return HashContent(data), nil
}

// RedactFields returns the JSON of fields with each named top-level field
// replaced by the hash of its value. Fields not present are ignored.
func RedactFields(fields ast.Map, redact []string) (json.RawMessage, error) {
	if len(redact) == 0 || len(fields) == 0 {
		return json.Marshal(fields)
	}

	out := make(ast.Map, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, name := range redact {
		v, ok := out[name]
		if !ok {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[name] = ast.String(RedactedPrefix + HashContent(data))
	}
	return json.Marshal(out)
}
