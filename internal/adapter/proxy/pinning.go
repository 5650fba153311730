package proxy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/thushan/flowgate/internal/core/domain"
)

// ApplyPinned merges pinned properties into a JSON object body. Pinned
// keys always win over what the body already holds. Keys are top level
// names, a dotted key sets a nested field ("options.num_ctx"). Applied in
// key order so the output is deterministic.
func ApplyPinned(body []byte, pinned map[string]any) ([]byte, error) {
	if len(pinned) == 0 {
		return body, nil
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("%w: pinned properties need a JSON object body", domain.ErrMalformedPayload)
	}

	keys := make([]string, 0, len(pinned))
	for k := range pinned {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := body
	for _, key := range keys {
		path := escapePath(key)
		var err error
		out, err = sjson.SetBytes(out, path, pinned[key])
		if err != nil {
			return nil, fmt.Errorf("pinning %q: %w", key, err)
		}
	}
	return out, nil
}

var pathEscaper = strings.NewReplacer("*", `\*`, "?", `\?`)

// escapePath keeps the dot as a separator but escapes wildcards, which
// sjson refuses to set.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
