package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// normalizableTool is implemented by tools that declare it is safe to
// fold whitespace/case in their string arguments before fingerprinting —
// e.g. a SQL tool where "select 1" and "SELECT   1" are the same trusted
// call. Tools that don't implement it get the default canonical-JSON
// fingerprint (§4.4).
type normalizableTool interface {
	NormalizeFingerprintArgs(args json.RawMessage) json.RawMessage
}

// Fingerprint returns the canonical-JSON fingerprint of (toolName, args)
// used to key the trusted-tools cache for proceed_always, grounded on the
// teacher's policy.NormalizeTool name canonicalization (lowercase,
// trimmed) generalized to also canonicalize the argument encoding.
func Fingerprint(toolName string, args []byte, normalize func([]byte) []byte) string {
	name := strings.ToLower(strings.TrimSpace(toolName))

	var canonicalArgs []byte
	if normalize != nil {
		canonicalArgs = normalize(args)
	} else {
		canonicalArgs = args
	}

	canonical, err := canonicalizeJSON(canonicalArgs)
	if err != nil {
		canonical = canonicalArgs
	}

	sum := sha256.Sum256(append([]byte(name+"\x00"), canonical...))
	return hex.EncodeToString(sum[:])
}

// canonicalizeJSON reorders object keys recursively so that two
// semantically-equal JSON documents with different key order or spacing
// produce identical bytes.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return canonicalMarshal(v)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			vb, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			ib, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			b.Write(ib)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		return json.Marshal(val)
	}
}
