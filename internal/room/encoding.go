package room

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// encodeHashFields turns a publish payload into the string-valued field
// map a Redis hash can store: nested objects/arrays become JSON strings,
// primitives become their string form, and null/undefined fields are
// dropped — the three rules spec.md's data model lays out for fullData.
func encodeHashFields(data map[string]any) map[string]string {
	nonNull := lo.OmitBy(data, func(_ string, v any) bool { return v == nil })

	out := make(map[string]string, len(nonNull))
	for k, v := range nonNull {
		out[k] = encodeScalarOrJSON(v)
	}
	return out
}

func encodeScalarOrJSON(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// decodeHashValue reverses the snapshot encoding: a string starting with
// '{' or '[' is tried as JSON and replaced on success; everything else
// (including primitives, which round-trip as their string form) is kept
// as the raw string, per spec.md's "intentional store-layout consequence".
func decodeHashValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}

// deepCopyMap clones a JSON-shaped map via marshal/unmarshal, the
// simplest correct deep copy for values that are themselves JSON-decoded
// and may contain nested maps/slices.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}

// decodeJSONObject parses a pub/sub or history payload into a field map.
// Messages that aren't a JSON object are a MessageDecodeError: logged by
// the caller and dropped.
func decodeJSONObject(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return out, nil
}

func deepCopyHistory(h []map[string]any) []map[string]any {
	out := make([]map[string]any, len(h))
	for i, item := range h {
		out[i] = deepCopyMap(item)
	}
	return out
}
