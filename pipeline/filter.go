package pipeline

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Payload predicates for WithPayloadFilter and block conditions built over
// JSON-shaped payloads. A payload may be raw JSON ([]byte or string) or any
// JSON-marshalable value; anything else fails every predicate.

// payloadJSON normalizes a payload to raw JSON bytes.
func payloadJSON(payload any) ([]byte, bool) {
	switch p := payload.(type) {
	case nil:
		return nil, false
	case []byte:
		return p, true
	case string:
		return []byte(p), true
	case json.RawMessage:
		return p, true
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, false
		}
		return data, true
	}
}

// PayloadPath builds a predicate that evaluates a gjson path against the
// payload and applies pred to the result. Missing paths reject.
func PayloadPath(path string, pred func(gjson.Result) bool) func(payload any) bool {
	return func(payload any) bool {
		data, ok := payloadJSON(payload)
		if !ok {
			return false
		}
		res := gjson.GetBytes(data, path)
		if !res.Exists() {
			return false
		}
		return pred(res)
	}
}

// PayloadPathExists builds a predicate that accepts payloads where the path
// is present.
func PayloadPathExists(path string) func(payload any) bool {
	return PayloadPath(path, func(gjson.Result) bool { return true })
}

// PayloadPathEquals builds a predicate comparing the value at path with
// want. Comparison is by string form, matching gjson's loose typing.
func PayloadPathEquals(path string, want string) func(payload any) bool {
	return PayloadPath(path, func(res gjson.Result) bool {
		return res.String() == want
	})
}

// PayloadPathTrue builds a predicate that accepts payloads where the value
// at path is truthy.
func PayloadPathTrue(path string) func(payload any) bool {
	return PayloadPath(path, func(res gjson.Result) bool {
		return res.Bool()
	})
}
