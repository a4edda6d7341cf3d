package marketapi

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNotJSON = errors.New("response is not a JSON array or object")

// extractRecords finds the market array in a response body. Accepted shapes,
// first match wins: a bare array, {markets:[]}, {data:[]}, {results:[]},
// {markets:{data:[]}}. An object matching none of them yields no records.
func extractRecords(body []byte) ([]rawRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errNotJSON
	}

	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)
	case '{':
	default:
		return nil, errNotJSON
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}

	for _, key := range []string{"markets", "data", "results"} {
		if recs, ok := arrayField(env, key); ok {
			return recs, nil
		}
	}

	if nested, ok := env["markets"]; ok && isObject(nested) {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			if recs, ok := arrayField(inner, "data"); ok {
				return recs, nil
			}
		}
	}
	return nil, nil
}

func arrayField(obj map[string]json.RawMessage, key string) ([]rawRecord, bool) {
	raw, ok := obj[key]
	if !ok || !isArray(raw) {
		return nil, false
	}
	recs, err := decodeArray(raw)
	if err != nil {
		return nil, false
	}
	return recs, true
}

// decodeArray splits a JSON array into raw elements. Elements that are not
// objects are kept so they count toward FetchedCount; they normalize to
// defaults.
func decodeArray(raw json.RawMessage) ([]rawRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]rawRecord, len(items))
	for i, item := range items {
		out[i] = rawRecord{raw: item}
	}
	return out, nil
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}
