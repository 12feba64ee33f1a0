package plants

import (
	"encoding/json"
	"strings"
)

// Remote records are keyed by "uuid", falling back to "uid", and named by the
// first non-empty of "display_name", "name" and "plant_name".
var (
	remoteUIDFields  = []string{"uuid", "uid"}
	remoteNameFields = []string{"display_name", "name", "plant_name"}
	listEnvelopes    = []string{"plants", "data"}
)

func stringField(record map[string]interface{}, keys []string) string {
	for _, k := range keys {
		switch v := record[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func remoteUID(record map[string]interface{}) string {
	return stringField(record, remoteUIDFields)
}

func remoteName(record map[string]interface{}) string {
	for _, k := range remoteNameFields {
		if s, ok := record[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// splitList recognises a top-level array or an object whose "plants" or
// "data" field is an array. It returns the plant objects and a function that
// rebuilds the original shape around replacement records. rebuild is nil when
// the payload shape is not recognised and must pass through unchanged.
func splitList(payload interface{}) ([]map[string]interface{}, func([]map[string]interface{}) interface{}) {
	switch v := payload.(type) {
	case []interface{}:
		records, positions := objects(v)
		return records, func(annotated []map[string]interface{}) interface{} {
			return replaceObjects(v, positions, annotated)
		}
	case map[string]interface{}:
		for _, key := range listEnvelopes {
			items, ok := v[key].([]interface{})
			if !ok {
				continue
			}
			records, positions := objects(items)
			return records, func(annotated []map[string]interface{}) interface{} {
				return withField(v, key, replaceObjects(items, positions, annotated))
			}
		}
	}
	return nil, nil
}

// splitDetail recognises a single plant object, optionally wrapped in a
// "plant" or "data" field.
func splitDetail(payload interface{}) (map[string]interface{}, func(map[string]interface{}) interface{}) {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	for _, key := range []string{"plant", "data"} {
		if inner, ok := obj[key].(map[string]interface{}); ok {
			return inner, func(annotated map[string]interface{}) interface{} {
				return withField(obj, key, annotated)
			}
		}
	}
	if _, isError := obj["error"]; isError && len(obj) == 1 {
		return nil, nil
	}
	return obj, func(annotated map[string]interface{}) interface{} {
		return annotated
	}
}

// objects returns the object elements of items and their indexes.
func objects(items []interface{}) ([]map[string]interface{}, []int) {
	records := make([]map[string]interface{}, 0, len(items))
	positions := make([]int, 0, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, m)
			positions = append(positions, i)
		}
	}
	return records, positions
}

// replaceObjects returns a copy of items with the objects at positions
// replaced. When records were filtered out, only the surviving annotated
// records are returned.
func replaceObjects(items []interface{}, positions []int, annotated []map[string]interface{}) []interface{} {
	if len(annotated) != len(positions) {
		out := make([]interface{}, 0, len(annotated))
		for _, r := range annotated {
			out = append(out, r)
		}
		return out
	}
	out := make([]interface{}, len(items))
	copy(out, items)
	for i, pos := range positions {
		out[pos] = annotated[i]
	}
	return out
}

// withField returns a shallow copy of obj with key set to value.
func withField(obj map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	out[key] = value
	return out
}

// annotateRecord returns a copy of record carrying its resolved display
// name. Records without a uid are returned as they are.
func annotateRecord(record map[string]interface{}, names map[string]*string) map[string]interface{} {
	uid := remoteUID(record)
	if uid == "" {
		return record
	}
	return withDisplayName(record, names[uid])
}

// withDisplayName returns a copy of record with display_name set, or null
// when the plant has no name.
func withDisplayName(record map[string]interface{}, name *string) map[string]interface{} {
	var value interface{}
	if name != nil {
		value = *name
	}
	return withField(record, "display_name", value)
}

func annotateRecords(records []map[string]interface{}, names map[string]*string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, annotateRecord(r, names))
	}
	return out
}
