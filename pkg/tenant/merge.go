package tenant

import (
	"encoding/json"
	"errors"
	"maps"
)

// Overrides is a partial document (settings, isolation or resources) in
// the same shape as the JSON encoding of the target type.
type Overrides map[string]any

// Merge layers overrides onto base. Objects merge key by key at every
// depth; arrays and scalars replace the lower layer. Later layers win.
func Merge[T any](base T, layers ...Overrides) (T, error) {
	data, err := json.Marshal(base)
	if err != nil {
		return base, errors.Join(ErrInvalidOverrides, err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return base, errors.Join(ErrInvalidOverrides, err)
	}

	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		normalized, err := normalize(layer)
		if err != nil {
			return base, err
		}
		deepMerge(doc, normalized)
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return base, errors.Join(ErrInvalidOverrides, err)
	}

	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return base, errors.Join(ErrInvalidOverrides, err)
	}
	return out, nil
}

// normalize round-trips the layer through JSON so that values decoded from
// YAML or built in Go share the map[string]any shape of base.
func normalize(layer Overrides) (map[string]any, error) {
	data, err := json.Marshal(layer)
	if err != nil {
		return nil, errors.Join(ErrInvalidOverrides, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Join(ErrInvalidOverrides, err)
	}
	return out, nil
}

func deepMerge(dst, src map[string]any) {
	for key, sv := range src {
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dm, sm)
			continue
		}
		if srcIsMap {
			dst[key] = maps.Clone(sm)
			continue
		}
		dst[key] = sv
	}
}
