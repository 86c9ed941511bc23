// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mqclient

import "encoding/json"

// numberOrArray absorbs the upstream stats endpoint's dynamic shape: a
// numeric field is sometimes a bare scalar and sometimes an array whose
// last element is the most recent sample. It decodes either shape and
// reduces to a single float64, so the polymorphism never leaks past this
// file.
type numberOrArray float64

// UnmarshalJSON implements the array-last-element / scalar / missing
// decoding rule: `{"x":[a,b,c]}` -> c; `{"x":c}` -> c; `{"x":[]}`,
// `{"x":null}`, or a missing field -> 0.
func (n *numberOrArray) UnmarshalJSON(data []byte) error {
	trimmed := string(data)
	if trimmed == "null" {
		*n = 0
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []float64
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			*n = 0
			return nil
		}
		*n = numberOrArray(arr[len(arr)-1])
		return nil
	}

	var scalar float64
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	*n = numberOrArray(scalar)
	return nil
}

func (n numberOrArray) Int64() int64 {
	return int64(n)
}

func (n numberOrArray) Float64() float64 {
	return float64(n)
}

// optionalNumberOrArray absorbs the same dynamic shape but, unlike
// numberOrArray, a missing/null field stays nil rather than defaulting
// to 0 — used for QueueStats.QueueSizeBytes and AverageMessageSize,
// where "no data yet" is semantically different from "zero bytes".
type optionalNumberOrArray struct {
	value *float64
}

func (n *optionalNumberOrArray) UnmarshalJSON(data []byte) error {
	trimmed := string(data)
	if trimmed == "null" || trimmed == "" {
		n.value = nil
		return nil
	}
	var inner numberOrArray
	if err := inner.UnmarshalJSON(data); err != nil {
		return err
	}
	v := inner.Float64()
	n.value = &v
	return nil
}
