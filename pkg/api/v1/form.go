// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/bluebridge-dev/bluebridge/pkg/errors"
)

// requestValues normalizes the request body into url.Values. Mastodon
// clients send the same parameters as JSON objects, form bodies or query
// strings interchangeably, so every mutating endpoint accepts all three.
func requestValues(r *http.Request) (url.Values, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, errors.NewValidation("", "Unparseable request body")
		}
		return r.Form, nil
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errors.NewValidation("", "Unparseable JSON body")
	}

	values := url.Values{}
	for k := range r.URL.Query() {
		values.Set(k, r.URL.Query().Get(k))
	}
	for k, v := range body {
		switch val := v.(type) {
		case string:
			values.Set(k, val)
		case bool:
			values.Set(k, fmt.Sprintf("%t", val))
		case float64:
			values.Set(k, trimFloat(val))
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					values.Add(k, s)
				}
			}
		}
	}
	return values, nil
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
