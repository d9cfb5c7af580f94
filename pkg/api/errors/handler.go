// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	goerrors "errors"
	"net/http"
	"strconv"

	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error.
// Handlers never serialize errors themselves; the decorator below converts
// the returned error into the Mastodon JSON error shape.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// errorBody is the wire shape of every failure response.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ErrorHandler wraps a HandlerWithError and converts returned errors into
// HTTP responses.
//
//   - nil means the handler already wrote the response
//   - 4xx kinds log a warning and carry their message to the client
//   - 5xx kinds log the full error and return a generic description
//   - rate_limited additionally sets the Retry-After header
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		WriteError(w, r, err)
	}
}

// WriteError serializes a classified error. Exposed for the middlewares that
// short-circuit before any handler runs.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)

	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Warnw("request rejected",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	var ge *errors.Error
	if goerrors.As(err, &ge) && ge.Kind == errors.KindRateLimited && ge.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(ge.RetryAfter.Seconds()+0.5)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:       errors.WireCode(err),
		Description: errors.Description(err),
	})
}
