// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package bluesky

import (
	"context"
	goerrors "errors"
	"net"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/xrpc"

	"github.com/bluebridge-dev/bluebridge/pkg/errors"
)

// normalizeError maps an upstream XRPC failure into the gateway error
// taxonomy. op names the upstream call for the log line inside the message;
// it never reaches the client response body.
func normalizeError(op string, err error) error {
	if err == nil {
		return nil
	}

	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return errors.NewUpstream(op+": upstream request aborted", err)
	}

	var xe *xrpc.Error
	if goerrors.As(err, &xe) {
		switch {
		case xe.StatusCode == 401 || xe.StatusCode == 403:
			return errors.NewUnauthorized(op+": upstream rejected credentials", err)
		case xe.StatusCode == 400 && hasErrStr(xe, "AuthenticationRequired", "InvalidToken", "ExpiredToken", "AccountTakedown"):
			return errors.NewUnauthorized(op+": upstream rejected credentials", err)
		case xe.StatusCode == 404 || hasErrStr(xe, "NotFound", "RecordNotFound", "ActorNotFound", "ProfileNotFound"):
			return errors.NewNotFound(op+": not found upstream", err)
		case xe.StatusCode == 429:
			return errors.NewRateLimited(ratelimitRetryAfter(xe))
		case xe.StatusCode >= 500:
			return errors.NewUpstream(op+": upstream server error", err)
		default:
			return errors.NewValidation("", op+": upstream rejected request")
		}
	}

	var ne net.Error
	if goerrors.As(err, &ne) {
		return errors.NewUpstream(op+": upstream unreachable", err)
	}

	return errors.NewInternal(op+" failed", err)
}

// hasErrStr reports whether the wrapped XRPC body carries one of the given
// lexicon error names.
func hasErrStr(xe *xrpc.Error, names ...string) bool {
	var body *xrpc.XRPCError
	if !goerrors.As(xe.Wrapped, &body) {
		return false
	}
	for _, name := range names {
		if strings.EqualFold(body.ErrStr, name) {
			return true
		}
	}
	return false
}

func ratelimitRetryAfter(xe *xrpc.Error) time.Duration {
	if xe.Ratelimit == nil {
		return 30 * time.Second
	}
	wait := time.Until(xe.Ratelimit.Reset)
	if wait <= 0 {
		return time.Second
	}
	return wait
}

// IsTransient reports whether a normalized error is worth one retry. Only
// upstream availability failures qualify; auth and client errors never do.
func IsTransient(err error) bool {
	return errors.IsUpstream(err)
}

func errNotFound(msg string) error {
	return errors.NewNotFound(msg, nil)
}
