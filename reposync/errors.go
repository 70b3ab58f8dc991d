// Copyright 2013 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reposync

import "fmt"

// ErrorStatus is the typed-error vocabulary of spec.md §7.
type ErrorStatus int

const (
	StatusInvalidPath ErrorStatus = 1 + iota
	StatusBadPattern
	StatusNotFound
	StatusShapeConflict
	StatusBusy
	StatusNotSupported
	StatusMissingIdentity
	StatusReasonRequired
	StatusNetworkError
	StatusHTTPError
	StatusRemoteDenied
	StatusMalformedCatalog
	StatusCorruptMetadata
	StatusInstallFailed
	StatusIOError
)

func (s ErrorStatus) String() string {
	switch s {
	case StatusInvalidPath:
		return "INVALID_PATH"
	case StatusBadPattern:
		return "BAD_PATTERN"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusShapeConflict:
		return "SHAPE_CONFLICT"
	case StatusBusy:
		return "BUSY"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusMissingIdentity:
		return "MISSING_IDENTITY"
	case StatusReasonRequired:
		return "REASON_REQUIRED"
	case StatusNetworkError:
		return "NETWORK_ERROR"
	case StatusHTTPError:
		return "HTTP_ERROR"
	case StatusRemoteDenied:
		return "REMOTE_DENIED"
	case StatusMalformedCatalog:
		return "MALFORMED_CATALOG"
	case StatusCorruptMetadata:
		return "CORRUPT_METADATA"
	case StatusInstallFailed:
		return "INSTALL_FAILED"
	case StatusIOError:
		return "IO_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the core's only failure type: a status, a human-readable
// message, and an optional wrapped cause kept distinct from the
// message per spec.md §7.
type Error struct {
	Status  ErrorStatus
	Message string
	Cause   error

	// Path and HTTPStatus are secondary diagnostic fields, attached
	// when relevant instead of folded into Message.
	Path       string
	HTTPStatus int
}

func (e *Error) Error() string {
	msg := e.Status.String()
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(status ErrorStatus, path, message string, cause error) *Error {
	return &Error{Status: status, Path: path, Message: message, Cause: cause}
}

func invalidPathErr(path string, cause error) *Error {
	return newErr(StatusInvalidPath, path, "", cause)
}

func badPatternErr(cause error) *Error {
	return newErr(StatusBadPattern, "", "", cause)
}

func notFoundErr(path string) *Error {
	return newErr(StatusNotFound, path, "unknown entry", nil)
}

func busyErr(path string, kind actionKind) *Error {
	return newErr(StatusBusy, path, fmt.Sprintf("%s already in flight", kind), nil)
}

func notSupportedErr(path, reason string) *Error {
	return newErr(StatusNotSupported, path, reason, nil)
}

func missingIdentityErr(path string) *Error {
	return newErr(StatusMissingIdentity, path, "author and email are required", nil)
}

func reasonRequiredErr(path string) *Error {
	return newErr(StatusReasonRequired, path, "comment is required", nil)
}

func networkErr(path string, cause error) *Error {
	return newErr(StatusNetworkError, path, "", cause)
}

func httpErr(path string, status int) *Error {
	e := newErr(StatusHTTPError, path, fmt.Sprintf("unexpected HTTP status %d", status), nil)
	e.HTTPStatus = status
	return e
}

func remoteDeniedErr(path, message string) *Error {
	return newErr(StatusRemoteDenied, path, message, nil)
}

func malformedCatalogErr(cause error) *Error {
	return newErr(StatusMalformedCatalog, "", "", cause)
}

func corruptMetadataErr(file string, cause error) *Error {
	return newErr(StatusCorruptMetadata, file, "", cause)
}

func installFailedErr(path string, cause error) *Error {
	return newErr(StatusInstallFailed, path, "", cause)
}

func ioErr(path string, cause error) *Error {
	return newErr(StatusIOError, path, "", cause)
}
