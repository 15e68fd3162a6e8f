// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeRemoteRequestInvalid   Code = "remote.request.invalid"
	CodeRemoteResponseInvalid  Code = "remote.response.invalid"
	CodeRemoteUpstreamFailure  Code = "remote.upstream.failure"
	CodeRemoteTimeout          Code = "remote.request.timeout"
	CodeRemoteCircuitOpen      Code = "remote.circuit.open"
	CodeRemoteRateLimitAborted Code = "remote.ratelimit.aborted"

	CodeEmbedBackendNotFound     Code = "embed.backend.not_found"
	CodeEmbedInputInvalid        Code = "embed.input.invalid"
	CodeEmbedModelInitFailure    Code = "embed.model.init.failure"
	CodeEmbedModelFetchFailure   Code = "embed.model.fetch.failure"
	CodeEmbedChecksumMismatch    Code = "embed.model.checksum_mismatch"
	CodeEmbedDimensionMismatch   Code = "embed.vector.dimension_mismatch"
	CodeEmbedUpstreamFailure     Code = "embed.upstream.failure"
	CodeEmbedManifestInvalid     Code = "embed.manifest.invalid_format"

	CodeCacheLayerFailure  Code = "cache.layer.failure"
	CodeCacheKeyInvalid    Code = "cache.key.invalid_input"
	CodeCacheEntryNotFound Code = "cache.entry.not_found"

	CodeStoreVectorNotFound      Code = "store.vector.get.not_found"
	CodeStoreDimensionMismatch   Code = "store.vector.dimension_mismatch"
	CodeStoreInvalidInput        Code = "store.invalid_input"
	CodeStoreDatabaseFailure     Code = "store.database.failure"
	CodeStoreBackendUnsupported  Code = "store.backend.unsupported"

	CodeClusterInputInvalid   Code = "cluster.input.invalid"
	CodeClusterConfigInvalid  Code = "cluster.config.invalid_value"
	CodeClusterDegenerate     Code = "cluster.quality.degenerate_input"
	CodeClusterRemoteFailure  Code = "cluster.remote.upstream.failure"

	CodeEntityLinkFailure  Code = "entity.link.failure"
	CodeEntityInputInvalid Code = "entity.input.invalid"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretInvalidInput   Code = "secret.invalid_input"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretBackendFailure Code = "secret.backend.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLIRequestFailure Code = "cli.request.failure"
	CodeCLISetupFailure   Code = "cli.setup.failure"
	CodeCLIInputInvalid   Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldDocumentID(value string) Attr {
	return Field("document_id", value)
}

func FieldVectorID(value string) Attr {
	return Field("vector_id", value)
}

func FieldModelVersion(value string) Attr {
	return Field("model_version", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func FieldEndpoint(value string) Attr {
	return Field("endpoint", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsTimeout reports whether err is a remote-call timeout, distinct from a
// network failure so retry logic can reason about the two separately.
func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// IsCircuitOpen reports whether err was raised fail-fast by an open circuit
// breaker, before any network I/O was attempted.
func IsCircuitOpen(err error) bool {
	return HasCode(err, CodeRemoteCircuitOpen)
}

// IsDimensionMismatch reports whether err is a vector dimension mismatch,
// a fatal local error that must never be retried.
func IsDimensionMismatch(err error) bool {
	return reason(CodeOf(err)) == "dimension_mismatch"
}

func IsChecksumMismatch(err error) bool {
	return reason(CodeOf(err)) == "checksum_mismatch"
}

// IsRetryable reports whether err belongs to the transient class
// (upstream failures and timeouts). Client errors, circuit-open and
// dimension mismatches are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCircuitOpen(err) || IsDimensionMismatch(err) {
		return false
	}
	return IsUpstreamFailure(err) || IsTimeout(err)
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
