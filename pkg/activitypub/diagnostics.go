package activitypub

import (
	"net/http"
	"strings"

	"fedicaption/pkg/logger"
	"fedicaption/pkg/platforms"

	"github.com/google/uuid"
)

// maxDiagnosticBody bounds the response body kept in an ErrorContext.
const maxDiagnosticBody = 500

// ErrorContext describes a failed upstream call for diagnostics.
type ErrorContext struct {
	RequestID string
	Platform  string
	Instance  string
	Method    string
	URL       string
	Endpoint  string
	Status    int
	Body      string
	Identity  string
}

func (ec ErrorContext) fields() map[string]interface{} {
	fields := map[string]interface{}{
		"request_id": ec.RequestID,
		"platform":   ec.Platform,
		"instance":   ec.Instance,
		"method":     ec.Method,
		"url":        ec.URL,
		"endpoint":   ec.Endpoint,
		"status":     ec.Status,
	}
	if ec.Body != "" {
		fields["body"] = ec.Body
	}
	if ec.Identity != "" {
		fields["identity"] = ec.Identity
	}
	return fields
}

// DiagnosticHandler logs platform specific guidance for a failed call. It
// must not alter the error, which the client returns unchanged.
type DiagnosticHandler func(log logger.Logger, ec ErrorContext)

func newErrorContext(platform, instance, method, rawURL, endpoint string, status int, body, identity string) ErrorContext {
	return ErrorContext{
		RequestID: uuid.NewString(),
		Platform:  platform,
		Instance:  instance,
		Method:    method,
		URL:       rawURL,
		Endpoint:  endpoint,
		Status:    status,
		Body:      truncate(body, maxDiagnosticBody),
		Identity:  identity,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

func defaultDiagnosticHandlers() map[string]DiagnosticHandler {
	return map[string]DiagnosticHandler{
		platforms.PixelfedName: pixelfedDiagnostics,
		platforms.MastodonName: mastodonDiagnostics,
		platforms.PleromaName:  pleromaDiagnostics,
	}
}

// commonHint covers statuses that mean the same thing on every platform.
func commonHint(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "access token rejected; generate a new token and log in again"
	case status == http.StatusTooManyRequests:
		return "instance rate limit reached; lower the configured request budgets"
	case status >= 500:
		return "instance is failing; retry later"
	}
	return ""
}

func pixelfedDiagnostics(log logger.Logger, ec ErrorContext) {
	hint := commonHint(ec.Status)
	switch {
	case ec.Status == http.StatusForbidden:
		hint = "token lacks the write scope, or the media belongs to another account"
	case ec.Status == http.StatusNotFound && ec.Endpoint == "MEDIA":
		hint = "media not found; Pixelfed only allows captioning your own uploads"
	case ec.Status == http.StatusUnprocessableEntity:
		hint = "Pixelfed rejected the caption; check its length against the instance limit"
	}
	emit(log, ec, hint)
}

func mastodonDiagnostics(log logger.Logger, ec ErrorContext) {
	hint := commonHint(ec.Status)
	switch {
	case ec.Status == http.StatusForbidden:
		hint = "token lacks the write:statuses or write:media scope"
	case ec.Status == http.StatusUnprocessableEntity && ec.Endpoint == "STATUSES":
		hint = "status edit rejected; the media ids must match the status and the text must not be empty"
	case ec.Status == http.StatusNotFound && ec.Endpoint == "STATUSES":
		hint = "status not found or not visible to this account"
	}
	emit(log, ec, hint)
}

func pleromaDiagnostics(log logger.Logger, ec ErrorContext) {
	hint := commonHint(ec.Status)
	switch {
	case ec.Status == http.StatusForbidden:
		hint = "token lacks the write scope"
	case ec.Status == http.StatusBadRequest && strings.Contains(ec.Body, "description"):
		hint = "Pleroma rejected the description; check the instance's description limit"
	}
	emit(log, ec, hint)
}

func genericDiagnostics(log logger.Logger, ec ErrorContext) {
	emit(log, ec, commonHint(ec.Status))
}

func emit(log logger.Logger, ec ErrorContext, hint string) {
	fields := ec.fields()
	if hint != "" {
		fields["hint"] = hint
	}
	if ec.Status >= 500 {
		log.ErrorWithFields("upstream request failed", fields)
		return
	}
	log.WarnWithFields("upstream request failed", fields)
}
