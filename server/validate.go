package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lagren/healthguard/api"
	"github.com/lagren/healthguard/check"
	"github.com/lagren/healthguard/persistence"
)

const (
	msgRequired      = "This field is required."
	msgNull          = "This field may not be null."
	msgBlank         = "This field may not be blank."
	msgNotString     = "Not a valid string."
	msgNotInteger    = "A valid integer is required."
	msgDatetime      = "Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z]."
	msgInvalidClient = "Invalid sync_app_id provided!"

	maxIdentifierLen = 256
	maxCheckNameLen  = check.MaxNameLen
)

// Accepted timestamp layouts. Values without an offset are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

var integralDecimal = regexp.MustCompile(`\.0*$`)

// job is an ingestion request that passed validation.
type job struct {
	uuid      string
	timestamp time.Time
	client    *persistence.Client
	checks    []api.CheckPayload
}

type clientFinder interface {
	FindClient(ctx context.Context, identifier uuid.UUID) (*persistence.Client, error)
}

// syntaxError reports a body that is not a JSON document.
type syntaxError struct {
	err error
}

func (e *syntaxError) Error() string {
	return "JSON parse error - " + e.err.Error()
}

// validateJob checks the fields in order and stops at the first invalid one.
// A non-nil error is a storage fault or a syntax error, not a validation
// failure.
func validateJob(ctx context.Context, clients clientFinder, body []byte) (*job, api.FieldErrors, error) {
	var fields map[string]json.RawMessage

	if err := json.Unmarshal(body, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, api.FieldErrors{"non_field_errors": {fmt.Sprintf("Invalid data. Expected a dictionary, but got %s.", typeErr.Value)}}, nil
		}
		return nil, nil, &syntaxError{err: err}
	}
	if fields == nil {
		return nil, api.FieldErrors{"non_field_errors": {"No data provided"}}, nil
	}

	var j job

	id, msg := stringField(fields, "uuid", maxIdentifierLen)
	if msg != "" {
		return nil, api.FieldErrors{"uuid": {msg}}, nil
	}
	j.uuid = id

	ts, msg := stringField(fields, "timestamp", 0)
	if msg != "" {
		return nil, api.FieldErrors{"timestamp": {msg}}, nil
	}
	if j.timestamp, msg = parseTimestamp(ts); msg != "" {
		return nil, api.FieldErrors{"timestamp": {msg}}, nil
	}

	appID, msg := stringField(fields, "sync_app_id", maxIdentifierLen)
	if msg != "" {
		return nil, api.FieldErrors{"sync_app_id": {msg}}, nil
	}
	identifier, err := uuid.Parse(appID)
	if err != nil {
		return nil, api.FieldErrors{"sync_app_id": {msgInvalidClient}}, nil
	}
	j.client, err = clients.FindClient(ctx, identifier)
	if errors.Is(err, persistence.ErrClientNotFound) {
		return nil, api.FieldErrors{"sync_app_id": {msgInvalidClient}}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not look up client: %w", err)
	}

	var fe api.FieldErrors
	if j.checks, fe = checksField(fields); fe != nil {
		return nil, fe, nil
	}

	return &j, nil, nil
}

func stringField(fields map[string]json.RawMessage, key string, maxLen int) (string, string) {
	raw, ok := fields[key]
	if !ok {
		return "", msgRequired
	}
	if isNull(raw) {
		return "", msgNull
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", msgNotString
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", msgBlank
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen)
	}

	return s, ""
}

func checksField(fields map[string]json.RawMessage) ([]api.CheckPayload, api.FieldErrors) {
	raw, ok := fields["checks"]
	if !ok {
		return nil, api.FieldErrors{"checks": {msgRequired}}
	}
	if isNull(raw) {
		return nil, api.FieldErrors{"checks": {msgNull}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, api.FieldErrors{"checks": {"Expected a list of items."}}
	}

	checks := make([]api.CheckPayload, 0, len(items))
	for i, item := range items {
		var itemFields map[string]json.RawMessage
		if err := json.Unmarshal(item, &itemFields); err != nil || itemFields == nil {
			return nil, api.FieldErrors{fmt.Sprintf("checks[%d]", i): {"Invalid data. Expected a dictionary."}}
		}

		key := func(field string) string { return fmt.Sprintf("checks[%d].%s", i, field) }

		name, msg := stringField(itemFields, "name", maxCheckNameLen)
		if msg != "" {
			return nil, api.FieldErrors{key("name"): {msg}}
		}

		status, msg := integerField(itemFields, "status")
		if msg != "" {
			return nil, api.FieldErrors{key("status"): {msg}}
		}

		message, msg := stringField(itemFields, "message", 0)
		if msg != "" {
			return nil, api.FieldErrors{key("message"): {msg}}
		}

		checks = append(checks, api.CheckPayload{Name: name, Status: status, Message: message})
	}

	return checks, nil
}

// integerField accepts JSON numbers and numeric strings with an integral value.
func integerField(fields map[string]json.RawMessage, key string) (int, string) {
	raw, ok := fields[key]
	if !ok {
		return 0, msgRequired
	}
	if isNull(raw) {
		return 0, msgNull
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, msgNotInteger
		}
		text = n.String()
	}

	text = integralDecimal.ReplaceAllString(strings.TrimSpace(text), "")

	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, msgNotInteger
	}

	return v, ""
}

func parseTimestamp(s string) (time.Time, string) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), ""
		}
	}
	return time.Time{}, msgDatetime
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
