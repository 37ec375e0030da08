package combinedjobs

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
)

const defaultLang = "ru"

// mapState сворачивает состояния очереди в статусы API. cancelled считается failed.
func mapState(state string) string {
	switch state {
	case models.QueueStateActive:
		return models.JobStatusRunning
	case models.QueueStateCompleted:
		return models.JobStatusCompleted
	case models.QueueStateFailed, models.QueueStateCancelled:
		return models.JobStatusFailed
	default:
		return models.JobStatusQueued
	}
}

// decodePayload строго проверяет data задачи: tenantId непустая строка,
// chatId целое число, languageCode необязательная строка.
func decodePayload(data json.RawMessage) (models.CombinedJobPayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return models.CombinedJobPayload{}, errors.Wrap(ErrInvalidPayload, "not an object")
	}

	var p models.CombinedJobPayload
	if err := json.Unmarshal(fields["tenantId"], &p.TenantID); err != nil || strings.TrimSpace(p.TenantID) == "" {
		return models.CombinedJobPayload{}, errors.Wrap(ErrInvalidPayload, "tenantId")
	}

	chat := bytes.TrimSpace(fields["chatId"])
	id, err := strconv.ParseInt(string(chat), 10, 64)
	if err != nil {
		return models.CombinedJobPayload{}, errors.Wrap(ErrInvalidPayload, "chatId")
	}
	p.ChatID = id

	p.LanguageCode = defaultLang
	if raw, ok := fields["languageCode"]; ok {
		var lang string
		if err := json.Unmarshal(raw, &lang); err == nil && lang != "" {
			p.LanguageCode = lang
		}
	}
	return p, nil
}

// decodeResult принимает результат как есть или обёрнутым в {"result": ...}.
func decodeResult(out json.RawMessage) (*models.JobResult, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, errors.New("empty output")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, errors.Wrap(err, "output is not an object")
	}
	// null и {} тоже пустой вывод
	if len(probe) == 0 {
		return nil, errors.New("empty output")
	}
	body := out
	if inner, ok := probe["result"]; ok && isObject(inner) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(inner, &fields); err != nil || len(fields) == 0 {
			return nil, errors.New("empty result")
		}
		body = inner
	}
	var res models.JobResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	return &res, nil
}

var errorFields = []string{"message", "error", "value", "stack"}

const genericJobError = "job failed"

// decodeError берёт текст из первого непустого поля message, error, value, stack.
func decodeError(out json.RawMessage) string {
	var s string
	if err := json.Unmarshal(out, &s); err == nil && s != "" {
		return s
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(out, &fields); err != nil {
		return genericJobError
	}
	for _, k := range errorFields {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if text := errorText(raw); text != "" {
			return text
		}
	}
	return genericJobError
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if isObject(raw) {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil {
			return strings.TrimSpace(nested.Message)
		}
	}
	return ""
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
