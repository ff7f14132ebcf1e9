package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"moneytransfer/internal/money"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidQuery          = errors.New("invalid query parameter")
	errConflictingIdempotent = errors.New("idempotency key header and body field differ")
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// parseInt returns fallback for empty or non-positive values.
func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// parseOptionalInt is strict: an absent value is zero, anything that is not
// a non-negative integer is rejected.
func parseOptionalInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, errInvalidQuery
	}
	return value, nil
}

// parseAmount accepts an amount sent as a JSON string or number.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	return money.Parse(text)
}

func idempotencyKey(r *http.Request, bodyKey string) (string, error) {
	headerKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	bodyKey = strings.TrimSpace(bodyKey)
	if headerKey != "" && bodyKey != "" && headerKey != bodyKey {
		return "", errConflictingIdempotent
	}
	if headerKey != "" {
		return headerKey, nil
	}
	return bodyKey, nil
}

func pageOffset(r *http.Request, defaultLimit int) (int, int) {
	query := r.URL.Query()
	limit := min(parseInt(query.Get("limit"), defaultLimit), 200)
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}
