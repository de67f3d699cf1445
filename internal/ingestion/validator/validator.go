// Package validator checks upload and draw requests before they reach the
// database or the walker, and reports failures per field.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/executor"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
)

const (
	maxNameLength   = 255
	maxNumberLength = 18
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, field := range names {
		parts[i] = fmt.Sprintf("%s: %s", field, e.Fields[field])
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

func result(errs map[string]string) error {
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateUpload checks an upload's name, raw size and parsed rows.
func ValidateUpload(name string, size, maxBytes int64, rows []record.Row) error {
	errs := make(map[string]string)
	if len(strings.TrimSpace(name)) > maxNameLength {
		errs["name"] = fmt.Sprintf("name must be at most %d characters", maxNameLength)
	}
	switch {
	case size == 0:
		errs["file"] = "file is required and must not be empty"
	case maxBytes > 0 && size > maxBytes:
		errs["file"] = fmt.Sprintf("file must be at most %d bytes", maxBytes)
	case len(rows) == 0:
		errs["file"] = "file has a header but no data rows"
	}
	return result(errs)
}

// ValidateDrawRequest checks a draw request. It trims whitespace from the
// drawn values and ignored keys in place.
func ValidateDrawRequest(req *executor.DrawRequest, maxIgnoredKeys int) error {
	errs := make(map[string]string)

	req.DatasetID = strings.TrimSpace(req.DatasetID)
	if req.DatasetID == "" {
		errs["dataset_id"] = "dataset_id is required"
	} else if _, err := uuid.Parse(req.DatasetID); err != nil {
		errs["dataset_id"] = "dataset_id must be a UUID"
	}

	if req.Mode != "" {
		if _, err := walker.ParseMode(req.Mode); err != nil {
			errs["mode"] = "mode must be flat or partitioned"
		}
	}

	req.DrawnNumber = strings.TrimSpace(req.DrawnNumber)
	switch {
	case req.DrawnNumber == "":
		errs["numero_sorteado"] = "numero_sorteado is required"
	case !record.IsDigits(req.DrawnNumber):
		errs["numero_sorteado"] = "numero_sorteado must contain only digits"
	case len(req.DrawnNumber) > maxNumberLength:
		errs["numero_sorteado"] = fmt.Sprintf("numero_sorteado must be at most %d digits", maxNumberLength)
	}

	req.DrawnPartition = strings.TrimSpace(req.DrawnPartition)
	if req.DrawnPartition != "" {
		if walker.Mode(req.Mode) == walker.ModeFlat {
			errs["serie_sorteada"] = "serie_sorteada only applies to partitioned draws"
		} else if !record.IsDigits(req.DrawnPartition) {
			errs["serie_sorteada"] = "serie_sorteada must contain only digits"
		}
	}

	if maxIgnoredKeys > 0 && len(req.IgnoredKeys) > maxIgnoredKeys {
		errs["chaves_ignoradas"] = fmt.Sprintf("at most %d ignored keys are allowed", maxIgnoredKeys)
	}
	for i, k := range req.IgnoredKeys {
		req.IgnoredKeys[i] = strings.TrimSpace(k)
	}
	return result(errs)
}
