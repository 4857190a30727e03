package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gitpanel/internal/errors"
	"gitpanel/shared/types"
)

// maxBody bounds request bodies; the largest legitimate one is a hunk list.
const maxBody = 8 << 20

type Validator interface {
	Validate() error
}

// DecodeRequest reads a JSON body into v and validates it.
// An empty body decodes as the zero value.
func DecodeRequest(r *http.Request, v Validator) error {
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
		if err != nil && err != io.EOF {
			return errors.ValidationError("invalid request body", err.Error())
		}
	}
	return v.Validate()
}

// Required fails for blank values, naming field in the message.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.ValidationError(fmt.Sprintf("%s is required", field), map[string]string{"field": field})
	}
	return nil
}

// Paths fails when paths is empty or holds a blank entry.
func Paths(paths []string) error {
	if len(paths) == 0 {
		return errors.ValidationError("paths is required", map[string]string{"field": "paths"})
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			return errors.ValidationError("paths must not contain blank entries", map[string]string{"field": "paths"})
		}
	}
	return nil
}

// DiffKind parses the kind query parameter, defaulting to unstaged.
func DiffKind(raw string) (shared.DiffKind, error) {
	if raw == "" {
		return shared.DiffUnstaged, nil
	}
	kind := shared.DiffKind(raw)
	if !kind.Valid() {
		return "", errors.ValidationError("kind must be staged or unstaged", map[string]string{"kind": raw})
	}
	return kind, nil
}
