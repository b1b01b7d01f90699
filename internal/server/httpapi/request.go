package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/otp"
)

const (
	maxBodyBytes      = 1 << 20
	minPasswordLength = 6
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, fmt.Sprintf(format, args...))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("request body is required")
		}
		return invalid("malformed JSON body")
	}
	return nil
}

// pathID reads a UUID path parameter. Malformed ids cannot name anything,
// so they are reported as not found.
func pathID(r *http.Request, name string) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return "", common.ErrorNotFound
	}
	return id.String(), nil
}

func checkEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("invalid email address")
	}
	return nil
}

func checkPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	if password != confirm {
		return invalid("passwords do not match")
	}
	return nil
}

func checkCode(code string) error {
	if !otp.ValidFormat(code) {
		return invalid("verification code must be %d digits", otp.CodeLength)
	}
	return nil
}
