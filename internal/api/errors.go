package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string // the envelope's "error" field, e.g. ERR_ALREADY_EXISTS
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// statusKind maps an HTTP status to an error kind. 401/403 stay Transport:
// Authentication is reserved for failed decryption.
func statusKind(status int, code string) xerrors.Kind {
	switch {
	case status == nethttp.StatusNotFound:
		return xerrors.KindNotFound
	case status == nethttp.StatusConflict, code == constants.APIErrAlreadyExists:
		return xerrors.KindConflict
	default:
		return xerrors.KindTransport
	}
}

// checkResponse returns a classified error for non-2xx responses. It reads
// (a bounded prefix of) the body but does not close it.
func checkResponse(op, path string, resp *nethttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{StatusCode: resp.StatusCode}

	var env models.APIResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err == nil && (env.Message != "" || env.Error != "") {
		se.Message = env.Message
		se.Code = env.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}

	return xerrors.Wrap(statusKind(se.StatusCode, se.Code), op, path, se)
}

// IsFileExistsError checks if an error indicates the target name is already taken.
//
// Usage:
//
//	file, err := engine.Upload(ctx, src, md)
//	if api.IsFileExistsError(err) {
//	    // retry with ForceWrite or pick another name
//	}
func IsFileExistsError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, xerrors.ErrConflict) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code == constants.APIErrAlreadyExists
}

// StatusCode extracts the HTTP status from err, or 0 if it did not come from a response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
