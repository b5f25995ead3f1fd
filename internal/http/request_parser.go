// Package http exposes the ledger as a JSON API.
//
// This file holds request decoding: JSON bodies, the caller identity header
// and path parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"crowdfund/internal/core"
)

const (
	// IdentityHeader names the calling account. Authentication happens in
	// front of this service.
	IdentityHeader = "X-Identity"

	maxBodyBytes = 1 << 20
)

// requestError is a malformed request, reported before the ledger is
// involved.
type requestError struct {
	status int
	kind   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, kind: KindBadRequest, msg: fmt.Sprintf(format, args...)}
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Owner           string `json:"owner"`
	DurationSeconds int64  `json:"duration_seconds"`
	Goal            int64  `json:"goal"`
	AssetID         string `json:"asset_id"`
}

// NewProject converts the request into the ledger's input, rejecting
// durations that do not fit a time.Duration.
func (req CreateProjectRequest) NewProject() (core.NewProject, error) {
	if req.DurationSeconds < 0 || req.DurationSeconds > math.MaxInt64/int64(time.Second) {
		return core.NewProject{}, core.ErrInvalidDuration
	}
	return core.NewProject{
		Owner:    core.Identity(sanitizeInput(req.Owner)),
		Duration: time.Duration(req.DurationSeconds) * time.Second,
		Goal:     core.Amount(req.Goal),
		AssetID:  core.AssetID(sanitizeInput(req.AssetID)),
	}, nil
}

// DonateRequest is the body of POST /projects/{id}/donations.
type DonateRequest struct {
	Amount int64 `json:"amount"`
}

// MintRequest and ApproveRequest drive the development asset endpoints.
type MintRequest struct {
	Owner   string `json:"owner"`
	AssetID string `json:"asset_id"`
	Amount  int64  `json:"amount"`
}

type ApproveRequest struct {
	Spender string `json:"spender"`
	AssetID string `json:"asset_id"`
	Amount  int64  `json:"amount"`
}

// decodeJSON reads exactly one JSON value into dst. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return &requestError{status: http.StatusRequestEntityTooLarge, kind: KindBadRequest, msg: "request body too large"}
		default:
			return badRequest("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// callerIdentity returns the identity the request acts as.
func callerIdentity(r *http.Request) (core.Identity, error) {
	id := core.Identity(sanitizeInput(r.Header.Get(IdentityHeader)))
	if id == "" {
		return "", &requestError{status: http.StatusUnauthorized, kind: KindMissingIdentity, msg: IdentityHeader + " header is required"}
	}
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

func projectIDParam(r *http.Request) (core.ProjectID, error) {
	return core.ParseProjectID(chi.URLParam(r, "id"))
}

// sanitizeInput trims whitespace and drops control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
