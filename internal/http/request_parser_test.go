package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crowdfund/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{"valid body", `{"amount": 40}`, false, 0},
		{"empty body", ``, true, http.StatusBadRequest},
		{"malformed", `{"amount": }`, true, http.StatusBadRequest},
		{"unknown field", `{"amount": 1, "tip": 2}`, true, http.StatusBadRequest},
		{"trailing value", `{"amount": 1}{"amount": 2}`, true, http.StatusBadRequest},
		{"too large", `{"amount": 1, "x": "` + strings.Repeat("a", maxBodyBytes) + `"}`, true, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst DonateRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if dst.Amount != 40 {
					t.Errorf("Amount = %d, want 40", dst.Amount)
				}
				return
			}
			var reqErr *requestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected *requestError, got %T", err)
			}
			if reqErr.status != tt.wantStatus {
				t.Errorf("status = %d, want %d", reqErr.status, tt.wantStatus)
			}
		})
	}
}

func TestCallerIdentity(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    core.Identity
		wantErr bool
	}{
		{"plain", "bob", "bob", false},
		{"trimmed", "  bob \t", "bob", false},
		{"control characters dropped", "bo\x00b", "bob", false},
		{"missing", "", "", true},
		{"only whitespace", "   ", "", true},
		{"too long", strings.Repeat("x", 129), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(IdentityHeader, tt.header)
			}
			got, err := callerIdentity(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("callerIdentity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("callerIdentity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateProjectRequest_NewProject(t *testing.T) {
	req := CreateProjectRequest{Owner: " alice ", DurationSeconds: 600, Goal: 1000, AssetID: "TKN"}
	np, err := req.NewProject()
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if np.Owner != "alice" || np.Duration != 10*time.Minute || np.Goal != 1000 || np.AssetID != "TKN" {
		t.Errorf("NewProject() = %+v", np)
	}

	for _, secs := range []int64{-1, 1 << 62} {
		if _, err := (CreateProjectRequest{DurationSeconds: secs}).NewProject(); !errors.Is(err, core.ErrInvalidDuration) {
			t.Errorf("duration %d: error = %v, want ErrInvalidDuration", secs, err)
		}
	}
}
