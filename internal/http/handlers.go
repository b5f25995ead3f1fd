package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crowdfund/internal/core"
)

type projectResponse struct {
	ID                   core.ProjectID `json:"id"`
	Owner                core.Identity  `json:"owner"`
	AssetID              core.AssetID   `json:"asset_id"`
	Goal                 core.Amount    `json:"goal"`
	AmountRaised         core.Amount    `json:"amount_raised"`
	AmountRefunded       core.Amount    `json:"amount_refunded"`
	Deadline             time.Time      `json:"deadline"`
	CreatedAt            time.Time      `json:"created_at"`
	State                core.State     `json:"state"`
	GoalReached          bool           `json:"goal_reached"`
	Settled              bool           `json:"settled"`
	TimeRemainingSeconds int64          `json:"time_remaining_seconds"`
}

func newProjectResponse(p core.Project, now time.Time) projectResponse {
	return projectResponse{
		ID:                   p.ID,
		Owner:                p.Owner,
		AssetID:              p.AssetID,
		Goal:                 p.Goal,
		AmountRaised:         p.AmountRaised,
		AmountRefunded:       p.AmountRefunded,
		Deadline:             p.Deadline,
		CreatedAt:            p.CreatedAt,
		State:                p.State(now),
		GoalReached:          p.GoalReached(),
		Settled:              p.Settled,
		TimeRemainingSeconds: int64(p.TimeRemaining(now) / time.Second),
	}
}

type donationResponse struct {
	ProjectID core.ProjectID `json:"project_id"`
	Donor     core.Identity  `json:"donor"`
	Amount    core.Amount    `json:"amount"`
}

type withdrawalResponse struct {
	ProjectID core.ProjectID `json:"project_id"`
	Recipient core.Identity  `json:"recipient"`
	Amount    core.Amount    `json:"amount"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, KindNotReady, "storage unavailable").Write(w)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	np, err := req.NewProject()
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.ledger.CreateProject(r.Context(), np)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/projects/"+id.String()).
		Body(map[string]core.ProjectID{"id": id}).
		Write(w)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.ledger.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := s.ledger.Now()
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, newProjectResponse(p, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.ledger.Project(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectResponse(p, s.ledger.Now()))
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	donor, err := callerIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req DonateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.Donate(r.Context(), id, donor, core.Amount(req.Amount)); err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := s.ledger.DonationOf(r.Context(), id, donor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, donationResponse{ProjectID: id, Donor: donor, Amount: balance})
}

func (s *Server) handleListDonations(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	donations, err := s.ledger.ListDonations(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]donationResponse, 0, len(donations))
	for _, d := range donations {
		out = append(out, donationResponse{ProjectID: d.ProjectID, Donor: d.Donor, Amount: d.Amount})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDonation(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	donor := core.Identity(sanitizeInput(chi.URLParam(r, "donor")))
	amount, err := s.ledger.DonationOf(r.Context(), id, donor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donationResponse{ProjectID: id, Donor: donor, Amount: amount})
}

func (s *Server) handleWithdrawOwner(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := callerIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := s.ledger.WithdrawOwner(r.Context(), id, caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawalResponse{ProjectID: id, Recipient: caller, Amount: amount})
}

func (s *Server) handleWithdrawDonor(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	donor, err := callerIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := s.ledger.WithdrawUser(r.Context(), id, donor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawalResponse{ProjectID: id, Recipient: donor, Amount: amount})
}

// handleListEvents serves the in-process journal, optionally filtered with
// ?project_id=.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []core.Event{})
		return
	}
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		id, err := core.ParseProjectID(raw)
		if err != nil {
			writeError(w, r, badRequest("invalid project_id %q", raw))
			return
		}
		writeJSON(w, http.StatusOK, nonNil(s.journal.ForProject(id)))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.journal.Events()))
}

func (s *Server) handleProjectEvents(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ledger.Project(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	var events []core.Event
	if s.journal != nil {
		events = s.journal.ForProject(id)
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func nonNil(events []core.Event) []core.Event {
	if events == nil {
		return []core.Event{}
	}
	return events
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	owner := core.Identity(sanitizeInput(req.Owner))
	asset := core.AssetID(sanitizeInput(req.AssetID))
	if err := owner.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := asset.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.assets.Mint(r.Context(), owner, asset, core.Amount(req.Amount)); err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Minted development assets",
		"owner", owner, "asset_id", asset, "amount", req.Amount)
	s.writeBalance(w, r, owner, asset)
}

// handleApprove grants spender an allowance over the caller's balance.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	owner, err := callerIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ApproveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	spender := core.Identity(sanitizeInput(req.Spender))
	if spender == "" {
		spender = s.ledger.Custody()
	}
	asset := core.AssetID(sanitizeInput(req.AssetID))
	if err := asset.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.assets.Approve(r.Context(), owner, spender, asset, core.Amount(req.Amount)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    owner,
		"spender":  spender,
		"asset_id": asset,
		"amount":   req.Amount,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner := core.Identity(sanitizeInput(chi.URLParam(r, "owner")))
	asset := core.AssetID(sanitizeInput(chi.URLParam(r, "asset")))
	s.writeBalance(w, r, owner, asset)
}

type balanceResponse struct {
	Owner   core.Identity `json:"owner"`
	AssetID core.AssetID  `json:"asset_id"`
	Balance core.Amount   `json:"balance"`
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, owner core.Identity, asset core.AssetID) {
	balance, err := s.assets.BalanceOf(r.Context(), owner, asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Owner: owner, AssetID: asset, Balance: balance})
}
