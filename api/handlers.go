package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/chain"
	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Feed is the read side of the change token chain. *chain.Chain satisfies it.
type Feed interface {
	Latest(ctx context.Context) (chain.Cursor, error)
	Since(ctx context.Context, cursor chain.Cursor) (*chain.Delta, error)
}

// Handlers serves the directory over HTTP. Business rules stay in the engine;
// handlers only decode, authorize, and translate errors.
type Handlers struct {
	engine  *engine.Engine
	members store.Reader
	feed    Feed
	logger  *slog.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(e *engine.Engine, members store.Reader, feed Feed, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine:  e,
		members: members,
		feed:    feed,
		logger:  logger,
	}
}

type memberResponse struct {
	ID       uuid.UUID `json:"id"`
	FamilyID uuid.UUID `json:"familyId"`
	Version  int64     `json:"version"`
	engine.Attributes
}

func toMemberResponse(m store.Member) memberResponse {
	return memberResponse{
		ID:         m.ID,
		FamilyID:   m.FamilyID,
		Version:    m.Version,
		Attributes: engine.AttributesOf(m),
	}
}

type familyResponse struct {
	ID          uuid.UUID   `json:"id"`
	AncestorID  uuid.UUID   `json:"ancestorId"`
	SpouseID    *uuid.UUID  `json:"spouseId,omitempty"`
	Descendants []uuid.UUID `json:"descendants"`
}

type directoryResponse struct {
	RootID   uuid.UUID        `json:"rootId"`
	Members  []memberResponse `json:"members"`
	Families []familyResponse `json:"families"`
}

type cursorResponse struct {
	Cursor string `json:"cursor"`
}

type deltaResponse struct {
	Changed []uuid.UUID `json:"changed"`
	Tokens  int         `json:"tokens"`
	Cursor  string      `json:"cursor"`
}

// Health reports liveness. It does not touch the store.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the caller's own member record.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}
	h.writeMember(w, r, caller.MemberID)
}

// GetMember returns one member by id.
func (h *Handlers) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	h.writeMember(w, r, id)
}

func (h *Handlers) writeMember(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	m, err := h.members.GetMember(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "member not found")
		return
	}
	if err != nil {
		h.fail(w, "members.get", err, "member", id)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(*m))
}

// ListDirectory returns a fresh snapshot of every member and family unit.
func (h *Handlers) ListDirectory(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "members.list", err)
		return
	}

	resp := directoryResponse{RootID: d.RootID}
	resp.Members = make([]memberResponse, 0, d.Len())
	for _, m := range d.Members() {
		resp.Members = append(resp.Members, toMemberResponse(m))
		if !m.IsNative() {
			continue
		}
		f, ok := d.Family(m.ID)
		if !ok {
			continue
		}
		fr := familyResponse{ID: f.ID, AncestorID: f.AncestorID, Descendants: f.DescendantIDs}
		if fr.Descendants == nil {
			fr.Descendants = []uuid.UUID{}
		}
		if f.HasSpouse() {
			spouse := f.SpouseID
			fr.SpouseID = &spouse
		}
		resp.Families = append(resp.Families, fr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSpouse adds a spouse to the family unit headed by the path member.
func (h *Handlers) CreateSpouse(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusCreated, func(id uuid.UUID, attrs engine.Attributes) (engine.Request, error) {
		return engine.NewCreateSpouse(id, attrs)
	})
}

// CreateDescendant adds a child to the path member's family unit.
func (h *Handlers) CreateDescendant(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusCreated, func(id uuid.UUID, attrs engine.Attributes) (engine.Request, error) {
		return engine.NewCreateDescendant(id, attrs)
	})
}

// UpdateMember replaces the path member's attributes.
func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, func(id uuid.UUID, attrs engine.Attributes) (engine.Request, error) {
		return engine.NewUpdateMember(id, attrs)
	})
}

// DeleteMember removes the path member once the caller is authorized for it.
func (h *Handlers) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}
	if err := authorize(r.Context(), h.members, h.engine.RootID(), caller, id); err != nil {
		h.fail(w, "members.delete", err, "member", id)
		return
	}

	req, err := engine.NewDeleteMember(id)
	if err != nil {
		h.fail(w, "members.delete", err, "member", id)
		return
	}
	if _, err := h.engine.Execute(r.Context(), req); err != nil {
		h.fail(w, "members.delete", err, "member", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate decodes attributes, authorizes the caller against the path member,
// and executes the request build returns.
func (h *Handlers) mutate(w http.ResponseWriter, r *http.Request, status int, build func(uuid.UUID, engine.Attributes) (engine.Request, error)) {
	id, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}

	var attrs engine.Attributes
	if err := decodeJSON(r, &attrs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}

	req, err := build(id, attrs)
	if err != nil {
		h.fail(w, "members.mutate", err, "member", id)
		return
	}
	if err := authorize(r.Context(), h.members, h.engine.RootID(), caller, id); err != nil {
		h.fail(w, req.Op(), err, "member", id)
		return
	}

	m, err := h.engine.Execute(r.Context(), req)
	if err != nil {
		h.fail(w, req.Op(), err, "member", id)
		return
	}
	writeJSON(w, status, toMemberResponse(*m))
}

// SyncStart returns a cursor at the newest change token. Clients take a full
// directory listing first and then poll SyncSince.
func (h *Handlers) SyncStart(w http.ResponseWriter, r *http.Request) {
	cur, err := h.feed.Latest(r.Context())
	if errors.Is(err, chain.ErrEmpty) {
		writeJSON(w, http.StatusOK, cursorResponse{})
		return
	}
	if err != nil {
		h.fail(w, "sync.start", err)
		return
	}
	writeJSON(w, http.StatusOK, cursorResponse{Cursor: cur.Encode()})
}

// SyncSince returns the members changed after the cursor and a cursor to
// resume from.
func (h *Handlers) SyncSince(w http.ResponseWriter, r *http.Request) {
	cur, err := chain.DecodeCursor(chi.URLParam(r, "cursor"))
	if err != nil {
		h.fail(w, "sync.since", err)
		return
	}

	d, err := h.feed.Since(r.Context(), cur)
	if err != nil {
		h.fail(w, "sync.since", err, "token", cur.ID)
		return
	}

	resp := deltaResponse{Changed: d.Members, Tokens: d.Tokens, Cursor: d.Cursor.Encode()}
	if resp.Changed == nil {
		resp.Changed = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail writes the response for err. Unexpected errors are logged with args.
func (h *Handlers) fail(w http.ResponseWriter, op string, err error, args ...any) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+": failed", append(args, "error", err)...)
	} else {
		h.logger.Debug(op+": rejected", append(args, "error", err)...)
	}
	writeError(w, status, code, message)
}

func memberIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil || id == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid member id")
		return uuid.Nil, false
	}
	return id, true
}
