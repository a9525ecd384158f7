// Package queue implements the token queue engine: ticket creation, the
// atomic call-next claim, lifecycle transitions, and position broadcasting.
// The durable store is ground truth; the ordering index is an optimization
// whose absence never changes which token is handed out.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"hospital-queue-backend/internal/bizday"
	"hospital-queue-backend/internal/model"
	"hospital-queue-backend/internal/notification"
	"hospital-queue-backend/internal/ordering"
	"hospital-queue-backend/internal/store"
)

// Requester roles. Only administrators may elevate a token's priority;
// this is a security boundary, not a default.
const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// waitBuffer is the fixed conservative multiplier on the upper wait estimate.
const waitBuffer = 1.4

// Config tunes the engine.
type Config struct {
	// HorizonDays is how many days ahead a token may be booked.
	HorizonDays int
	// SlotMinutes is the default per-patient service duration.
	SlotMinutes int
	// AllocationRetries bounds the optimistic ticket-number retry loop.
	AllocationRetries int
	// ScoreBand separates priority ranks in the ordering score. Must exceed
	// any plausible daily ticket count.
	ScoreBand int
	// PreviewTTL caches expected-ticket-number lookups.
	PreviewTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.HorizonDays <= 0 {
		c.HorizonDays = 5
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = 10
	}
	if c.AllocationRetries <= 0 {
		c.AllocationRetries = 3
	}
	if c.ScoreBand <= 0 {
		c.ScoreBand = 100000
	}
	if c.PreviewTTL <= 0 {
		c.PreviewTTL = 30 * time.Second
	}
	return c
}

// Engine orchestrates all token operations.
type Engine struct {
	store   store.Store
	index   *ordering.Index
	sink    notification.Sink
	preview *cache.Cache
	logger  *logrus.Logger
	clock   bizday.Clock
	cfg     Config

	// now is injectable so tests can pin the business day.
	now func() time.Time
}

// NewEngine wires the engine from its collaborators.
func NewEngine(s store.Store, index *ordering.Index, sink notification.Sink, clock bizday.Clock, cfg Config, logger *logrus.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:   s,
		index:   index,
		sink:    sink,
		preview: cache.New(cfg.PreviewTTL, 2*cfg.PreviewTTL),
		logger:  logger,
		clock:   clock,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetNow overrides the engine clock. Tests only.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// CreateTokenInput is a booking request.
type CreateTokenInput struct {
	PatientID         string
	DepartmentID      string
	RequestedPriority string
	RequesterRole     string
	AppointmentAt     time.Time
}

// CreateToken validates the request, allocates the next ticket number with
// bounded optimistic retry, persists the token, and indexes it.
func (e *Engine) CreateToken(ctx context.Context, in CreateTokenInput) (model.Token, error) {
	dept, err := e.store.GetDepartment(ctx, in.DepartmentID)
	if errors.Is(err, store.ErrDepartmentNotFound) {
		return model.Token{}, ErrDepartmentClosed
	}
	if err != nil {
		return model.Token{}, err
	}
	if !dept.Open {
		return model.Token{}, ErrDepartmentClosed
	}

	now := e.now()
	dayStart, dayEnd := e.clock.Range(in.AppointmentAt)
	today := e.clock.Start(now)
	if dayStart.Before(today) {
		return model.Token{}, ErrPastDateRejected
	}
	if dayStart.Sub(today) > time.Duration(e.cfg.HorizonDays)*24*time.Hour {
		return model.Token{}, ErrTooFarAhead
	}

	active, err := e.store.HasActiveToken(ctx, in.PatientID, dayStart, dayEnd)
	if err != nil {
		return model.Token{}, err
	}
	if active {
		return model.Token{}, ErrDuplicateActiveToken
	}

	class := resolvePriority(in.RequestedPriority, in.RequesterRole)

	var token model.Token
	allocated := false
	for attempt := 0; attempt < e.cfg.AllocationRetries; attempt++ {
		max, err := e.store.MaxTicketNumber(ctx, in.DepartmentID, dayStart, dayEnd)
		if err != nil {
			return model.Token{}, err
		}

		token = model.Token{
			ID:            uuid.NewString(),
			TicketNumber:  max + 1,
			DepartmentID:  in.DepartmentID,
			PatientID:     in.PatientID,
			PriorityClass: class,
			PriorityRank:  model.PriorityRank(class),
			Status:        model.StatusWaiting,
			BusinessDay:   dayStart,
		}
		err = e.store.CreateToken(ctx, &token)
		if errors.Is(err, store.ErrTicketNumberTaken) {
			e.logger.WithFields(logrus.Fields{
				"department": in.DepartmentID,
				"number":     token.TicketNumber,
			}).Debug("ticket number race, retrying allocation")
			continue
		}
		if err != nil {
			return model.Token{}, err
		}
		allocated = true
		break
	}
	if !allocated {
		return model.Token{}, ErrAllocationFailed
	}

	e.index.Insert(in.DepartmentID, dayStart, token.ID,
		ordering.Score(e.cfg.ScoreBand, token.PriorityRank, token.TicketNumber),
		e.lineTTL(dayEnd))

	if dayStart.Equal(today) {
		e.sink.EmitToDepartment(ctx, in.DepartmentID, notification.EventTokenCreated, tokenPayload(token))
		e.RecalculatePositions(ctx, in.DepartmentID, dayStart)
	}
	return token, nil
}

// resolvePriority forces non-administrators down to NORMAL regardless of
// what they asked for.
func resolvePriority(requested, role string) string {
	if role != RoleAdmin {
		return model.PriorityNormal
	}
	switch requested {
	case model.PrioritySenior, model.PriorityEmergency:
		return requested
	default:
		return model.PriorityNormal
	}
}

// CallNext hands the requesting doctor the highest-priority waiting token of
// their department. The index pop is only a hint: the conditional claim in
// the store is what guarantees no two doctors get the same ticket.
func (e *Engine) CallNext(ctx context.Context, departmentID, doctorID string) (model.Token, error) {
	doctor, err := e.store.GetDoctor(ctx, doctorID)
	if errors.Is(err, store.ErrDoctorNotFound) {
		return model.Token{}, ErrServerUnavailable
	}
	if err != nil {
		return model.Token{}, err
	}
	if !doctor.Active || doctor.OnBreak {
		return model.Token{}, ErrServerUnavailable
	}
	if doctor.DepartmentID != departmentID {
		return model.Token{}, ErrNotAssignedToDepartment
	}

	busy, err := e.store.DoctorHasCalledToken(ctx, doctorID)
	if err != nil {
		return model.Token{}, err
	}
	if busy {
		return model.Token{}, ErrServerAlreadyBusy
	}

	dept, err := e.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return model.Token{}, err
	}
	if !dept.Open {
		return model.Token{}, ErrDepartmentClosed
	}

	now := e.now()
	dayStart, dayEnd := e.clock.Range(now)

	var claimed model.Token
	haveClaim := false
	for {
		candidateID, ok := e.index.PopMax(departmentID, dayStart)
		if !ok {
			break
		}
		claimed, err = e.store.ClaimToken(ctx, candidateID, doctorID, now)
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrTokenNotFound) {
			// Stale index entry: the token was cancelled or claimed through
			// the fallback path on another instance. Drop it and keep going.
			e.logger.WithField("token", candidateID).Debug("discarding stale index entry")
			continue
		}
		if err != nil {
			return model.Token{}, err
		}
		haveClaim = true
		break
	}

	if !haveClaim {
		// Index empty, expired, or cold after a restart: claim straight from
		// the store, then rebuild the line so the next call hits the index.
		claimed, err = e.store.ClaimNextWaiting(ctx, departmentID, dayStart, dayEnd, doctorID, now)
		if errors.Is(err, store.ErrNoWaitingTokens) {
			return model.Token{}, ErrNoWaitingTokens
		}
		if err != nil {
			return model.Token{}, err
		}
		if err := e.rebuildLine(ctx, departmentID, dayStart, dayEnd); err != nil {
			e.logger.WithError(err).Warn("failed to rebuild ordering line after fallback claim")
		}
	}

	e.sink.EmitToDepartment(ctx, departmentID, notification.EventTokenCalled, tokenPayload(claimed))
	e.sink.EmitToUser(ctx, claimed.PatientID, notification.EventTokenCalled, tokenPayload(claimed))
	e.RecalculatePositions(ctx, departmentID, dayStart)
	return claimed, nil
}

// Complete finishes a called token. A visit record for the exact
// (token, department) pair must already exist.
func (e *Engine) Complete(ctx context.Context, tokenID string) (model.Token, error) {
	token, err := e.findToken(ctx, tokenID)
	if err != nil {
		return model.Token{}, err
	}
	if !canTransition(token.Status, model.StatusCompleted) {
		return model.Token{}, ErrInvalidTransition
	}

	hasVisit, err := e.store.VisitExists(ctx, token.ID, token.DepartmentID)
	if err != nil {
		return model.Token{}, err
	}
	if !hasVisit {
		return model.Token{}, ErrVisitRequired
	}

	updated, err := e.transition(ctx, token, model.StatusCompleted)
	if err != nil {
		return model.Token{}, err
	}
	// Should already be gone since the token was CALLED, but a residual
	// entry would be handed to a doctor, so remove unconditionally.
	e.index.Remove(token.DepartmentID, token.BusinessDay, token.ID)
	e.RecalculatePositions(ctx, token.DepartmentID, token.BusinessDay)
	return updated, nil
}

// Skip marks a called token as skipped.
func (e *Engine) Skip(ctx context.Context, tokenID string) (model.Token, error) {
	token, err := e.findToken(ctx, tokenID)
	if err != nil {
		return model.Token{}, err
	}
	if !canTransition(token.Status, model.StatusSkipped) {
		return model.Token{}, ErrInvalidTransition
	}
	updated, err := e.transition(ctx, token, model.StatusSkipped)
	if err != nil {
		return model.Token{}, err
	}
	e.RecalculatePositions(ctx, token.DepartmentID, token.BusinessDay)
	return updated, nil
}

// NoShow marks a called token whose patient never appeared.
func (e *Engine) NoShow(ctx context.Context, tokenID string) (model.Token, error) {
	token, err := e.findToken(ctx, tokenID)
	if err != nil {
		return model.Token{}, err
	}
	if !canTransition(token.Status, model.StatusNoShow) {
		return model.Token{}, ErrInvalidTransition
	}
	return e.transition(ctx, token, model.StatusNoShow)
}

// Requester identifies who is asking for a cancellation.
type Requester struct {
	PatientID string
	Role      string
}

// Cancel withdraws a waiting token. Only the token's own patient or an
// administrator may cancel; the ownership check runs before the idempotency
// short-circuit so strangers cannot read token state off a cancelled id.
// Cancelling an already-cancelled token is a no-op for an authorized caller.
// No position broadcast: cancellations are low-priority to announce, but the
// index entry must still go, or a cancelled ticket could later be handed out.
func (e *Engine) Cancel(ctx context.Context, tokenID string, by Requester) (model.Token, error) {
	token, err := e.findToken(ctx, tokenID)
	if err != nil {
		return model.Token{}, err
	}
	if by.Role != RoleAdmin && by.PatientID != token.PatientID {
		return model.Token{}, ErrNotAuthorized
	}
	if token.Status == model.StatusCancelled {
		return token, nil
	}
	if !canTransition(token.Status, model.StatusCancelled) {
		return model.Token{}, ErrInvalidTransition
	}

	updated, err := e.transition(ctx, token, model.StatusCancelled)
	if err != nil {
		return model.Token{}, err
	}
	e.index.Remove(token.DepartmentID, token.BusinessDay, token.ID)
	return updated, nil
}

// PositionUpdate is what each waiting patient receives after a recompute.
type PositionUpdate struct {
	TokenID      string `json:"token_id"`
	TicketNumber int    `json:"ticket_number"`
	Position     int    `json:"position"`
	MinMinutes   int    `json:"min_minutes"`
	MaxMinutes   int    `json:"max_minutes"`
}

// RecalculatePositions recomputes every waiting patient's zero-based
// patients-ahead count and wait window and pushes them over the sink.
// Read-mostly and idempotent; safe to call redundantly.
func (e *Engine) RecalculatePositions(ctx context.Context, departmentID string, day time.Time) {
	dayStart, dayEnd := e.clock.Range(day)

	waiting, err := e.store.ListWaiting(ctx, departmentID, dayStart, dayEnd)
	if err != nil {
		e.logger.WithError(err).Error("failed to list waiting tokens for recompute")
		return
	}

	ordered := waiting
	if ids := e.index.Snapshot(departmentID, dayStart); len(ids) > 0 {
		ordered = orderBySnapshot(waiting, ids)
	} else if len(waiting) > 0 {
		// Opportunistic heal: the line was evicted or never built.
		e.rebuildFromTokens(departmentID, dayStart, dayEnd, waiting)
	}

	slot := e.slotMinutes(ctx, departmentID)
	for i, token := range ordered {
		min, max := waitWindow(i, slot)
		e.sink.EmitToUser(ctx, token.PatientID, notification.EventQueuePosition, PositionUpdate{
			TokenID:      token.ID,
			TicketNumber: token.TicketNumber,
			Position:     i,
			MinMinutes:   min,
			MaxMinutes:   max,
		})
	}
}

// orderBySnapshot arranges the store's waiting set in index order, keeping
// any token the index has not seen yet at its store-order position at the
// tail.
func orderBySnapshot(waiting []model.Token, ids []string) []model.Token {
	byID := make(map[string]model.Token, len(waiting))
	for _, t := range waiting {
		byID[t.ID] = t
	}
	ordered := make([]model.Token, 0, len(waiting))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
			seen[id] = true
		}
	}
	for _, t := range waiting {
		if !seen[t.ID] {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// waitWindow computes the estimated wait in minutes for position i.
func waitWindow(i, slotMinutes int) (int, int) {
	if i == 0 {
		return 0, 0
	}
	base := float64(i) * float64(slotMinutes)
	return int(math.Ceil(base)), int(math.Ceil(base * waitBuffer))
}

// PreviewTicketNumber returns the number the next token of the partition
// would get, without creating anything. Served from a short-lived advisory
// cache, always correct on miss.
func (e *Engine) PreviewTicketNumber(ctx context.Context, departmentID string, at time.Time) (int, error) {
	dayStart, dayEnd := e.clock.Range(at)
	key := fmt.Sprintf("%s:%d", departmentID, dayStart.Unix())

	if v, found := e.preview.Get(key); found {
		return v.(int), nil
	}

	max, err := e.store.MaxTicketNumber(ctx, departmentID, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}
	next := max + 1
	e.preview.Set(key, next, e.cfg.PreviewTTL)
	return next, nil
}

// QueueStatus is a patient's live view of their active token.
type QueueStatus struct {
	Token      model.Token `json:"token"`
	Position   int         `json:"position"`
	MinMinutes int         `json:"min_minutes"`
	MaxMinutes int         `json:"max_minutes"`
}

// PatientQueueStatus returns the position and wait window of the patient's
// active token for the business day containing at.
func (e *Engine) PatientQueueStatus(ctx context.Context, patientID string, at time.Time) (QueueStatus, error) {
	dayStart, dayEnd := e.clock.Range(at)
	token, err := e.store.ActiveTokenForPatient(ctx, patientID, dayStart, dayEnd)
	if errors.Is(err, store.ErrTokenNotFound) {
		return QueueStatus{}, ErrTokenNotFound
	}
	if err != nil {
		return QueueStatus{}, err
	}

	if token.Status == model.StatusCalled {
		return QueueStatus{Token: token}, nil
	}

	position, ok := e.index.Rank(token.DepartmentID, dayStart, token.ID)
	if !ok {
		waiting, err := e.store.ListWaiting(ctx, token.DepartmentID, dayStart, dayEnd)
		if err != nil {
			return QueueStatus{}, err
		}
		e.rebuildFromTokens(token.DepartmentID, dayStart, dayEnd, waiting)
		position = len(waiting)
		for i, t := range waiting {
			if t.ID == token.ID {
				position = i
				break
			}
		}
	}

	min, max := waitWindow(position, e.slotMinutes(ctx, token.DepartmentID))
	return QueueStatus{Token: token, Position: position, MinMinutes: min, MaxMinutes: max}, nil
}

// UpcomingTokens lists a patient's active tokens from today onward.
func (e *Engine) UpcomingTokens(ctx context.Context, patientID string) ([]model.Token, error) {
	return e.store.UpcomingTokens(ctx, patientID, e.clock.Start(e.now()))
}

// TokenHistory lists a patient's terminally-stated tokens, newest first.
func (e *Engine) TokenHistory(ctx context.Context, patientID string, limit int) ([]model.Token, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.TokenHistory(ctx, patientID, limit)
}

// UpNext is one dashboard row: a waiting ticket and its estimated call time.
type UpNext struct {
	TicketNumber  int       `json:"ticket_number"`
	PriorityClass string    `json:"priority_class"`
	EstimatedCall time.Time `json:"estimated_call"`
}

// DashboardSummary is the per-department overview.
type DashboardSummary struct {
	DepartmentID string           `json:"department_id"`
	Counts       map[string]int64 `json:"counts"`
	UpNext       []UpNext         `json:"up_next"`
}

// Dashboard returns today's counts and the next few waiting tickets.
func (e *Engine) Dashboard(ctx context.Context, departmentID string, topN int) (DashboardSummary, error) {
	if topN <= 0 {
		topN = 5
	}
	now := e.now()
	dayStart, dayEnd := e.clock.Range(now)

	counts, err := e.store.CountByStatus(ctx, departmentID, dayStart, dayEnd)
	if err != nil {
		return DashboardSummary{}, err
	}
	waiting, err := e.store.ListWaiting(ctx, departmentID, dayStart, dayEnd)
	if err != nil {
		return DashboardSummary{}, err
	}

	slot := e.slotMinutes(ctx, departmentID)
	if len(waiting) < topN {
		topN = len(waiting)
	}
	upNext := make([]UpNext, 0, topN)
	for i := 0; i < topN; i++ {
		min, _ := waitWindow(i, slot)
		upNext = append(upNext, UpNext{
			TicketNumber:  waiting[i].TicketNumber,
			PriorityClass: waiting[i].PriorityClass,
			EstimatedCall: now.Add(time.Duration(min) * time.Minute),
		})
	}
	return DashboardSummary{DepartmentID: departmentID, Counts: counts, UpNext: upNext}, nil
}

// --- internals ---

func (e *Engine) findToken(ctx context.Context, id string) (model.Token, error) {
	token, err := e.store.FindToken(ctx, id)
	if errors.Is(err, store.ErrTokenNotFound) {
		return model.Token{}, ErrTokenNotFound
	}
	return token, err
}

// transition applies a pre-validated lifecycle edge as a conditional update.
// A concurrent change surfaces as InvalidTransition since the edge no longer
// holds.
func (e *Engine) transition(ctx context.Context, token model.Token, to string) (model.Token, error) {
	updated, err := e.store.TransitionToken(ctx, token.ID, token.Status, to, e.now())
	if errors.Is(err, store.ErrStatusConflict) {
		return model.Token{}, ErrInvalidTransition
	}
	if errors.Is(err, store.ErrTokenNotFound) {
		return model.Token{}, ErrTokenNotFound
	}
	return updated, err
}

func (e *Engine) rebuildLine(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) error {
	waiting, err := e.store.ListWaiting(ctx, departmentID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	e.rebuildFromTokens(departmentID, dayStart, dayEnd, waiting)
	return nil
}

func (e *Engine) rebuildFromTokens(departmentID string, dayStart, dayEnd time.Time, waiting []model.Token) {
	entries := make([]ordering.Entry, len(waiting))
	for i, t := range waiting {
		entries[i] = ordering.Entry{
			TokenID: t.ID,
			Score:   ordering.Score(e.cfg.ScoreBand, t.PriorityRank, t.TicketNumber),
		}
	}
	e.index.RebuildFrom(departmentID, dayStart, entries, e.lineTTL(dayEnd))
}

// lineTTL bounds an index line's lifetime to the end of its business day.
func (e *Engine) lineTTL(dayEnd time.Time) time.Duration {
	ttl := dayEnd.Sub(e.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}

// slotMinutes resolves the per-department service duration, falling back to
// the configured default.
func (e *Engine) slotMinutes(ctx context.Context, departmentID string) int {
	dept, err := e.store.GetDepartment(ctx, departmentID)
	if err == nil && dept.SlotMinutes > 0 {
		return dept.SlotMinutes
	}
	return e.cfg.SlotMinutes
}

func tokenPayload(t model.Token) map[string]any {
	return map[string]any{
		"token_id":      t.ID,
		"ticket_number": t.TicketNumber,
		"department_id": t.DepartmentID,
		"status":        t.Status,
	}
}
