package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sirupsen/logrus"

	"hospital-queue-backend/internal/bizday"
	appdb "hospital-queue-backend/internal/db"
	"hospital-queue-backend/internal/model"
	"hospital-queue-backend/internal/ordering"
	"hospital-queue-backend/internal/store"
)

var fixedNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

// capturedEvent is one sink emission recorded by the test sink.
type capturedEvent struct {
	Scope   string // "user" or "department"
	Target  string
	Event   string
	Payload any
}

// captureSink records every emission for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *captureSink) EmitToDepartment(_ context.Context, departmentID, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{Scope: "department", Target: departmentID, Event: event, Payload: payload})
}

func (s *captureSink) EmitToUser(_ context.Context, patientID, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{Scope: "user", Target: patientID, Event: event, Payload: payload})
}

func (s *captureSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// lastPositions returns the most recent position update per token id.
func (s *captureSink) lastPositions() map[string]PositionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PositionUpdate)
	for _, e := range s.events {
		if update, ok := e.Payload.(PositionUpdate); ok {
			out[update.TokenID] = update
		}
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection serializes access to the shared in-memory DB,
	// which keeps the concurrency tests free of sqlite lock errors.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, appdb.Migrate(db))
	return db
}

type testEnv struct {
	engine *Engine
	store  store.Store
	index  *ordering.Index
	sink   *captureSink
	db     *gorm.DB
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	db := newTestDB(t)
	s := store.NewGormStore(db)
	index := ordering.NewIndex(time.Minute)
	sink := &captureSink{}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	engine := NewEngine(s, index, sink, bizday.NewClock(0), cfg, logger)
	engine.SetNow(func() time.Time { return fixedNow })
	return &testEnv{engine: engine, store: s, index: index, sink: sink, db: db}
}

func (env *testEnv) seedDepartment(t *testing.T, id string, open bool, slotMinutes int) {
	t.Helper()
	require.NoError(t, env.db.Create(&model.Department{
		ID: id, Name: id, Code: strings.ToUpper(id), Open: open, SlotMinutes: slotMinutes,
	}).Error)
}

func (env *testEnv) seedDoctor(t *testing.T, id, departmentID string) {
	t.Helper()
	require.NoError(t, env.db.Create(&model.Doctor{
		ID: id, Name: id, DepartmentID: departmentID, Active: true,
	}).Error)
}

func (env *testEnv) seedPatient(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, env.db.Create(&model.Patient{ID: id, Name: id}).Error)
}

func (env *testEnv) createToken(t *testing.T, patientID, departmentID, priority, role string) model.Token {
	t.Helper()
	token, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID:         patientID,
		DepartmentID:      departmentID,
		RequestedPriority: priority,
		RequesterRole:     role,
		AppointmentAt:     fixedNow,
	})
	require.NoError(t, err)
	return token
}

func TestCreateTokenAssignsSequentialNumbers(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	for i := 1; i <= 3; i++ {
		env.seedPatient(t, fmt.Sprintf("p%d", i))
	}

	for i := 1; i <= 3; i++ {
		token := env.createToken(t, fmt.Sprintf("p%d", i), "cardio", model.PriorityNormal, RolePatient)
		assert.Equal(t, i, token.TicketNumber)
		assert.Equal(t, model.StatusWaiting, token.Status)
	}
}

func TestCreateTokenRejectsClosedDepartment(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", false, 0)
	env.seedPatient(t, "p1")

	_, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient, AppointmentAt: fixedNow,
	})
	assert.ErrorIs(t, err, ErrDepartmentClosed)

	// Unknown departments look closed as well.
	_, err = env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "nowhere", RequesterRole: RolePatient, AppointmentAt: fixedNow,
	})
	assert.ErrorIs(t, err, ErrDepartmentClosed)
}

func TestCreateTokenValidatesDayWindow(t *testing.T) {
	env := newTestEnv(t, Config{HorizonDays: 5})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedPatient(t, "p1")

	_, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient,
		AppointmentAt: fixedNow.Add(-24 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrPastDateRejected)

	_, err = env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient,
		AppointmentAt: fixedNow.Add(6 * 24 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrTooFarAhead)

	// The horizon boundary itself is allowed.
	_, err = env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient,
		AppointmentAt: fixedNow.Add(5 * 24 * time.Hour),
	})
	assert.NoError(t, err)
}

func TestCreateTokenRejectsDuplicateActive(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedPatient(t, "p1")

	env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)

	_, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient, AppointmentAt: fixedNow,
	})
	assert.ErrorIs(t, err, ErrDuplicateActiveToken)
}

func TestPriorityElevationRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedPatient(t, "p1")
	env.seedPatient(t, "p2")

	token := env.createToken(t, "p1", "cardio", model.PriorityEmergency, RolePatient)
	assert.Equal(t, model.PriorityNormal, token.PriorityClass)
	assert.Equal(t, 1, token.PriorityRank)

	token = env.createToken(t, "p2", "cardio", model.PriorityEmergency, RoleAdmin)
	assert.Equal(t, model.PriorityEmergency, token.PriorityClass)
	assert.Equal(t, 3, token.PriorityRank)
}

// drainQueue claims tokens one at a time, skipping each so the doctor is
// free again, and returns the claimed ids in order.
func drainQueue(t *testing.T, env *testEnv, departmentID, doctorID string) []string {
	t.Helper()
	var order []string
	for {
		token, err := env.engine.CallNext(context.Background(), departmentID, doctorID)
		if err != nil {
			assert.ErrorIs(t, err, ErrNoWaitingTokens)
			return order
		}
		order = append(order, token.ID)
		_, err = env.engine.Skip(context.Background(), token.ID)
		require.NoError(t, err)
	}
}

func TestCallNextRespectsPriorityThenArrival(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	for i := 1; i <= 4; i++ {
		env.seedPatient(t, fmt.Sprintf("p%d", i))
	}

	t1 := env.createToken(t, "p1", "cardio", model.PriorityNormal, RoleAdmin)
	t2 := env.createToken(t, "p2", "cardio", model.PriorityEmergency, RoleAdmin)
	t3 := env.createToken(t, "p3", "cardio", model.PriorityNormal, RoleAdmin)
	t4 := env.createToken(t, "p4", "cardio", model.PrioritySenior, RoleAdmin)

	order := drainQueue(t, env, "cardio", "dr-a")
	assert.Equal(t, []string{t2.ID, t4.ID, t1.ID, t3.ID}, order)
}

func TestCallNextFallbackMatchesIndexOrder(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	for i := 1; i <= 4; i++ {
		env.seedPatient(t, fmt.Sprintf("p%d", i))
	}

	t1 := env.createToken(t, "p1", "cardio", model.PriorityNormal, RoleAdmin)
	t2 := env.createToken(t, "p2", "cardio", model.PriorityEmergency, RoleAdmin)
	t3 := env.createToken(t, "p3", "cardio", model.PriorityNormal, RoleAdmin)
	t4 := env.createToken(t, "p4", "cardio", model.PrioritySenior, RoleAdmin)

	// Simulate an eviction/restart: the index is cold, every claim must
	// fall back to the durable store and return the same ordering.
	day := env.engine.clock.Start(fixedNow)
	env.index.Drop("cardio", day)

	token, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)
	assert.Equal(t, t2.ID, token.ID)

	// The fallback heals the index with the remaining waiting tokens.
	assert.Equal(t, 3, env.index.Len("cardio", day))

	_, err = env.engine.Skip(context.Background(), token.ID)
	require.NoError(t, err)

	order := drainQueue(t, env, "cardio", "dr-a")
	assert.Equal(t, []string{t4.ID, t1.ID, t3.ID}, order)
}

func TestCallNextOnEmptyQueue(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")

	_, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	assert.ErrorIs(t, err, ErrNoWaitingTokens)
}

func TestCallNextDoctorPreconditions(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDepartment(t, "ortho", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	env.seedPatient(t, "p1")
	env.seedPatient(t, "p2")
	env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)
	env.createToken(t, "p2", "cardio", model.PriorityNormal, RolePatient)

	_, err := env.engine.CallNext(context.Background(), "cardio", "dr-unknown")
	assert.ErrorIs(t, err, ErrServerUnavailable)

	_, err = env.engine.CallNext(context.Background(), "ortho", "dr-a")
	assert.ErrorIs(t, err, ErrNotAssignedToDepartment)

	require.NoError(t, env.db.Model(&model.Doctor{}).Where("id = ?", "dr-a").Update("on_break", true).Error)
	_, err = env.engine.CallNext(context.Background(), "cardio", "dr-a")
	assert.ErrorIs(t, err, ErrServerUnavailable)
	require.NoError(t, env.db.Model(&model.Doctor{}).Where("id = ?", "dr-a").Update("on_break", false).Error)

	// A doctor holding a called token may not claim another.
	_, err = env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)
	_, err = env.engine.CallNext(context.Background(), "cardio", "dr-a")
	assert.ErrorIs(t, err, ErrServerAlreadyBusy)
}

func TestConcurrentCallNextNeverDoubleClaims(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	const doctors = 4
	const tokens = 12
	for i := 0; i < doctors; i++ {
		env.seedDoctor(t, fmt.Sprintf("dr-%d", i), "cardio")
	}
	for i := 0; i < tokens; i++ {
		pid := fmt.Sprintf("p%d", i)
		env.seedPatient(t, pid)
		env.createToken(t, pid, "cardio", model.PriorityNormal, RolePatient)
	}

	var mu sync.Mutex
	claims := make(map[string][]string) // token id -> claiming doctors
	var wg sync.WaitGroup
	for i := 0; i < doctors; i++ {
		wg.Add(1)
		go func(doctorID string) {
			defer wg.Done()
			for {
				token, err := env.engine.CallNext(context.Background(), "cardio", doctorID)
				if err != nil {
					return
				}
				mu.Lock()
				claims[token.ID] = append(claims[token.ID], doctorID)
				mu.Unlock()
				if _, err := env.engine.Skip(context.Background(), token.ID); err != nil {
					return
				}
			}
		}(fmt.Sprintf("dr-%d", i))
	}
	wg.Wait()

	assert.Len(t, claims, tokens)
	for tokenID, claimers := range claims {
		assert.Lenf(t, claimers, 1, "token %s claimed by %v", tokenID, claimers)
	}
}

func TestConcurrentCreateAssignsContiguousNumbers(t *testing.T) {
	env := newTestEnv(t, Config{AllocationRetries: 50})
	env.seedDepartment(t, "cardio", true, 0)
	const n = 8
	for i := 0; i < n; i++ {
		env.seedPatient(t, fmt.Sprintf("p%d", i))
	}

	var wg sync.WaitGroup
	numbers := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(patientID string) {
			defer wg.Done()
			token, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
				PatientID: patientID, DepartmentID: "cardio",
				RequesterRole: RolePatient, AppointmentAt: fixedNow,
			})
			if err == nil {
				numbers <- token.TicketNumber
			}
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	count := 0
	for num := range numbers {
		assert.False(t, seen[num], "duplicate ticket number %d", num)
		seen[num] = true
		count++
	}
	assert.Equal(t, n, count)
	for i := 1; i <= count; i++ {
		assert.Truef(t, seen[i], "ticket number %d missing from contiguous run", i)
	}
}

// collidingStore makes every token insert lose the ticket-number race.
type collidingStore struct {
	store.Store
	attempts *int
}

func (c collidingStore) CreateToken(context.Context, *model.Token) error {
	*c.attempts++
	return store.ErrTicketNumberTaken
}

func TestCreateTokenAllocationExhaustion(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedPatient(t, "p1")

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	attempts := 0
	engine := NewEngine(collidingStore{Store: env.store, attempts: &attempts},
		env.index, env.sink, bizday.NewClock(0), Config{AllocationRetries: 2}, logger)
	engine.SetNow(func() time.Time { return fixedNow })

	_, err := engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient, AppointmentAt: fixedNow,
	})
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 2, attempts)
}

func TestStateMachineClosure(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	env.seedPatient(t, "p1")

	waiting := env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)

	// WAITING permits neither complete, skip, nor no-show.
	_, err := env.engine.Complete(context.Background(), waiting.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.engine.Skip(context.Background(), waiting.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.engine.NoShow(context.Background(), waiting.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := env.store.FindToken(context.Background(), waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, stored.Status)

	// A CALLED token may not be cancelled.
	called, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)
	_, err = env.engine.Cancel(context.Background(), called.ID, Requester{PatientID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Terminal states accept nothing.
	skipped, err := env.engine.Skip(context.Background(), called.ID)
	require.NoError(t, err)
	_, err = env.engine.Complete(context.Background(), skipped.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.engine.Skip(context.Background(), skipped.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err = env.store.FindToken(context.Background(), skipped.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, stored.Status)
}

func TestCancelIsIdempotentAndOwnerChecked(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedPatient(t, "p1")

	token := env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)

	_, err := env.engine.Cancel(context.Background(), token.ID, Requester{PatientID: "someone-else", Role: RolePatient})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	cancelled, err := env.engine.Cancel(context.Background(), token.ID, Requester{PatientID: "p1", Role: RolePatient})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	// For the owner a second cancel is a no-op returning the terminal state.
	again, err := env.engine.Cancel(context.Background(), token.ID, Requester{PatientID: "p1", Role: RolePatient})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, again.Status)

	// An admin may also re-cancel, but a stranger still hits the ownership
	// boundary rather than reading the token's state.
	_, err = env.engine.Cancel(context.Background(), token.ID, Requester{Role: RoleAdmin})
	require.NoError(t, err)
	_, err = env.engine.Cancel(context.Background(), token.ID, Requester{PatientID: "someone-else", Role: RolePatient})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCancelledTokenIsNeverHandedOut(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	env.seedPatient(t, "p1")
	env.seedPatient(t, "p2")

	first := env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)
	second := env.createToken(t, "p2", "cardio", model.PriorityNormal, RolePatient)

	_, err := env.engine.Cancel(context.Background(), first.ID, Requester{PatientID: "p1"})
	require.NoError(t, err)

	token, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)
	assert.Equal(t, second.ID, token.ID)
}

func TestCompleteRequiresVisit(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	env.seedPatient(t, "p1")
	env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)

	called, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)

	_, err = env.engine.Complete(context.Background(), called.ID)
	assert.ErrorIs(t, err, ErrVisitRequired)

	require.NoError(t, env.db.Create(&model.Visit{
		ID: uuid.NewString(), TokenID: called.ID, DepartmentID: "cardio", DoctorID: "dr-a",
	}).Error)

	completed, err := env.engine.Complete(context.Background(), called.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}

func TestPositionMonotonicityAfterRemoval(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	ids := make([]string, 0, 4)
	for i := 1; i <= 4; i++ {
		pid := fmt.Sprintf("p%d", i)
		env.seedPatient(t, pid)
		token := env.createToken(t, pid, "cardio", model.PriorityNormal, RolePatient)
		ids = append(ids, token.ID)
	}

	env.sink.reset()
	env.engine.RecalculatePositions(context.Background(), "cardio", fixedNow)
	before := env.sink.lastPositions()

	env.sink.reset()
	_, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)
	after := env.sink.lastPositions()

	for _, id := range ids {
		prev, hadBefore := before[id]
		next, hasAfter := after[id]
		if !hadBefore || !hasAfter {
			continue
		}
		assert.LessOrEqual(t, next.Position, prev.Position, "position of %s increased", id)
		assert.GreaterOrEqual(t, next.Position, prev.Position-1, "position of %s dropped more than one", id)
	}
}

func TestScenarioWaitWindows(t *testing.T) {
	env := newTestEnv(t, Config{SlotMinutes: 10, PreviewTTL: time.Nanosecond})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	for _, pid := range []string{"pa", "pb", "pc"} {
		env.seedPatient(t, pid)
	}

	next, err := env.engine.PreviewTicketNumber(context.Background(), "cardio", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	a := env.createToken(t, "pa", "cardio", model.PriorityNormal, RoleAdmin)
	b := env.createToken(t, "pb", "cardio", model.PriorityEmergency, RoleAdmin)
	c := env.createToken(t, "pc", "cardio", model.PriorityNormal, RoleAdmin)

	env.sink.reset()
	called, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)
	assert.Equal(t, b.ID, called.ID)

	positions := env.sink.lastPositions()
	require.Contains(t, positions, a.ID)
	require.Contains(t, positions, c.ID)

	assert.Equal(t, 0, positions[a.ID].Position)
	assert.Equal(t, 0, positions[a.ID].MinMinutes)
	assert.Equal(t, 0, positions[a.ID].MaxMinutes)

	assert.Equal(t, 1, positions[c.ID].Position)
	assert.Equal(t, 10, positions[c.ID].MinMinutes)
	assert.Equal(t, 14, positions[c.ID].MaxMinutes)

	_, err = env.engine.Skip(context.Background(), called.ID)
	require.NoError(t, err)

	order := drainQueue(t, env, "cardio", "dr-a")
	assert.Equal(t, []string{a.ID, c.ID}, order)

	next, err = env.engine.PreviewTicketNumber(context.Background(), "cardio", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestDayBoundarySplitsNumbering(t *testing.T) {
	env := newTestEnv(t, Config{HorizonDays: 5})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedPatient(t, "p1")
	env.seedPatient(t, "p2")

	// One minute before and after midnight following the pinned noon "now".
	beforeMidnight := time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC)
	afterMidnight := time.Date(2025, 6, 3, 0, 1, 0, 0, time.UTC)

	first, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p1", DepartmentID: "cardio", RequesterRole: RolePatient, AppointmentAt: beforeMidnight,
	})
	require.NoError(t, err)
	second, err := env.engine.CreateToken(context.Background(), CreateTokenInput{
		PatientID: "p2", DepartmentID: "cardio", RequesterRole: RolePatient, AppointmentAt: afterMidnight,
	})
	require.NoError(t, err)

	assert.False(t, first.BusinessDay.Equal(second.BusinessDay))
	assert.Equal(t, 1, first.TicketNumber)
	assert.Equal(t, 1, second.TicketNumber)
}

func TestPatientQueueStatus(t *testing.T) {
	env := newTestEnv(t, Config{SlotMinutes: 10})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	env.seedPatient(t, "p1")
	env.seedPatient(t, "p2")

	env.createToken(t, "p1", "cardio", model.PriorityNormal, RolePatient)
	second := env.createToken(t, "p2", "cardio", model.PriorityNormal, RolePatient)

	status, err := env.engine.PatientQueueStatus(context.Background(), "p2", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, second.ID, status.Token.ID)
	assert.Equal(t, 1, status.Position)
	assert.Equal(t, 10, status.MinMinutes)
	assert.Equal(t, 14, status.MaxMinutes)

	_, err = env.engine.PatientQueueStatus(context.Background(), "p-none", fixedNow)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestDashboardSummary(t *testing.T) {
	env := newTestEnv(t, Config{SlotMinutes: 10})
	env.seedDepartment(t, "cardio", true, 0)
	env.seedDoctor(t, "dr-a", "cardio")
	for i := 1; i <= 3; i++ {
		pid := fmt.Sprintf("p%d", i)
		env.seedPatient(t, pid)
		env.createToken(t, pid, "cardio", model.PriorityNormal, RolePatient)
	}
	_, err := env.engine.CallNext(context.Background(), "cardio", "dr-a")
	require.NoError(t, err)

	summary, err := env.engine.Dashboard(context.Background(), "cardio", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Counts[model.StatusWaiting])
	assert.Equal(t, int64(1), summary.Counts[model.StatusCalled])
	require.Len(t, summary.UpNext, 2)
	assert.Equal(t, 2, summary.UpNext[0].TicketNumber)
	assert.Equal(t, fixedNow, summary.UpNext[0].EstimatedCall)
	assert.Equal(t, fixedNow.Add(10*time.Minute), summary.UpNext[1].EstimatedCall)
}
