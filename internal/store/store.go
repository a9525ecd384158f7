package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"hospital-queue-backend/internal/model"
)

// Store defines the interface for all database operations the queue engine
// performs. Every state-changing token write is a single conditional UPDATE
// so that concurrent doctor actions can never produce a lost update.
type Store interface {
	DB() *gorm.DB

	CreateToken(ctx context.Context, token *model.Token) error
	FindToken(ctx context.Context, id string) (model.Token, error)
	MaxTicketNumber(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) (int, error)
	HasActiveToken(ctx context.Context, patientID string, dayStart, dayEnd time.Time) (bool, error)
	ActiveTokenForPatient(ctx context.Context, patientID string, dayStart, dayEnd time.Time) (model.Token, error)
	ListWaiting(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) ([]model.Token, error)

	// ClaimToken conditionally moves a specific WAITING token to CALLED.
	// Returns ErrStatusConflict if the token was claimed or cancelled in the
	// meantime.
	ClaimToken(ctx context.Context, tokenID, doctorID string, now time.Time) (model.Token, error)

	// ClaimNextWaiting atomically claims the highest-priority, lowest-number
	// WAITING token of the partition. Returns ErrNoWaitingTokens when the
	// partition has no claimable token.
	ClaimNextWaiting(ctx context.Context, departmentID string, dayStart, dayEnd time.Time, doctorID string, now time.Time) (model.Token, error)

	// TransitionToken conditionally moves a token from one status to another,
	// stamping the timestamp that belongs to the target status.
	TransitionToken(ctx context.Context, tokenID, from, to string, now time.Time) (model.Token, error)

	DoctorHasCalledToken(ctx context.Context, doctorID string) (bool, error)
	GetDepartment(ctx context.Context, id string) (model.Department, error)
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	VisitExists(ctx context.Context, tokenID, departmentID string) (bool, error)

	UpcomingTokens(ctx context.Context, patientID string, from time.Time) ([]model.Token, error)
	TokenHistory(ctx context.Context, patientID string, limit int) ([]model.Token, error)
	CountByStatus(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) (map[string]int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for the thin HTTP layer and tests.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// CreateToken persists a new token. A unique-index collision on
// (department, business day, ticket number) surfaces as ErrTicketNumberTaken
// so the caller can retry its read-increment-write allocation.
func (s *gormStore) CreateToken(ctx context.Context, token *model.Token) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrTicketNumberTaken
		}
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (s *gormStore) FindToken(ctx context.Context, id string) (model.Token, error) {
	var token model.Token
	err := s.db.WithContext(ctx).First(&token, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Token{}, ErrTokenNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("failed to find token %s: %w", id, err)
	}
	return token, nil
}

func (s *gormStore) MaxTicketNumber(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) (int, error) {
	var max int
	err := s.db.WithContext(ctx).
		Model(&model.Token{}).
		Select("COALESCE(MAX(ticket_number), 0)").
		Where("department_id = ? AND business_day >= ? AND business_day < ?", departmentID, dayStart, dayEnd).
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read max ticket number: %w", err)
	}
	return max, nil
}

func (s *gormStore) HasActiveToken(ctx context.Context, patientID string, dayStart, dayEnd time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Token{}).
		Where("patient_id = ? AND business_day >= ? AND business_day < ? AND status IN ?",
			patientID, dayStart, dayEnd, []string{model.StatusWaiting, model.StatusCalled}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active token: %w", err)
	}
	return count > 0, nil
}

func (s *gormStore) ActiveTokenForPatient(ctx context.Context, patientID string, dayStart, dayEnd time.Time) (model.Token, error) {
	var token model.Token
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND business_day >= ? AND business_day < ? AND status IN ?",
			patientID, dayStart, dayEnd, []string{model.StatusWaiting, model.StatusCalled}).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Token{}, ErrTokenNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("failed to find active token: %w", err)
	}
	return token, nil
}

// ListWaiting returns the partition's WAITING tokens in claim order:
// priority rank descending, ticket number ascending within a rank.
func (s *gormStore) ListWaiting(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) ([]model.Token, error) {
	var tokens []model.Token
	err := s.db.WithContext(ctx).
		Where("department_id = ? AND business_day >= ? AND business_day < ? AND status = ?",
			departmentID, dayStart, dayEnd, model.StatusWaiting).
		Order("priority_rank DESC, ticket_number ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting tokens: %w", err)
	}
	return tokens, nil
}

func (s *gormStore) ClaimToken(ctx context.Context, tokenID, doctorID string, now time.Time) (model.Token, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Token{}).
		Where("id = ? AND status = ?", tokenID, model.StatusWaiting).
		Updates(map[string]any{
			"status":             model.StatusCalled,
			"assigned_doctor_id": doctorID,
			"called_at":          now,
		})
	if res.Error != nil {
		return model.Token{}, fmt.Errorf("failed to claim token %s: %w", tokenID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the token does not exist or it left WAITING under us.
		if _, err := s.FindToken(ctx, tokenID); errors.Is(err, ErrTokenNotFound) {
			return model.Token{}, ErrTokenNotFound
		}
		return model.Token{}, ErrStatusConflict
	}
	return s.FindToken(ctx, tokenID)
}

func (s *gormStore) ClaimNextWaiting(ctx context.Context, departmentID string, dayStart, dayEnd time.Time, doctorID string, now time.Time) (model.Token, error) {
	// Candidate selection and the claim are separate statements, but the
	// claim is conditional on status, so a lost race just moves on to the
	// next candidate instead of double-assigning.
	for {
		var candidate model.Token
		err := s.db.WithContext(ctx).
			Where("department_id = ? AND business_day >= ? AND business_day < ? AND status = ?",
				departmentID, dayStart, dayEnd, model.StatusWaiting).
			Order("priority_rank DESC, ticket_number ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Token{}, ErrNoWaitingTokens
		}
		if err != nil {
			return model.Token{}, fmt.Errorf("failed to select claim candidate: %w", err)
		}

		claimed, err := s.ClaimToken(ctx, candidate.ID, doctorID, now)
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return model.Token{}, err
		}
		return claimed, nil
	}
}

func (s *gormStore) TransitionToken(ctx context.Context, tokenID, from, to string, now time.Time) (model.Token, error) {
	updates := map[string]any{"status": to}
	switch to {
	case model.StatusCompleted:
		updates["completed_at"] = now
	case model.StatusCancelled:
		updates["cancelled_at"] = now
	}

	res := s.db.WithContext(ctx).
		Model(&model.Token{}).
		Where("id = ? AND status = ?", tokenID, from).
		Updates(updates)
	if res.Error != nil {
		return model.Token{}, fmt.Errorf("failed to transition token %s: %w", tokenID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindToken(ctx, tokenID); errors.Is(err, ErrTokenNotFound) {
			return model.Token{}, ErrTokenNotFound
		}
		return model.Token{}, ErrStatusConflict
	}
	return s.FindToken(ctx, tokenID)
}

func (s *gormStore) DoctorHasCalledToken(ctx context.Context, doctorID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Token{}).
		Where("assigned_doctor_id = ? AND status = ?", doctorID, model.StatusCalled).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check doctor load: %w", err)
	}
	return count > 0, nil
}

func (s *gormStore) GetDepartment(ctx context.Context, id string) (model.Department, error) {
	var dept model.Department
	err := s.db.WithContext(ctx).First(&dept, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Department{}, ErrDepartmentNotFound
	}
	if err != nil {
		return model.Department{}, fmt.Errorf("failed to find department %s: %w", id, err)
	}
	return dept, nil
}

func (s *gormStore) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	var doctor model.Doctor
	err := s.db.WithContext(ctx).First(&doctor, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Doctor{}, ErrDoctorNotFound
	}
	if err != nil {
		return model.Doctor{}, fmt.Errorf("failed to find doctor %s: %w", id, err)
	}
	return doctor, nil
}

func (s *gormStore) VisitExists(ctx context.Context, tokenID, departmentID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Visit{}).
		Where("token_id = ? AND department_id = ?", tokenID, departmentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check visit record: %w", err)
	}
	return count > 0, nil
}

func (s *gormStore) UpcomingTokens(ctx context.Context, patientID string, from time.Time) ([]model.Token, error) {
	var tokens []model.Token
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND business_day >= ? AND status IN ?",
			patientID, from, []string{model.StatusWaiting, model.StatusCalled}).
		Order("business_day ASC, ticket_number ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming tokens: %w", err)
	}
	return tokens, nil
}

func (s *gormStore) TokenHistory(ctx context.Context, patientID string, limit int) ([]model.Token, error) {
	var tokens []model.Token
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND status IN ?",
			patientID, []string{model.StatusCompleted, model.StatusSkipped, model.StatusCancelled, model.StatusNoShow}).
		Order("business_day DESC, ticket_number DESC").
		Limit(limit).
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list token history: %w", err)
	}
	return tokens, nil
}

func (s *gormStore) CountByStatus(ctx context.Context, departmentID string, dayStart, dayEnd time.Time) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.Token{}).
		Select("status, COUNT(*) as total").
		Where("department_id = ? AND business_day >= ? AND business_day < ?", departmentID, dayStart, dayEnd).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tokens by status: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// isUniqueViolation matches the unique-constraint errors of both the
// production Postgres driver and the SQLite driver used in tests.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
