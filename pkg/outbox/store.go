package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
)

const errorTextLimit = 1024

// Store reads and writes outbox_events and outbox_dlq.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) insert(tx *gorm.DB, row *models.OutboxEvent) error {
	return tx.Create(row).Error
}

// Claim returns up to limit unpublished rows, oldest first. On Postgres the rows
// stay locked until tx ends and concurrent relays skip them. Rows that already
// reached maxAttempts are not returned.
func (s *Store) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("claim needs a transaction")
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]any{"published_at": s.now(), "last_error": nil}).Error
}

// RecordFailure bumps the attempt counter and keeps the latest error.
func (s *Store) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    clip(cause),
		}).Error
}

// DeadLetter copies the row into outbox_dlq and stamps it published so no relay
// claims it again.
func (s *Store) DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error, attempts int) error {
	now := s.now()
	letter := models.OutboxDeadLetter{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		OrderID:       row.OrderID,
		Payload:       row.Payload,
		Reason:        reason,
		Message:       clip(cause),
		AttemptCount:  attempts,
		FailedAt:      now,
	}
	if err := tx.Create(&letter).Error; err != nil {
		return err
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", row.ID).
		Updates(map[string]any{
			"published_at":  now,
			"attempt_count": attempts,
			"last_error":    clip(cause),
		}).Error
}

// FindDeadLetter returns the dead letter for an event, or nil.
func (s *Store) FindDeadLetter(ctx context.Context, eventID uuid.UUID) (*models.OutboxDeadLetter, error) {
	var letter models.OutboxDeadLetter
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&letter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &letter, nil
}

// PurgePublished deletes rows published before cutoff. Unpublished rows are
// never touched however old they are.
func (s *Store) PurgePublished(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	res := tx.Where("published_at IS NOT NULL AND published_at < ?", cutoff).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func clip(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > errorTextLimit {
		cut := errorTextLimit
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &msg
}
