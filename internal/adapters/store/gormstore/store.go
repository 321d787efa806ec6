// Package gormstore is the MySQL message store.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type User struct {
	ID         string `gorm:"primaryKey;size:64"`
	FullName   string `gorm:"size:120;not null"`
	Email      string `gorm:"size:190"`
	ProfilePic string `gorm:"size:512"`
}

type Message struct {
	ID                 string    `gorm:"primaryKey;size:64"`
	SenderID           string    `gorm:"size:64;not null;index:idx_pair,priority:1"`
	ReceiverID         string    `gorm:"size:64;not null;index:idx_pair,priority:2"`
	Text               *string   `gorm:"type:text"`
	Image              *string   `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"index:idx_pair,priority:3;not null"`
	DeletedForEveryone bool      `gorm:"not null;default:false"`

	Deletions []MessageDeletion `gorm:"foreignKey:MessageID"`
}

type MessageDeletion struct {
	MessageID string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64"`
}

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return New(db)
}

// New migrates the schema on an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &Message{}, &MessageDeletion{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	log.Info().Str("module", "store.gorm").Str("dialect", db.Dialector.Name()).Msg("store ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Save(ctx context.Context, m *domain.Message) error {
	if err := s.db.WithContext(ctx).Create(toRow(m)).Error; err != nil {
		return fmt.Errorf("gormstore: save message: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var row Message
	err := s.db.WithContext(ctx).Preload("Deletions").Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: find message: %w", err)
	}
	m := fromRow(row)
	return &m, nil
}

func (s *Store) UpdateDeletionMarkers(ctx context.Context, id domain.MessageID, d domain.DeletionMarkers) (*domain.Message, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Message{}).Where("id = ?", string(id)).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		if d.HideFor != "" {
			del := MessageDeletion{MessageID: string(id), UserID: string(d.HideFor)}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&del).Error; err != nil {
				return err
			}
		}
		if d.ForEveryone {
			if err := tx.Model(&Message{}).Where("id = ?", string(id)).Update("deleted_for_everyone", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: update markers: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *Store) ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	var rows []Message
	err := s.db.WithContext(ctx).Preload("Deletions").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", string(a), string(b), string(b), string(a)).
		Order("created_at asc").Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: list conversation: %w", err)
	}
	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func (s *Store) ListUsersExcept(ctx context.Context, self domain.UserID) ([]domain.User, error) {
	var rows []User
	if err := s.db.WithContext(ctx).Where("id <> ?", string(self)).Order("full_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: list users: %w", err)
	}
	out := make([]domain.User, 0, len(rows))
	for _, u := range rows {
		out = append(out, domain.User{ID: domain.UserID(u.ID), FullName: u.FullName, Email: u.Email, ProfilePic: u.ProfilePic})
	}
	return out, nil
}

func toRow(m *domain.Message) *Message {
	row := &Message{
		ID:                 string(m.ID),
		SenderID:           string(m.SenderID),
		ReceiverID:         string(m.ReceiverID),
		Text:               m.Text,
		Image:              m.Image,
		CreatedAt:          m.CreatedAt,
		DeletedForEveryone: m.DeletedForEveryone,
	}
	for _, uid := range m.DeletedFor {
		row.Deletions = append(row.Deletions, MessageDeletion{MessageID: row.ID, UserID: string(uid)})
	}
	return row
}

func fromRow(r Message) domain.Message {
	m := domain.Message{
		ID:                 domain.MessageID(r.ID),
		SenderID:           domain.UserID(r.SenderID),
		ReceiverID:         domain.UserID(r.ReceiverID),
		Text:               r.Text,
		Image:              r.Image,
		CreatedAt:          r.CreatedAt.UTC(),
		DeletedFor:         make([]domain.UserID, 0, len(r.Deletions)),
		DeletedForEveryone: r.DeletedForEveryone,
	}
	for _, d := range r.Deletions {
		m.DeletedFor = append(m.DeletedFor, domain.UserID(d.UserID))
	}
	return m
}
