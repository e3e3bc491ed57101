package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrClientNotFound = errors.New("client not found")

const batchSize = 100

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) CreateClient(ctx context.Context, name string) (*Client, error) {
	c := &Client{
		Identifier: uuid.New(),
		Name:       name,
	}

	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("could not create client: %w", err)
	}

	return c, nil
}

func (s *Store) ListClients(ctx context.Context) ([]Client, error) {
	var clients []Client

	if err := s.db.WithContext(ctx).Order("id").Find(&clients).Error; err != nil {
		return nil, err
	}

	return clients, nil
}

func (s *Store) FindClient(ctx context.Context, identifier uuid.UUID) (*Client, error) {
	var c Client

	err := s.db.WithContext(ctx).First(&c, "identifier = ?", identifier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// CreateRun stores a run and its outcomes atomically. On success run.ID and the
// outcomes' IDs are set.
func (s *Store) CreateRun(ctx context.Context, run *CheckRun, outcomes []CheckOutcome) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return fmt.Errorf("could not create run: %w", err)
		}

		if len(outcomes) == 0 {
			return nil
		}

		for i := range outcomes {
			outcomes[i].RunID = run.ID
		}

		if err := tx.CreateInBatches(&outcomes, batchSize).Error; err != nil {
			return fmt.Errorf("could not create outcomes: %w", err)
		}

		return nil
	})
	if err != nil {
		run.ID = 0
		return err
	}

	run.Outcomes = outcomes

	return nil
}

func (s *Store) RunsByExternalID(ctx context.Context, externalID string) ([]CheckRun, error) {
	var runs []CheckRun

	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").
		Find(&runs, "external_id = ?", externalID).Error
	if err != nil {
		return nil, err
	}

	return runs, nil
}

type OutcomeCount struct {
	Name   string
	Status int
	Count  int64
}

// CountOutcomes groups outcomes by name and status. A non-nil from or to bounds
// created_at to [from, to).
func (s *Store) CountOutcomes(ctx context.Context, from, to *time.Time) ([]OutcomeCount, error) {
	q := s.db.WithContext(ctx).Model(&CheckOutcome{})

	if from != nil {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("created_at < ?", to.UTC())
	}

	var counts []OutcomeCount

	err := q.Select("name, status, COUNT(id) AS count").
		Group("name").
		Group("status").
		Order("name ASC").
		Order("status ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	return counts, nil
}

// SaveLocalRecords bulk inserts records in one transaction.
func (s *Store) SaveLocalRecords(ctx context.Context, records []LocalCheckRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&records, batchSize).Error
	})
}

func (s *Store) LocalRecords(ctx context.Context, limit int) ([]LocalCheckRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []LocalCheckRecord

	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
