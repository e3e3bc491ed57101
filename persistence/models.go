package persistence

import (
	"time"

	"github.com/google/uuid"
)

type Client struct {
	ID         uint      `gorm:"primaryKey"`
	Identifier uuid.UUID `gorm:"type:varchar(36);uniqueIndex;not null"`
	Name       string    `gorm:"size:50;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CheckRun struct {
	ID         uint           `gorm:"primaryKey"`
	ExternalID string         `gorm:"size:256;index;not null"`
	Timestamp  time.Time      `gorm:"index;not null"`
	Source     string         `gorm:"size:256;not null"`
	ClientID   uint           `gorm:"index;not null"`
	Client     Client         `gorm:"constraint:OnDelete:CASCADE"`
	Outcomes   []CheckOutcome `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CheckOutcome struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:50;index;not null"`
	Status    int       `gorm:"not null"`
	Message   string    `gorm:"type:text;not null"`
	RunID     uint      `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// LocalCheckRecord is the flat history a monitor keeps of its own results.
type LocalCheckRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:50;index;not null"`
	Status    int    `gorm:"not null"`
	Message   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
