package outbox

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus is the execution state of a transfer instruction.
type JobStatus string

const (
	// StatusStaged jobs belong to an operation whose ledger commit has not
	// been confirmed yet. The worker never claims them.
	StatusStaged  JobStatus = "staged"
	StatusPending JobStatus = "pending"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// Job is one transfer instruction produced by a committed lending operation.
// Jobs of one operation share a BatchID; Position orders every job ever
// enqueued.
type Job struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID `gorm:"type:uuid;index"`
	Position    int64     `gorm:"uniqueIndex;not null"`
	Sequence    int       `gorm:"not null"`
	OfferID     int       `gorm:"index"`
	Action      string    `gorm:"size:32;index"`
	Kind        string    `gorm:"size:16"`
	Contract    string    `gorm:"size:128"`
	FromAddress string    `gorm:"size:128"`
	ToAddress   string    `gorm:"size:128"`
	TokenID     string    `gorm:"size:256"`
	Amount      string    `gorm:"size:80"`
	Denom       string    `gorm:"size:32"`
	Status      JobStatus `gorm:"size:16;index"`
	Attempts    int       `gorm:"not null;default:0"`
	LastError   string    `gorm:"size:512"`
	AvailableAt time.Time `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name independent of gorm's pluralisation.
func (Job) TableName() string { return "lending_outbox_jobs" }

// AutoMigrate performs all schema migrations for the outbox.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Job{})
}
