package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"esimchain/core/events"
)

// Entry is one committed event as stored in the audit journal.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index;not null"`
	AssetID    string    `gorm:"index"`
	Attributes string    `gorm:"type:text;not null"`
	RecordedAt time.Time `gorm:"index;not null"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Entry) TableName() string { return "event_journal" }

// Decode returns the entry attributes.
func (e Entry) Decode() (map[string]string, error) {
	out := map[string]string{}
	if e.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(e.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Open connects to the journal database. Supported drivers are "sqlite" and
// "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Journal records committed events. Writes happen on the emitting goroutine
// after the ledger commit; failures are logged and do not affect the ledger.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// New constructs a journal on an already migrated database.
func New(db *gorm.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, nowFn: time.Now}
}

// Emit implements events.Emitter.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || j.db == nil || evt == nil {
		return
	}
	if err := j.Record(context.Background(), evt); err != nil {
		j.logger.Warn("journal: record event", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt.
func (j *Journal) Record(ctx context.Context, evt events.Event) error {
	payload := events.Unwrap(evt)
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return err
	}
	entry := Entry{
		ID:         uuid.New(),
		Type:       payload.Type,
		AssetID:    payload.Attributes["assetId"],
		Attributes: string(attrs),
		RecordedAt: j.nowFn().UTC(),
	}
	return j.db.WithContext(ctx).Create(&entry).Error
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Entry
	err := j.db.WithContext(ctx).Order("recorded_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ForAsset returns every entry referencing assetID in recording order.
func (j *Journal) ForAsset(ctx context.Context, assetID uint64) ([]Entry, error) {
	var out []Entry
	err := j.db.WithContext(ctx).
		Where("asset_id = ?", fmt.Sprintf("%d", assetID)).
		Order("recorded_at ASC").
		Find(&out).Error
	return out, err
}

var _ events.Emitter = (*Journal)(nil)
