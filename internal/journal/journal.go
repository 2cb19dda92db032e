package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/aiorch/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is one row of the agent_results table.
type Entry struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID    string    `gorm:"size:64;not null;index:idx_agent_results_request_id" json:"request_id"`
	AgentType    string    `gorm:"size:64;not null;index:idx_agent_results_agent_type" json:"agent_type"`
	Pipeline     string    `gorm:"size:64;not null;default:''" json:"pipeline,omitempty"`
	Status       string    `gorm:"size:16;not null;index:idx_agent_results_status_kind,priority:1" json:"status"`
	ErrorKind    string    `gorm:"size:32;not null;default:'';index:idx_agent_results_status_kind,priority:2" json:"error_kind,omitempty"`
	ErrorCode    string    `gorm:"size:64;not null;default:''" json:"error_code,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	Attempts     int       `gorm:"not null;default:0" json:"attempts"`
	LatencyMs    int64     `gorm:"not null;default:0" json:"latency_ms"`
	Cached       bool      `gorm:"not null;default:false" json:"cached"`
	CreatedAt    time.Time `gorm:"not null;index:idx_agent_results_created_at" json:"created_at"`
}

// TableName implements gorm's tabler.
func (Entry) TableName() string { return "agent_results" }

// QueryRecorder observes journal query latency. internal/metrics.Collector implements it.
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// GormJournal appends terminal agent results to a relational table.
type GormJournal struct {
	db       *gorm.DB
	recorder QueryRecorder
	logger   *zap.Logger
}

// New creates a journal on db. recorder may be nil.
func New(db *gorm.DB, recorder QueryRecorder, logger *zap.Logger) (*GormJournal, error) {
	if db == nil {
		return nil, errors.New("journal: db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormJournal{
		db:       db,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "journal")),
	}, nil
}

// AutoMigrate creates or updates the table. Used for SQLite, whose schema is not
// managed by the SQL migrations.
func (j *GormJournal) AutoMigrate(ctx context.Context) error {
	if err := j.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("journal: auto migrate: %w", err)
	}
	return nil
}

// Record implements orchestrator.Journal.
func (j *GormJournal) Record(ctx context.Context, res types.AgentResult) error {
	entry := FromResult(res)
	if name, ok := types.PipelineFrom(ctx); ok {
		entry.Pipeline = name
	}

	start := time.Now()
	err := j.db.WithContext(ctx).Create(&entry).Error
	j.observe("insert", start)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", res.RequestID, err)
	}
	return nil
}

// ByRequest returns the entries written for one request id, oldest first.
func (j *GormJournal) ByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	var entries []Entry
	start := time.Now()
	err := j.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("id ASC").
		Find(&entries).Error
	j.observe("select", start)
	if err != nil {
		return nil, fmt.Errorf("journal: query %s: %w", requestID, err)
	}
	return entries, nil
}

// Recent page sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter narrows Recent.
type Filter struct {
	AgentType string
	Status    types.ResultStatus
	Limit     int
}

// Recent returns the newest entries first.
func (j *GormJournal) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	q := j.db.WithContext(ctx).Model(&Entry{})
	if f.AgentType != "" {
		q = q.Where("agent_type = ?", f.AgentType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var entries []Entry
	start := time.Now()
	err := q.Order("id DESC").Limit(limit).Find(&entries).Error
	j.observe("select", start)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return entries, nil
}

func (j *GormJournal) observe(op string, start time.Time) {
	if j.recorder != nil {
		j.recorder.RecordDBQuery(j.db.Dialector.Name(), op, time.Since(start))
	}
}

// FromResult maps an agent result onto a row.
func FromResult(res types.AgentResult) Entry {
	e := Entry{
		RequestID: res.RequestID,
		AgentType: res.AgentType,
		Status:    string(res.Status),
		Attempts:  res.Metrics.AttemptCount,
		LatencyMs: res.Metrics.TotalLatency.Milliseconds(),
		Cached:    res.Cached,
		CreatedAt: time.Now().UTC(),
	}
	if res.Error != nil {
		e.ErrorKind = string(res.Error.Kind)
		e.ErrorCode = string(res.Error.Code)
		e.ErrorMessage = res.Error.Message
	}
	return e
}
