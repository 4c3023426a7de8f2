package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingRecipient  = errors.New("recipient wallet address is required")
	errMissingType       = errors.New("notification type is required")
)

// Record is one notification to deliver. DeterministicID is set for
// dedupable event types; when empty, a random id is issued.
type Record struct {
	DeterministicID        string
	RecipientWalletAddress string
	Type                   string
	Title                  string
	Message                string
	Payload                map[string]any
}

// DispatcherConfig describes the dependencies of the dispatcher.
type DispatcherConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Stream     *Stream
	Logger     *zap.Logger
}

// Dispatcher appends notifications to the store. Inserts are keyed on the
// notification id with conflict-ignore semantics, so re-dispatching a
// deterministic id is a silent no-op rather than an error.
type Dispatcher struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	stream     *Stream
	logger     *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		stream:     cfg.Stream,
		logger:     logger,
	}, nil
}

// Dispatch stores one notification.
func (d *Dispatcher) Dispatch(ctx context.Context, record Record) error {
	return d.DispatchBatch(ctx, []Record{record})
}

// DispatchBatch stores a batch of notifications in one insert, used by
// fan-out callers so one tier run does not issue a write per member.
func (d *Dispatcher) DispatchBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	now := d.clock().UTC()
	rows := make([]Notification, 0, len(records))
	for _, record := range records {
		row, err := d.buildRow(record, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rows).
		Error
	if err != nil {
		return fmt.Errorf("notifications: insert failed: %w", err)
	}

	if d.stream != nil {
		for _, row := range rows {
			d.stream.Publish(StreamMessage{
				RecipientWalletAddress: row.RecipientWalletAddress,
				NotificationID:         row.ID,
				Type:                   row.Type,
				CreatedAt:              row.CreatedAt,
			})
		}
	}

	return nil
}

func (d *Dispatcher) buildRow(record Record, now time.Time) (Notification, error) {
	recipient := strings.TrimSpace(record.RecipientWalletAddress)
	if recipient == "" {
		return Notification{}, errMissingRecipient
	}
	kind := strings.TrimSpace(record.Type)
	if kind == "" {
		return Notification{}, errMissingType
	}

	id := strings.TrimSpace(record.DeterministicID)
	if id == "" {
		generated, err := d.idProvider.NewID()
		if err != nil {
			return Notification{}, fmt.Errorf("notifications: id generation failed: %w", err)
		}
		id = generated
	}

	payload := datatypes.JSONMap{}
	for key, value := range record.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	return Notification{
		ID:                     id,
		RecipientWalletAddress: recipient,
		Type:                   kind,
		Title:                  record.Title,
		Message:                record.Message,
		Payload:                payload,
		CreatedAt:              now,
	}, nil
}
