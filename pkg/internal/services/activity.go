package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const DefaultActivitySubject = "helpdesk.tickets.activity"

type ActivityRecorder interface {
	RecordActivity(ctx context.Context, activity models.TicketActivity) error
}

// DatabaseActivity appends activities to the ticket timeline table.
type DatabaseActivity struct {
	db *gorm.DB
}

func NewDatabaseActivity(db *gorm.DB) *DatabaseActivity {
	return &DatabaseActivity{db: db}
}

func (v *DatabaseActivity) RecordActivity(ctx context.Context, activity models.TicketActivity) error {
	return v.db.WithContext(ctx).Create(&activity).Error
}

// NatsActivity publishes activities for other helpdesk services.
type NatsActivity struct {
	conn    *nats.Conn
	subject string
}

func NewNatsActivity(url, subject string) (*NatsActivity, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("Hydrogen.Helpdesk"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from nats...")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info().Str("url", conn.ConnectedUrl()).Msg("Reconnected to nats.")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %v", err)
	}
	if len(subject) == 0 {
		subject = DefaultActivitySubject
	}
	return &NatsActivity{conn: conn, subject: subject}, nil
}

func (v *NatsActivity) RecordActivity(_ context.Context, activity models.TicketActivity) error {
	if v.conn == nil || v.conn.IsClosed() {
		return nats.ErrConnectionClosed
	}
	raw, err := jsoniter.Marshal(activity)
	if err != nil {
		return err
	}
	return v.conn.Publish(v.subject, raw)
}

func (v *NatsActivity) Close() {
	if v.conn != nil {
		_ = v.conn.Drain()
	}
}

// MultiActivity hands each activity to every recorder and joins the errors.
type MultiActivity []ActivityRecorder

func (v MultiActivity) RecordActivity(ctx context.Context, activity models.TicketActivity) error {
	var errs []error
	for _, recorder := range v {
		if err := recorder.RecordActivity(ctx, activity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
