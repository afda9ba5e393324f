// Package notify sends the customer confirmation and the admin notice for completed
// orders and bookings, retrying each recipient on its own.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/storefront/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrMissingCustomerInfo = errors.New("customer email and name are required")

const (
	TriggerOrder   = "order"
	TriggerBooking = "booking"

	AudienceCustomer = "customer"
	AudienceAdmin    = "admin"
)

// Sender is the From identity and the fixed admin recipient.
type Sender struct {
	Address      string
	Name         string
	AdminAddress string
}

// AttemptRecorder keeps an audit row per send attempt.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a models.NotificationAttempt) error
}

// Status is the outcome of one dispatch call.
type Status struct {
	DispatchID     string    `json:"dispatch_id"`
	UserEmailSent  bool      `json:"user_email_sent"`
	AdminEmailSent bool      `json:"admin_email_sent"`
	Timestamp      time.Time `json:"timestamp"`
	Errors         []string  `json:"errors,omitempty"`
}

func (s *Status) Delivered() bool {
	return s.UserEmailSent && s.AdminEmailSent
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	SendTimeout time.Duration
}

type Dispatcher struct {
	mailer   Mailer
	limiter  RateLimiter
	recorder AttemptRecorder
	sender   Sender
	opts     Options
	log      logrus.FieldLogger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a dispatcher. recorder may be nil.
func NewDispatcher(mailer Mailer, limiter RateLimiter, recorder AttemptRecorder, sender Sender, opts Options, log logrus.FieldLogger) *Dispatcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Dispatcher{
		mailer:   mailer,
		limiter:  limiter,
		recorder: recorder,
		sender:   sender,
		opts:     opts,
		log:      log,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) DispatchOrder(ctx context.Context, order *models.Order) (*Status, error) {
	if err := requireCustomer(order.Email, order.Name); err != nil {
		return nil, err
	}
	if err := d.limiter.Allow(strings.ToLower(order.Email)); err != nil {
		return nil, err
	}

	pair, err := RenderOrder(order, d.sender)
	if err != nil {
		return nil, err
	}

	return d.dispatch(ctx, TriggerOrder, order.OrderNumber, pair), nil
}

func (d *Dispatcher) DispatchBooking(ctx context.Context, booking *models.Booking) (*Status, error) {
	if err := requireCustomer(booking.Email, booking.Name); err != nil {
		return nil, err
	}
	if err := d.limiter.Allow(strings.ToLower(booking.Email)); err != nil {
		return nil, err
	}

	pair, err := RenderBooking(booking, d.sender)
	if err != nil {
		return nil, err
	}

	return d.dispatch(ctx, TriggerBooking, strconv.FormatInt(booking.ID, 10), pair), nil
}

func requireCustomer(email, name string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(name) == "" {
		return ErrMissingCustomerInfo
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, trigger, subjectID string, pair *Pair) *Status {
	status := &Status{DispatchID: uuid.NewString()}
	log := d.log.WithFields(logrus.Fields{
		"dispatch_id": status.DispatchID,
		"trigger":     trigger,
		"subject_id":  subjectID,
	})

	var mu sync.Mutex
	var g errgroup.Group

	recipients := []struct {
		audience string
		msg      Message
		sent     *bool
	}{
		{AudienceCustomer, pair.User, &status.UserEmailSent},
		{AudienceAdmin, pair.Admin, &status.AdminEmailSent},
	}

	for _, r := range recipients {
		g.Go(func() error {
			err := d.deliver(ctx, log.WithField("audience", r.audience), status.DispatchID, trigger, subjectID, r.audience, r.msg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", r.audience, err))
				return nil
			}
			*r.sent = true
			return nil
		})
	}
	_ = g.Wait()

	status.Timestamp = time.Now().UTC()

	entry := log.WithFields(logrus.Fields{
		"user_email_sent":  status.UserEmailSent,
		"admin_email_sent": status.AdminEmailSent,
	})
	if status.Delivered() {
		entry.Info("notification dispatch complete")
	} else {
		entry.WithField("errors", status.Errors).Error("notification dispatch incomplete")
	}

	return status
}

// deliver retries one recipient until it succeeds or attempts run out.
// A recipient that succeeded is never sent to again.
func (d *Dispatcher) deliver(ctx context.Context, log logrus.FieldLogger, dispatchID, trigger, subjectID, audience string, msg Message) error {
	var lastErr error

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		err := d.sendOnce(ctx, msg)

		entry := log.WithFields(logrus.Fields{
			"attempt": attempt,
			"to":      msg.To,
			"from":    msg.From,
			"subject": msg.Subject,
			"body":    msg.Text,
			"html":    msg.HTML,
		})
		if err != nil {
			entry.WithError(err).Warn("notification send failed")
		} else {
			entry.Info("notification sent")
		}

		d.record(ctx, log, models.NotificationAttempt{
			DispatchID:  dispatchID,
			TriggerKind: trigger,
			SubjectID:   subjectID,
			Recipient:   msg.To,
			Audience:    audience,
			Attempt:     attempt,
			Sent:        err == nil,
			Error:       errorString(err),
		})

		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < d.opts.MaxAttempts {
			if serr := d.sleep(ctx, time.Duration(attempt)*d.opts.BaseDelay); serr != nil {
				return fmt.Errorf("%w (gave up: %v)", lastErr, serr)
			}
		}
	}

	return fmt.Errorf("after %d attempts: %w", d.opts.MaxAttempts, lastErr)
}

func (d *Dispatcher) sendOnce(ctx context.Context, msg Message) error {
	if d.opts.SendTimeout <= 0 {
		return d.mailer.Send(ctx, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	return d.mailer.Send(ctx, msg)
}

func (d *Dispatcher) record(ctx context.Context, log logrus.FieldLogger, a models.NotificationAttempt) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordAttempt(ctx, a); err != nil {
		log.WithError(err).Warn("failed to record notification attempt")
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
