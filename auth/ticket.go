// Package auth supplies the session ticket attached to every outgoing call
// and keeps it fresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/qbdriver/logger"
)

// TicketSource returns the ticket to attach to the next call. An empty
// ticket means the call goes out without one.
type TicketSource interface {
	Ticket() string
}

// Static is a TicketSource that never changes.
type Static string

// Ticket implements TicketSource.
func (s Static) Ticket() string { return string(s) }

// Authenticator exchanges credentials for a ticket valid for hours.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string, hours int) (string, error)
}

// Credentials identify the account a Renewer signs in as.
type Credentials struct {
	Username string
	Password string
	// Hours is the requested ticket lifetime.
	Hours int
}

// ErrNoTicket is returned by Start when authentication yields an empty ticket.
var ErrNoTicket = errors.New("authentication returned an empty ticket")

// Renewer holds the current ticket and replaces it on a fixed interval.
// Calls already in flight keep the ticket they read.
type Renewer struct {
	auth     Authenticator
	creds    Credentials
	interval time.Duration
	timeout  time.Duration
	ticket   atomic.Pointer[string]
	renewals atomic.Int64
	failures atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	logger   logger.Logger
}

// NewRenewer creates a renewer. It holds no ticket until Start or Renew
// succeeds.
func NewRenewer(a Authenticator, creds Credentials, interval time.Duration, log logger.Logger) *Renewer {
	if log == nil {
		log = logger.NewNoop()
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Renewer{
		auth:     a,
		creds:    creds,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
		logger:   log.WithFields(logger.String("component", "ticket_renewer")),
	}
}

// Ticket implements TicketSource.
func (r *Renewer) Ticket() string {
	if t := r.ticket.Load(); t != nil {
		return *t
	}
	return ""
}

// Renew authenticates once and swaps in the new ticket.
func (r *Renewer) Renew(ctx context.Context) error {
	t, err := r.auth.Authenticate(ctx, r.creds.Username, r.creds.Password, r.creds.Hours)
	if err != nil {
		r.failures.Add(1)
		return fmt.Errorf("renew ticket for %s: %w", r.creds.Username, err)
	}
	if t == "" {
		r.failures.Add(1)
		return ErrNoTicket
	}
	r.ticket.Store(&t)
	r.renewals.Add(1)
	return nil
}

// Start obtains the first ticket and then begins renewing in a background
// goroutine.
func (r *Renewer) Start(ctx context.Context) error {
	if err := r.Renew(ctx); err != nil {
		return err
	}
	r.wg.Add(1)
	go r.renewLoop()
	r.logger.Info("ticket renewer started",
		logger.String("username", r.creds.Username),
		logger.Duration("interval", r.interval))
	return nil
}

// Stop ends the renewal loop. It is safe to call more than once.
func (r *Renewer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
	r.logger.Info("ticket renewer stopped")
}

// Renewals returns the number of successful authentications.
func (r *Renewer) Renewals() int64 { return r.renewals.Load() }

// Failures returns the number of failed authentications.
func (r *Renewer) Failures() int64 { return r.failures.Load() }

func (r *Renewer) renewLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			err := r.Renew(ctx)
			cancel()
			if err != nil {
				// The previous ticket stays in place until it is replaced.
				r.logger.Warn("ticket renewal failed",
					logger.Error("error", err),
					logger.Int64("failures", r.failures.Load()))
				continue
			}
			r.logger.Debug("ticket renewed", logger.Int64("renewals", r.renewals.Load()))
		}
	}
}
