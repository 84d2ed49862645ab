package config

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dan-strohschein/qbdriver/auth"
	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/metrics"
	qbhttp "github.com/dan-strohschein/qbdriver/transport/http"
)

// Connection is a client wired to the HTTP transport.
type Connection struct {
	Client    *client.Client
	Transport *qbhttp.Transport
	// Renewer is nil when a fixed ticket is configured.
	Renewer *auth.Renewer
	// App is nil when app.dbid is unset.
	App *client.App
}

// renewerTickets reads from a renewer installed after the transport it
// signs in through has been built.
type renewerTickets struct {
	r atomic.Pointer[auth.Renewer]
}

func (t *renewerTickets) Ticket() string {
	if r := t.r.Load(); r != nil {
		return r.Ticket()
	}
	return ""
}

// Connect builds the transport and client described by c. With
// auth.username set it signs in first and keeps the ticket renewed until
// Close. m may be nil.
func (c *Config) Connect(ctx context.Context, m *metrics.Metrics) (*Connection, error) {
	log := c.Logger()

	var (
		tickets auth.TicketSource
		lazy    *renewerTickets
	)
	switch {
	case c.UsesRenewal():
		lazy = &renewerTickets{}
		tickets = lazy
	case c.Auth.Ticket != "":
		tickets = auth.Static(c.Auth.Ticket)
	}

	tr, err := qbhttp.New(c.HTTPOptions(tickets, log))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	conn := &Connection{Transport: tr}

	if lazy != nil {
		r := auth.NewRenewer(tr, c.Credentials(), c.Auth.Renew, log)
		if err := r.Start(ctx); err != nil {
			_ = tr.Close()
			return nil, err
		}
		lazy.r.Store(r)
		conn.Renewer = r
	}

	opts := c.ClientOptions(log)
	opts.Metrics = m
	conn.Client = client.NewClient(tr, &opts)
	if c.App.DBID != "" {
		conn.App = conn.Client.App(c.App.DBID, c.App.Token)
	}
	return conn, nil
}

// Close stops ticket renewal and releases the transport.
func (conn *Connection) Close() error {
	if conn.Renewer != nil {
		conn.Renewer.Stop()
	}
	return conn.Transport.Close()
}
