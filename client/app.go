package client

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/protocol"
)

// AliasPrefix marks a table reference as an alias to be resolved through
// the application schema rather than a dbid.
const AliasPrefix = "_dbid_"

// IsAlias reports whether ref is a table alias.
func IsAlias(ref string) bool {
	return strings.HasPrefix(ref, AliasPrefix)
}

// App is an application: a set of tables sharing an app token and a
// schema that maps aliases to dbids.
type App struct {
	client  *Client
	dbid    string
	token   string
	aliases *lru.Cache[string, string]
	// resolveMu serializes schema lookups so concurrent first uses of an
	// alias share one call.
	resolveMu sync.Mutex
	logger    logger.Logger
}

// DBID returns the application dbid.
func (a *App) DBID() string {
	return a.dbid
}

// Table returns a table of this app. ref is a dbid or an alias; an alias
// is resolved on the table's first call.
func (a *App) Table(ref string, reg *fields.Registry) *Table {
	return newTable(a.client, a, ref, reg)
}

// Resolve returns the dbid for ref. A ref that is not an alias is returned
// unchanged without a call.
func (a *App) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsAlias(ref) {
		return ref, nil
	}
	if dbid, ok := a.aliases.Get(ref); ok {
		return dbid, nil
	}

	a.resolveMu.Lock()
	defer a.resolveMu.Unlock()

	// Another caller may have resolved it while we waited.
	if dbid, ok := a.aliases.Get(ref); ok {
		return dbid, nil
	}

	resp, err := a.client.call(ctx, protocol.ActionGetSchema, &protocol.Request{AppToken: a.token}, a.dbid)
	if err != nil {
		return "", err
	}
	if resp.Table == nil {
		return "", protocol.NewProtocolError("E_MISSING_SCHEMA", "schema response has no table element", nil).
			WithDetail("app_dbid", a.dbid)
	}

	var found string
	for _, ct := range resp.Table.ChildTables {
		a.aliases.Add(ct.Name, ct.DBID)
		if ct.Name == ref {
			found = ct.DBID
		}
	}
	if found == "" {
		return "", NewUnknownTableError(ref, a.dbid)
	}

	a.logger.Debug("alias resolved",
		logger.String("alias", ref),
		logger.String("dbid", found),
		logger.Int("child_tables", len(resp.Table.ChildTables)))
	return found, nil
}
