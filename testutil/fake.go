package testutil

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/transport"
)

// RecordedCall is one call received by a FakeServer, after the request
// went through the XML encoder and decoder.
type RecordedCall struct {
	Action  string
	DBID    string
	Request *protocol.Request
}

type injectedFailure struct {
	code      int
	text      string
	remaining int // < 0 means every call
}

// FakeServer is an in-memory table service implementing
// transport.Transport. Requests and responses are serialized and parsed
// exactly as they would be on the wire.
type FakeServer struct {
	mu       sync.Mutex
	codec    protocol.Codec
	tables   map[string]*fakeTable
	apps     map[string]map[string]string // app dbid -> alias -> table dbid
	users    map[string]string            // username -> password
	ticket   string                       // required ticket, if set
	failures map[string]*injectedFailure
	calls    []RecordedCall
	jitter   time.Duration
	tickets  int
}

type fakeTable struct {
	nextRID int64
	records map[int64]map[int]string
}

// NewFakeServer creates an empty server.
func NewFakeServer() *FakeServer {
	return &FakeServer{
		codec:    protocol.NewCodec(),
		tables:   make(map[string]*fakeTable),
		apps:     make(map[string]map[string]string),
		users:    make(map[string]string),
		failures: make(map[string]*injectedFailure),
	}
}

var _ transport.Transport = (*FakeServer)(nil)

// AddTable creates an empty table. If app is non-empty the table is listed
// in that application's schema under alias.
func (s *FakeServer) AddTable(dbid, app, alias string) *FakeServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[dbid] = &fakeTable{nextRID: 1, records: make(map[int64]map[int]string)}
	if app != "" {
		if s.apps[app] == nil {
			s.apps[app] = make(map[string]string)
		}
		if alias != "" {
			s.apps[app][alias] = dbid
		}
	}
	return s
}

// AddUser allows Authenticate for username.
func (s *FakeServer) AddUser(username, password string) *FakeServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
	return s
}

// RequireTicket rejects every table call whose ticket differs.
func (s *FakeServer) RequireTicket(ticket string) *FakeServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket = ticket
	return s
}

// Fail makes the next times calls to action fail with the remote error
// code and text. A negative times fails every call.
func (s *FakeServer) Fail(action string, code int, text string, times int) *FakeServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[action] = &injectedFailure{code: code, text: text, remaining: times}
	return s
}

// SetJitter delays every call by a random duration up to max so that
// concurrent calls complete in arbitrary order.
func (s *FakeServer) SetJitter(max time.Duration) *FakeServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jitter = max
	return s
}

// Seed stores a record with the given field values and returns its id.
func (s *FakeServer) Seed(dbid string, values map[int]string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[dbid]
	return t.insert(values)
}

// SeedRID stores a record under a chosen id.
func (s *FakeServer) SeedRID(dbid string, rid int64, values map[int]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[dbid]
	rec := copyValues(values)
	t.records[rid] = rec
	if rid >= t.nextRID {
		t.nextRID = rid + 1
	}
}

// Record returns a copy of the stored record, or nil.
func (s *FakeServer) Record(dbid string, rid int64) map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tables[dbid].records[rid]
	if !ok {
		return nil
	}
	return copyValues(rec)
}

// RIDs returns the ids stored in dbid in ascending order.
func (s *FakeServer) RIDs(dbid string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[dbid].sortedRIDs()
}

// Calls returns the calls received so far.
func (s *FakeServer) Calls() []RecordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Actions returns the action of every call received so far.
func (s *FakeServer) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Action
	}
	return out
}

// CountActions returns how many calls of action were received.
func (s *FakeServer) CountActions(action string) int {
	n := 0
	for _, a := range s.Actions() {
		if a == action {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (s *FakeServer) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Call implements transport.Transport.
func (s *FakeServer) Call(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	wire, err := s.codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	parsed, err := s.codec.DecodeRequest(wire)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	jitter := s.jitter
	s.mu.Unlock()
	if jitter > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rand.N(jitter)):
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, RecordedCall{Action: action, DBID: dbid, Request: parsed})
	resp := s.handle(action, parsed, dbid)
	s.mu.Unlock()

	resp.Action = action
	data, err := s.codec.EncodeResponse(resp)
	if err != nil {
		return nil, err
	}
	out, err := s.codec.DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func remoteError(code int, text, detail string) *protocol.Response {
	return &protocol.Response{ErrCode: code, ErrText: text, ErrDetail: detail}
}

// handle runs with s.mu held.
func (s *FakeServer) handle(action string, req *protocol.Request, dbid string) *protocol.Response {
	if f, ok := s.failures[action]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		return remoteError(f.code, f.text, "injected")
	}

	if action == protocol.ActionAuthenticate {
		return s.authenticate(req)
	}
	if s.ticket != "" && req.Ticket != s.ticket {
		return remoteError(protocol.RemoteCodeBadTicket, "Invalid ticket", "")
	}

	if action == protocol.ActionGetSchema {
		aliases, ok := s.apps[dbid]
		if !ok {
			return remoteError(protocol.RemoteCodeNoSuchDatabase, "No such database", dbid)
		}
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		tbl := &protocol.Table{Name: dbid}
		for _, name := range names {
			tbl.ChildTables = append(tbl.ChildTables, protocol.ChildTable{Name: name, DBID: aliases[name]})
		}
		return &protocol.Response{Table: tbl}
	}

	t, ok := s.tables[dbid]
	if !ok {
		return remoteError(protocol.RemoteCodeNoSuchDatabase, "No such database", dbid)
	}

	switch action {
	case protocol.ActionDoQuery:
		return t.doQuery(req)
	case protocol.ActionDoQueryCount:
		matches, err := t.match(req.Query)
		if err != nil {
			return err
		}
		return &protocol.Response{NumMatches: len(matches)}
	case protocol.ActionImportCSV:
		return t.importCSV(req)
	case protocol.ActionAddRecord:
		values := make(map[int]string, len(req.Fields))
		for _, f := range req.Fields {
			values[f.FID] = f.Value
		}
		rid := t.insert(values)
		return &protocol.Response{RID: strconv.FormatInt(rid, 10)}
	case protocol.ActionEditRecord:
		rec, ok := t.records[req.RID]
		if !ok {
			return remoteError(protocol.RemoteCodeNoSuchRecord, "No such record", strconv.FormatInt(req.RID, 10))
		}
		for _, f := range req.Fields {
			rec[f.FID] = f.Value
		}
		return &protocol.Response{RID: strconv.FormatInt(req.RID, 10)}
	case protocol.ActionDeleteRecord:
		if _, ok := t.records[req.RID]; !ok {
			return remoteError(protocol.RemoteCodeNoSuchRecord, "No such record", strconv.FormatInt(req.RID, 10))
		}
		delete(t.records, req.RID)
		return &protocol.Response{RID: strconv.FormatInt(req.RID, 10)}
	case protocol.ActionPurgeRecords:
		matches, err := t.match(req.Query)
		if err != nil {
			return err
		}
		for _, rid := range matches {
			delete(t.records, rid)
		}
		return &protocol.Response{NumRecordsDeleted: len(matches)}
	default:
		return remoteError(protocol.RemoteCodeUnknown, "Unknown action", action)
	}
}

func (s *FakeServer) authenticate(req *protocol.Request) *protocol.Response {
	pw, ok := s.users[req.Username]
	if !ok || pw != req.Password {
		return remoteError(20, "Unknown username/password", "")
	}
	s.tickets++
	ticket := fmt.Sprintf("ticket-%d", s.tickets)
	s.ticket = ticket
	return &protocol.Response{Ticket: ticket, UserID: req.Username}
}

func copyValues(values map[int]string) map[int]string {
	out := make(map[int]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func (t *fakeTable) insert(values map[int]string) int64 {
	rid := t.nextRID
	t.nextRID++
	rec := copyValues(values)
	delete(rec, 3)
	t.records[rid] = rec
	return rid
}

func (t *fakeTable) sortedRIDs() []int64 {
	rids := make([]int64, 0, len(t.records))
	for rid := range t.records {
		rids = append(rids, rid)
	}
	sort.Slice(rids, func(i, j int) bool { return rids[i] < rids[j] })
	return rids
}

func (t *fakeTable) value(rid int64, fid int) string {
	if fid == 3 {
		return strconv.FormatInt(rid, 10)
	}
	return t.records[rid][fid]
}

func parseIDList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ".")
	ids := make([]int, len(parts))
	for i, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (t *fakeTable) importCSV(req *protocol.Request) *protocol.Response {
	cols, err := parseIDList(req.CList)
	if err != nil || len(cols) == 0 {
		return remoteError(protocol.RemoteCodeInvalidInput, "Invalid clist", req.CList)
	}
	data := ""
	if req.Records != nil {
		data = req.Records.Data
	}
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = len(cols)
	rows, err := r.ReadAll()
	if err != nil {
		return remoteError(protocol.RemoteCodeInvalidInput, "Invalid CSV", err.Error())
	}

	ridCol := -1
	for i, c := range cols {
		if c == 3 {
			ridCol = i
		}
	}

	resp := &protocol.Response{}
	for _, row := range rows {
		values := make(map[int]string, len(cols))
		for i, c := range cols {
			// The import trims surrounding whitespace.
			values[c] = strings.TrimSpace(row[i])
		}
		if ridCol < 0 {
			rid := t.insert(values)
			resp.RIDs = append(resp.RIDs, strconv.FormatInt(rid, 10))
			resp.NumRecsAdded++
			continue
		}
		rid, err := strconv.ParseInt(values[3], 10, 64)
		rec, ok := t.records[rid]
		if err != nil || !ok {
			return remoteError(protocol.RemoteCodeNoSuchRecord, "No such record", values[3])
		}
		for c, v := range values {
			if c != 3 {
				rec[c] = v
			}
		}
		resp.RIDs = append(resp.RIDs, values[3])
		resp.NumRecsUpdated++
	}
	return resp
}

func (t *fakeTable) doQuery(req *protocol.Request) *protocol.Response {
	matches, errResp := t.match(req.Query)
	if errResp != nil {
		return errResp
	}
	cols, err := parseIDList(req.CList)
	if err != nil {
		return remoteError(protocol.RemoteCodeInvalidInput, "Invalid clist", req.CList)
	}
	sorts, err := parseIDList(req.SList)
	if err != nil {
		return remoteError(protocol.RemoteCodeInvalidInput, "Invalid slist", req.SList)
	}

	order, limit, skip := "", -1, 0
	if req.Options != "" {
		for _, opt := range strings.Split(req.Options, ".") {
			name, arg, _ := strings.Cut(opt, "-")
			switch name {
			case "sortorder":
				order = arg
			case "num":
				limit, _ = strconv.Atoi(arg)
			case "skp":
				skip, _ = strconv.Atoi(arg)
			default:
				return remoteError(protocol.RemoteCodeInvalidInput, "Invalid option", opt)
			}
		}
	}

	if len(sorts) > 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			for k, fid := range sorts {
				c := compareValues(t.value(matches[i], fid), t.value(matches[j], fid))
				if c == 0 {
					continue
				}
				if k < len(order) && order[k] == 'D' {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if skip > len(matches) {
		skip = len(matches)
	}
	matches = matches[skip:]
	if limit >= 0 && limit < len(matches) {
		matches = matches[:limit]
	}

	tbl := &protocol.Table{}
	for _, rid := range matches {
		rec := protocol.Record{RID: strconv.FormatInt(rid, 10)}
		for _, fid := range cols {
			rec.Fields = append(rec.Fields, protocol.ResponseField{ID: fid, Value: t.value(rid, fid)})
		}
		tbl.Records = append(tbl.Records, rec)
	}
	return &protocol.Response{Table: tbl}
}

type clause struct {
	fid   int
	cmp   string
	value string
}

func parseQuery(q string) ([]clause, error) {
	if q == "" {
		return nil, nil
	}
	if !strings.HasPrefix(q, "{") || !strings.HasSuffix(q, "}") {
		return nil, fmt.Errorf("malformed query %q", q)
	}
	parts := strings.Split(q[1:len(q)-1], "}AND{")
	out := make([]clause, 0, len(parts))
	for _, p := range parts {
		fidStr, rest, ok1 := strings.Cut(p, ".")
		cmp, val, ok2 := strings.Cut(rest, ".")
		fid, err := strconv.Atoi(fidStr)
		if !ok1 || !ok2 || err != nil || len(val) < 2 || val[0] != '\'' || val[len(val)-1] != '\'' {
			return nil, fmt.Errorf("malformed clause %q", p)
		}
		out = append(out, clause{fid: fid, cmp: cmp, value: val[1 : len(val)-1]})
	}
	return out, nil
}

// match returns the ids of records matching q in ascending order.
func (t *fakeTable) match(q string) ([]int64, *protocol.Response) {
	clauses, err := parseQuery(q)
	if err != nil {
		return nil, remoteError(protocol.RemoteCodeInvalidInput, "Invalid query", err.Error())
	}
	var out []int64
	for _, rid := range t.sortedRIDs() {
		ok := true
		for _, c := range clauses {
			m, err := c.matches(t.value(rid, c.fid))
			if err != nil {
				return nil, remoteError(protocol.RemoteCodeInvalidInput, "Invalid query", err.Error())
			}
			if !m {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rid)
		}
	}
	return out, nil
}

func (c clause) matches(v string) (bool, error) {
	switch c.cmp {
	case "EX":
		for _, alt := range strings.Split(c.value, " OR ") {
			if strings.EqualFold(v, alt) {
				return true, nil
			}
		}
		return false, nil
	case "XEX":
		return !strings.EqualFold(v, c.value), nil
	case "CT":
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.value)), nil
	case "GT":
		return compareValues(v, c.value) > 0, nil
	case "GTE":
		return compareValues(v, c.value) >= 0, nil
	case "LT":
		return compareValues(v, c.value) < 0, nil
	case "LTE":
		return compareValues(v, c.value) <= 0, nil
	default:
		return false, fmt.Errorf("unknown comparator %s", c.cmp)
	}
}

// compareValues compares numerically when both sides are numbers.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
