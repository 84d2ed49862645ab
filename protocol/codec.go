// Package protocol provides the request and response documents of the
// table service's XML action protocol and their encoding.
package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sync"
)

// Action names used by the client.
const (
	ActionDoQuery      = "API_DoQuery"
	ActionDoQueryCount = "API_DoQueryCount"
	ActionImportCSV    = "API_ImportFromCSV"
	ActionAddRecord    = "API_AddRecord"
	ActionEditRecord   = "API_EditRecord"
	ActionDeleteRecord = "API_DeleteRecord"
	ActionPurgeRecords = "API_PurgeRecords"
	ActionGetSchema    = "API_GetSchema"
	ActionAuthenticate = "API_Authenticate"
)

// Request is the body of one action call. Only the elements an action
// needs are set; empty elements are omitted from the document.
type Request struct {
	XMLName  xml.Name     `xml:"qdbapi"`
	Ticket   string       `xml:"ticket,omitempty"`
	AppToken string       `xml:"apptoken,omitempty"`
	Username string       `xml:"username,omitempty"`
	Password string       `xml:"password,omitempty"`
	Hours    int          `xml:"hours,omitempty"`
	Fmt      string       `xml:"fmt,omitempty"`
	Query    string       `xml:"query,omitempty"`
	CList    string       `xml:"clist,omitempty"`
	SList    string       `xml:"slist,omitempty"`
	Options  string       `xml:"options,omitempty"`
	Records  *CSVBlock    `xml:"records_csv,omitempty"`
	MsInUTC  int          `xml:"msInUTC,omitempty"`
	RID      int64        `xml:"rid,omitempty"`
	Fields   []FieldValue `xml:"field"`
}

// CSVBlock carries a bulk import payload. It is written as CDATA; a literal
// "]]>" in the data is split across two adjacent CDATA sections.
type CSVBlock struct {
	Data string `xml:",cdata"`
}

// FieldValue is one <field fid="..."> element of a single-record call.
type FieldValue struct {
	FID   int    `xml:"fid,attr"`
	Value string `xml:",chardata"`
}

// Response is a parsed action response. Which elements are populated
// depends on the action.
type Response struct {
	XMLName           xml.Name `xml:"qdbapi"`
	Action            string   `xml:"action"`
	ErrCode           int      `xml:"errcode"`
	ErrText           string   `xml:"errtext"`
	ErrDetail         string   `xml:"errdetail"`
	Ticket            string   `xml:"ticket"`
	UserID            string   `xml:"userid"`
	RID               string   `xml:"rid"`
	RIDs              []string `xml:"rids>rid"`
	NumRecsAdded      int      `xml:"num_recs_added"`
	NumRecsUpdated    int      `xml:"num_recs_updated"`
	NumRecordsDeleted int      `xml:"num_records_deleted"`
	NumMatches        int      `xml:"numMatches"`
	Table             *Table   `xml:"table"`
}

// Table is the <table> element of query and schema responses.
type Table struct {
	Name        string       `xml:"name"`
	Records     []Record     `xml:"records>record"`
	ChildTables []ChildTable `xml:"chdbids>chdbid"`
}

// Record is one structured query result row.
type Record struct {
	RID    string          `xml:"rid,attr,omitempty"`
	Fields []ResponseField `xml:"f"`
}

// ResponseField is one <f id="..."> element of a result row.
type ResponseField struct {
	ID    int    `xml:"id,attr"`
	Value string `xml:",chardata"`
}

// ChildTable maps a table alias to its dbid in an application schema.
type ChildTable struct {
	Name string `xml:"name,attr"`
	DBID string `xml:",chardata"`
}

// Records returns the result rows, or nil when the response has no table.
func (r *Response) Records() []Record {
	if r.Table == nil {
		return nil
	}
	return r.Table.Records
}

// Err returns a *RemoteCallError when the response carries a non-zero
// error code.
func (r *Response) Err() error {
	if r.ErrCode == 0 {
		return nil
	}
	return NewRemoteCallError(r.Action, r.ErrCode, r.ErrText, r.ErrDetail)
}

// Codec encodes requests and decodes responses.
type Codec interface {
	// EncodeRequest serializes a request document.
	EncodeRequest(req *Request) ([]byte, error)

	// DecodeRequest parses a request document.
	DecodeRequest(data []byte) (*Request, error)

	// EncodeResponse serializes a response document.
	EncodeResponse(resp *Response) ([]byte, error)

	// DecodeResponse parses a response document. A non-zero error code is
	// not a decode failure; use Response.Err.
	DecodeResponse(data []byte) (*Response, error)
}

// XMLCodec implements Codec with encoding/xml.
type XMLCodec struct {
	bufferPool sync.Pool
}

// NewCodec creates a new XML codec.
func NewCodec() Codec {
	return &XMLCodec{
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

func (c *XMLCodec) encode(v interface{}) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := xml.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	// Return a copy since we're reusing the buffer
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// EncodeRequest implements Codec.
func (c *XMLCodec) EncodeRequest(req *Request) ([]byte, error) {
	if req == nil {
		req = &Request{}
	}
	data, err := c.encode(req)
	if err != nil {
		return nil, NewProtocolError("E_ENCODE_REQUEST", "failed to encode request", err)
	}
	return data, nil
}

// DecodeRequest implements Codec.
func (c *XMLCodec) DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := xml.Unmarshal(data, &req); err != nil {
		return nil, NewProtocolError("E_DECODE_REQUEST", "malformed request document", err)
	}
	return &req, nil
}

// EncodeResponse implements Codec.
func (c *XMLCodec) EncodeResponse(resp *Response) ([]byte, error) {
	data, err := c.encode(resp)
	if err != nil {
		return nil, NewProtocolError("E_ENCODE_RESPONSE", "failed to encode response", err)
	}
	return data, nil
}

// DecodeResponse implements Codec.
func (c *XMLCodec) DecodeResponse(data []byte) (*Response, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewProtocolError("E_EMPTY_RESPONSE", "empty response data", nil)
	}

	var resp Response
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, NewProtocolError("E_DECODE_RESPONSE",
			fmt.Sprintf("malformed response document (%d bytes)", len(data)), err)
	}
	return &resp, nil
}
