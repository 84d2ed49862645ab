package testutil

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dan-strohschein/qbdriver/protocol"
	qbhttp "github.com/dan-strohschein/qbdriver/transport/http"
)

// Handler serves s over HTTP the way the real endpoint does: a POST to
// /db/{dbid} with the action in a header, answered with status 200 and
// the error, if any, inside the response document.
func (s *FakeServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dbid, ok := strings.CutPrefix(r.URL.Path, "/db/")
		if r.Method != http.MethodPost || !ok || dbid == "" {
			http.NotFound(w, r)
			return
		}
		action := r.Header.Get(qbhttp.ActionHeader)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req, err := s.codec.DecodeRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := s.Call(r.Context(), action, req, dbid)
		if err != nil {
			var rce *protocol.RemoteCallError
			if !errors.As(err, &rce) {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			resp = &protocol.Response{ErrCode: rce.Code, ErrText: rce.Text, ErrDetail: rce.Detail}
		}
		resp.Action = action

		out, err := s.codec.EncodeResponse(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write(out)
	})
}
