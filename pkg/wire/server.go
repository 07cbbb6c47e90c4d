/*
Copyright 2024 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"
)

// UpdateCacheHandler is the interface a wire server needs from
// UpdateService (pkg/cacheupdate.Service satisfies it).
type UpdateCacheHandler interface {
	PublishResponses(prompt []int32, responses [][]int32) (success bool)
}

type httpServer struct {
	handler UpdateCacheHandler
}

// NewHTTPServer builds the UpdateService HTTP+JSON front end, one route
// for the wire protocol's single request/response message pair.
func NewHTTPServer(addr string, handler UpdateCacheHandler) *http.Server {
	s := &httpServer{handler: handler}
	r := mux.NewRouter()
	r.HandleFunc("/UpdateCache", s.updateCache).Methods("POST")

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}

func (s *httpServer) updateCache(w http.ResponseWriter, r *http.Request) {
	var req UpdateCacheRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		var mr *malformedRequest
		if errors.As(err, &mr) {
			http.Error(w, mr.msg, mr.status)
		} else {
			klog.ErrorS(err, "failed to decode UpdateCache request")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	responses := make([][]int32, len(req.Responses))
	for i, r := range req.Responses {
		responses[i] = r.Tokens
	}
	success := s.handler.PublishResponses(req.Prompt.Tokens, responses)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(UpdateCacheResponse{Success: success})
}

type malformedRequest struct {
	status int
	msg    string
}

func (e *malformedRequest) Error() string { return e.msg }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalTypeErr *json.UnmarshalTypeError

		switch {
		case errors.As(err, &syntaxErr):
			return &malformedRequest{status: http.StatusBadRequest, msg: fmt.Sprintf("malformed JSON at position %d", syntaxErr.Offset)}
		case errors.As(err, &unmarshalTypeErr):
			return &malformedRequest{status: http.StatusBadRequest, msg: fmt.Sprintf("invalid value for field %q", unmarshalTypeErr.Field)}
		case errors.Is(err, io.EOF):
			return &malformedRequest{status: http.StatusBadRequest, msg: "request body must not be empty"}
		default:
			return &malformedRequest{status: http.StatusBadRequest, msg: err.Error()}
		}
	}
	return nil
}
