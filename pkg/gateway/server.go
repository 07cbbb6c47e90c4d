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

// Package gateway is the thin envoy ext_proc front end named as an
// external collaborator in spec.md §1: it does not belong to the cache
// engine itself, but it is the one piece of the fleet that actually
// calls UpdateService and QueryAPI, so it is specified and built here
// per SPEC_FULL.md §11. It tokenizes chat/completions traffic on the way
// through an envoy proxy, asks QueryAPI for a speculative continuation on
// the way in, and publishes the realized prompt/response pair to
// UpdateService on the way out. Grounded on
// _examples/zhangjyr-aibrix/pkg/plugins/gateway/gateway.go's Process loop,
// stripped of routing, rate limiting and pod-cache concerns that belong to
// aibrix's own domain, not this one.
package gateway

import (
	"context"
	"io"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	extProcPb "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vllm-project/specache/pkg/cacheupdate"
	"github.com/vllm-project/specache/pkg/config"
	"github.com/vllm-project/specache/pkg/queryapi"
	"github.com/vllm-project/specache/pkg/utils"
)

// requestState is the gateway's own per-request bookkeeping, threaded
// through the request/response body handlers of a single ext_proc
// stream. It is distinct from QueryAPI's req_id -> tree_ref state, which
// is owned by queryapi.Service itself.
type requestState struct {
	model        string
	promptTokens []int32
	specTokens   []int32

	respBuf []byte
}

// Server implements the envoy ext_proc ExternalProcessor service,
// bridging HTTP-level chat/completions traffic to UpdateService and
// QueryAPI. One Server is shared by every concurrent stream.
type Server struct {
	updater *cacheupdate.Service
	query   *queryapi.Service
	cfg     config.CacheConfig

	state utils.SyncMap[string, *requestState]
}

// NewServer wires a gateway front end to already-constructed UpdateService
// and QueryAPI instances sharing one arena.
func NewServer(updater *cacheupdate.Service, query *queryapi.Service, cfg config.CacheConfig) *Server {
	return &Server{
		updater: updater,
		query:   query,
		cfg:     cfg,
	}
}

// Process implements the ext_proc bidirectional stream: each request
// passes through RequestHeaders, RequestBody, ResponseHeaders and
// ResponseBody phases in order, mirroring the teacher's Process loop.
func (s *Server) Process(srv extProcPb.ExternalProcessor_ProcessServer) error {
	ctx := srv.Context()
	requestID := uuid.New().String()
	klog.V(4).InfoS("processing request", "requestID", requestID)

	defer s.forget(requestID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := srv.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return status.Errorf(codes.Unknown, "cannot receive ext_proc request: %v", err)
		}

		var resp *extProcPb.ProcessingResponse
		switch req.Request.(type) {
		case *extProcPb.ProcessingRequest_RequestHeaders:
			resp = s.handleRequestHeaders(requestID, req)
		case *extProcPb.ProcessingRequest_RequestBody:
			resp = s.handleRequestBody(requestID, req)
		case *extProcPb.ProcessingRequest_ResponseHeaders:
			resp = passthroughResponse()
		case *extProcPb.ProcessingRequest_ResponseBody:
			resp = s.handleResponseBody(requestID, req)
		default:
			klog.V(4).InfoS("unhandled ext_proc phase", "requestID", requestID)
			resp = passthroughResponse()
		}

		if err := srv.Send(resp); err != nil {
			klog.ErrorS(err, "failed to send ext_proc response", "requestID", requestID)
			return err
		}
	}
}

func (s *Server) getOrCreateState(requestID string) *requestState {
	st, _ := s.state.LoadOrStore(requestID, &requestState{})
	return st
}

func (s *Server) forget(requestID string) {
	s.state.Delete(requestID)
	s.query.EvictResponses(requestID)
}

// HealthServer answers the standard gRPC health-checking protocol so the
// envoy ext_proc cluster can probe liveness, matching the teacher's
// plugin bootstrap convention.
type HealthServer struct{}

func NewHealthServer() *HealthServer { return &HealthServer{} }

func (s *HealthServer) Check(ctx context.Context, in *healthPb.HealthCheckRequest) (*healthPb.HealthCheckResponse, error) {
	return &healthPb.HealthCheckResponse{Status: healthPb.HealthCheckResponse_SERVING}, nil
}

func (s *HealthServer) Watch(in *healthPb.HealthCheckRequest, srv healthPb.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not implemented")
}
