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

// Command gateway bootstraps the envoy ext_proc front end (pkg/gateway):
// it attaches to the arena created by cmd/server, embeds UpdateService
// and QueryAPI directly (the "embedding surface" of spec.md §6) and
// serves the ext_proc and standard gRPC health protocols. Grounded on
// the teacher's plugin bootstrap (flag-configured gRPC port, signal
// handling, extProcPb.RegisterExternalProcessorServer +
// healthPb.RegisterHealthServer), with routing/rate-limit/k8s wiring
// removed since none of that belongs to this domain.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/klog/v2"

	extProcPb "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/cacheupdate"
	"github.com/vllm-project/specache/pkg/config"
	"github.com/vllm-project/specache/pkg/gateway"
	"github.com/vllm-project/specache/pkg/queryapi"
	"github.com/vllm-project/specache/pkg/treeregistry"
)

func main() {
	klog.InitFlags(nil)
	port := flag.Int("port", 50051, "gRPC port for the ext_proc and health services")
	flag.Parse()

	cfg := config.NewCacheConfig()

	a, err := arena.Open(cfg.ArenaDir, cfg.ArenaName, cfg.ArenaSizeBytes)
	if err != nil {
		klog.ErrorS(err, "failed to attach to shared arena; is cmd/server running?", "name", cfg.ArenaName)
		os.Exit(1)
	}
	defer a.Close()

	registry := treeregistry.Open(a)
	updater := cacheupdate.New(a, registry, cfg)
	query := queryapi.New(a, registry, cfg)
	gatewayServer := gateway.NewServer(updater, query, cfg)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		klog.ErrorS(err, "failed to listen", "port", *port)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	extProcPb.RegisterExternalProcessorServer(grpcServer, gatewayServer)
	healthPb.RegisterHealthServer(grpcServer, gateway.NewHealthServer())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		klog.InfoS("shutting down gateway")
		grpcServer.GracefulStop()
	}()

	klog.InfoS("gateway listening", "port", *port)
	if err := grpcServer.Serve(lis); err != nil {
		klog.ErrorS(err, "gateway server exited")
		os.Exit(1)
	}
}
