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

// Command server hosts the shared arena and UpdateService (C1/C4): it is
// the one process on the host that calls arena.Create, and it exposes the
// wire.NewHTTPServer front end that ClientFanout instances on inference
// workers publish updates to. Grounded on
// original_source/specrl/suffix_cache/rollout_cache_server.cc's process
// bootstrap (create shared memory, construct the registry, serve
// UpdateCache, tear down on shutdown) and the teacher's cmd/*/main.go
// flag/signal-handling conventions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/cacheupdate"
	"github.com/vllm-project/specache/pkg/config"
	"github.com/vllm-project/specache/pkg/suffixtree"
	"github.com/vllm-project/specache/pkg/treeregistry"
	"github.com/vllm-project/specache/pkg/wire"
)

func main() {
	klog.InitFlags(nil)
	addr := flag.String("addr", "", "HTTP address to serve the UpdateService wire protocol on (default :<SPECACHE_UPDATE_PORT>)")
	flag.Parse()

	cfg := config.NewCacheConfig()
	if *addr == "" {
		*addr = fmt.Sprintf(":%d", cfg.UpdatePort)
	}

	a, err := arena.Create(cfg.ArenaDir, cfg.ArenaName, cfg.ArenaSizeBytes)
	if err != nil {
		klog.ErrorS(err, "failed to create shared arena", "name", cfg.ArenaName)
		os.Exit(1)
	}
	registry := treeregistry.Open(a)
	updater := cacheupdate.New(a, registry, cfg)
	httpServer := wire.NewHTTPServer(*addr, updater)

	go func() {
		klog.InfoS("update service listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "update service exited")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	klog.InfoS("shutting down update service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		klog.ErrorS(err, "http shutdown error")
	}

	for _, meta := range registry.Drain() {
		suffixtree.Attach(a, meta).Destroy()
	}
	if err := a.Close(); err != nil {
		klog.ErrorS(err, "arena close error")
	}
	if err := a.Unlink(); err != nil {
		klog.ErrorS(err, "arena unlink error")
	}
}
