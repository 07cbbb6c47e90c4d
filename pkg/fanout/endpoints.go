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

// Package fanout implements ClientFanout (C6): discovering UpdateService
// endpoints from the environment and dispatching each update to every
// endpoint concurrently. Grounded on
// suffix_cache_updater.cc's extract_addresses_from_env and
// update_response_cache/update_prompt_cache.
package fanout

import (
	"fmt"
	"os"
	"regexp"

	"k8s.io/klog/v2"
)

// bracketedIPv6 matches "[addr]:port" tokens, mirroring the original's
// std::regex(R"(\[([\da-f:]+)\]:\d+)", icase).
var bracketedIPv6 = regexp.MustCompile(`(?i)\[([0-9a-f:]+)\]:\d+`)

// DiscoverEndpoints reads envVar for bracketed IPv6 worker addresses,
// dedups them, and reattaches port. If the variable is unset or contains
// no matches, it falls back to a single localhost endpoint.
func DiscoverEndpoints(envVar string, port int) []string {
	raw, present := os.LookupEnv(envVar)
	if !present {
		return []string{fmt.Sprintf("localhost:%d", port)}
	}

	seen := make(map[string]struct{})
	var addrs []string
	for _, match := range bracketedIPv6.FindAllStringSubmatch(raw, -1) {
		ip := match[1]
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		addrs = append(addrs, fmt.Sprintf("[%s]:%d", ip, port))
	}

	if len(addrs) == 0 {
		klog.InfoS("no worker hosts matched, falling back to localhost", "envVar", envVar)
		return []string{fmt.Sprintf("localhost:%d", port)}
	}
	return addrs
}
