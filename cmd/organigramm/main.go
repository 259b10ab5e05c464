// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command organigramm serves and inspects the troop organigramm.
//
// The organigramm is aggregated from the member registry (groups, roles,
// people) and served as a JSON tree. When the registry is down the last
// successful tree is served from the snapshot store, flagged as stale.
//
// Usage:
//
//	organigramm serve  -c organigramm.yaml
//	organigramm fetch  -c organigramm.yaml --group 1234 --depth 2
//	organigramm snapshot show -c organigramm.yaml --group 1234
//	organigramm config init organigramm.yaml
//
// Example requests:
//
//	# Organigramm for the default root, without ordinary members
//	curl 'http://localhost:8080/api/organigramm?exclude=Mitglied'
//
//	# Readiness and breaker state
//	curl http://localhost:8080/readyz
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
