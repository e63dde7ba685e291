// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/immich-gate/internal/resilience"
	"github.com/ManuGH/immich-gate/internal/session"
)

// NegotiatorState is the part of session.Negotiator the checker reads.
type NegotiatorState interface {
	State() session.State
	Current() (*session.Session, bool)
}

// DialectChecker is unhealthy until a dialect is pinned.
type DialectChecker struct {
	neg NegotiatorState
}

// NewDialectChecker returns a checker over neg.
func NewDialectChecker(neg NegotiatorState) *DialectChecker {
	return &DialectChecker{neg: neg}
}

func (c *DialectChecker) Name() string { return "immich_dialect" }

func (c *DialectChecker) Check(context.Context) CheckResult {
	s, ok := c.neg.Current()
	if !ok {
		return CheckResult{Status: StatusUnhealthy, Message: "dialect " + c.neg.State().String()}
	}
	msg := fmt.Sprintf("%s (server %s)", s.Dialect.ID, s.ServerVersion)
	if c.neg.State() == session.StateNegotiating {
		return CheckResult{Status: StatusHealthy, Message: msg + ", re-negotiating"}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// RoutesChecker is unhealthy until the proxy route table is published.
type RoutesChecker struct {
	ready func() bool
}

// NewRoutesChecker returns a checker over a readiness probe such as
// proxy.Router.Ready.
func NewRoutesChecker(ready func() bool) *RoutesChecker {
	return &RoutesChecker{ready: ready}
}

func (c *RoutesChecker) Name() string { return "proxy_routes" }

func (c *RoutesChecker) Check(context.Context) CheckResult {
	if !c.ready() {
		return CheckResult{Status: StatusUnhealthy, Message: "routes not published"}
	}
	return CheckResult{Status: StatusHealthy, Message: "routes published"}
}

// BreakerChecker reports an open upstream breaker as degraded: asset
// streaming still works while metadata queries are short-circuited.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker returns a checker named name over state.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	st := c.state()
	switch st {
	case resilience.StateOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(st)}
	default:
		return CheckResult{Status: StatusHealthy, Message: "circuit " + string(st)}
	}
}
