// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ─── Status ─────────────────────────────────────────────────────────────────

// Status is a member's position in the membership lifecycle.
type Status string

const (
	StatusAlive   Status = "alive"
	StatusSuspect Status = "suspect"
	StatusFaulty  Status = "faulty"
	StatusLeave   Status = "leave"
	StatusDamped  Status = "damped"
)

// Precedence returns the status's rank in the conflict-resolution order
// alive < suspect < faulty = leave = damped. Unknown statuses rank below
// everything so they are never preferred over a known state.
func (s Status) Precedence() int {
	switch s {
	case StatusAlive:
		return 0
	case StatusSuspect:
		return 1
	case StatusFaulty, StatusLeave, StatusDamped:
		return 2
	default:
		return -1
	}
}

// Pingable reports whether the detector should still probe a member in
// this status.
func (s Status) Pingable() bool {
	return s == StatusAlive
}

// ─── Member ─────────────────────────────────────────────────────────────────

// Member is one participant in the cluster, keyed by Address.
type Member struct {
	Address     string            `json:"address"`
	Status      Status            `json:"status"`
	Incarnation int64             `json:"incarnationNumber"`
	DampScore   int               `json:"dampScore,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ChecksumString appends this member's contribution to a deterministic
// membership checksum buffer: address, status, incarnation, and — if
// present — its labels sorted by key so the checksum is reproducible
// regardless of map iteration order.
func (m Member) ChecksumString(b *strings.Builder) {
	fmt.Fprintf(b, "%s|%s|%d", m.Address, m.Status, m.Incarnation)
	if len(m.Labels) == 0 {
		return
	}
	keys := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "|%s=%s", k, m.Labels[k])
	}
}

// ─── Change ─────────────────────────────────────────────────────────────────

// Change is a proposed membership delta, the unit of dissemination.
// Source, when set, is the address that observed/originated the change; the
// dissemination buffer uses it to avoid echoing a change straight back to
// the peer that reported it. PiggybackCount is deliberately absent here — it
// is local bookkeeping kept by the dissemination buffer, never part of a
// change's authoritative, wire-transmitted state.
type Change struct {
	Address     string `json:"address"`
	Status      Status `json:"status"`
	Incarnation int64  `json:"incarnationNumber"`
	Source      string `json:"source,omitempty"`
}

// Overrides reports whether c should replace a member currently in status
// curStatus at incarnation curIncarnation: accept iff c's incarnation is
// strictly newer, or equal with higher status precedence.
func (c Change) Overrides(curStatus Status, curIncarnation int64) bool {
	if c.Incarnation > curIncarnation {
		return true
	}
	if c.Incarnation < curIncarnation {
		return false
	}
	return c.Status.Precedence() > curStatus.Precedence()
}

// ─── Updates ────────────────────────────────────────────────────────────────

// UpdateType labels the kind of membership event emitted for an accepted
// change. It mirrors Status except for the synthetic "new" case, which
// fires once when a member is observed for the first time.
type UpdateType string

const (
	UpdateNew     UpdateType = "new"
	UpdateAlive   UpdateType = "alive"
	UpdateSuspect UpdateType = "suspect"
	UpdateFaulty  UpdateType = "faulty"
	UpdateLeave   UpdateType = "leave"
	UpdateDamped  UpdateType = "damped"
)

// MemberUpdate is the event payload delivered to membership listeners.
// Source carries the observing node from the accepted Change (empty for
// locally-originated transitions such as a self-refutation), so the
// dissemination buffer can avoid echoing a change back to its reporter.
type MemberUpdate struct {
	Type   UpdateType `json:"type"`
	Member Member     `json:"member"`
	Source string     `json:"source,omitempty"`
}
