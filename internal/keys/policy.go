// Outbound value-transfer policy gate, consuming SpendTracker. Grounded
// on original_source/src/legal/policy.rs and audit.rs: the original
// blocks MPC signing behind a daily-cap check and writes a hash-chained
// audit trail of every decision.
package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/ironclaw/core/internal/kerr"
)

// AuditEvent is one hash-chained entry in the value-transfer audit
// trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"ts"`
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	Hash      string         `json:"hash,omitempty"`
}

// AuditLogger appends hash-chained JSON Lines audit events to a writer.
// Each event's hash covers the event with the prior event's hash
// embedded, so the log can be verified as tamper-evident by recomputing
// the chain.
type AuditLogger struct {
	mu       sync.Mutex
	w        io.Writer
	hashLink bool
	prevHash string
}

// NewAuditLogger constructs a logger writing to w. hashLink enables the
// prev_hash/hash chaining; disabling it produces a plain append log.
func NewAuditLogger(w io.Writer, hashLink bool) *AuditLogger {
	return &AuditLogger{w: w, hashLink: hashLink}
}

// Record appends one audit event.
func (l *AuditLogger) Record(eventType string, details map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	if l.hashLink {
		toHash, err := json.Marshal(event)
		if err != nil {
			return kerr.Wrap(kerr.Parsing, err)
		}
		sum := sha256.Sum256(toHash)
		event.Hash = hex.EncodeToString(sum[:])
		l.prevHash = event.Hash
	}

	line, err := json.Marshal(event)
	if err != nil {
		return kerr.Wrap(kerr.Parsing, err)
	}
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		return kerr.Wrap(kerr.Storage, err)
	}
	return nil
}

// TransferPolicy gates outbound value transfers behind a daily spend
// cap, recording every allow/deny decision to the audit log.
type TransferPolicy struct {
	tracker         *SpendTracker
	audit           *AuditLogger
	dailyLimitYocto string
}

// NewTransferPolicy constructs a policy enforcing dailyLimitYocto
// against tracker, logging decisions to audit.
func NewTransferPolicy(tracker *SpendTracker, audit *AuditLogger, dailyLimitYocto string) *TransferPolicy {
	return &TransferPolicy{tracker: tracker, audit: audit, dailyLimitYocto: dailyLimitYocto}
}

// Authorize checks a proposed transfer against the daily cap, logs the
// decision, and on approval records the spend. Call before submitting a
// signed transaction, not after — the cap is enforced pre-submission.
func (p *TransferPolicy) Authorize(ctx context.Context, valueYocto, description, txHash string) error {
	err := p.tracker.CheckDailyLimit(ctx, valueYocto, p.dailyLimitYocto)

	details := map[string]any{
		"value_yocto": valueYocto,
		"description": description,
		"limit_yocto": p.dailyLimitYocto,
	}
	if txHash != "" {
		details["tx_hash"] = txHash
	}

	if err != nil {
		details["allowed"] = false
		details["reason"] = err.Error()
		if p.audit != nil {
			_ = p.audit.Record("transfer_denied", details)
		}
		return err
	}

	details["allowed"] = true
	if p.audit != nil {
		if auditErr := p.audit.Record("transfer_allowed", details); auditErr != nil {
			return auditErr
		}
	}

	return p.tracker.RecordSpend(ctx, valueYocto, description, txHash)
}
