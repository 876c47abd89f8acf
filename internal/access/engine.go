// Package access decides whether a requester may watch a video.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/raibee/backend/internal/models"
)

// DenyReason is returned to clients when no rule grants access.
const DenyReason = "purchase or subscription required"

// Reasons recorded on a Decision.
const (
	ReasonPublic   = "public"
	ReasonOwner    = "owner"
	ReasonPurchase = "purchase"
	ReasonDenied   = "denied"
)

// PurchaseChecker reports whether any purchase row exists for the pair.
type PurchaseChecker interface {
	HasPurchase(ctx context.Context, userID, videoID string) (bool, error)
}

// Requester is the identity asking for access. The zero value is anonymous.
type Requester struct {
	ID   string
	Name string
	Role models.Role
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
}

// Recorder observes decisions, typically for metrics.
type Recorder interface {
	ObserveDecision(allowed bool, reason string)
}

// Engine evaluates the rule table against current purchase state. Decisions
// are never cached, so a purchase recorded after a denial is honoured on the
// next call.
type Engine struct {
	purchases PurchaseChecker
	recorder  Recorder
}

// NewEngine constructs an Engine. recorder may be nil.
func NewEngine(purchases PurchaseChecker, recorder Recorder) *Engine {
	return &Engine{purchases: purchases, recorder: recorder}
}

// Authorize applies, in order: public visibility, ownership, purchase
// existence. The first matching rule wins; otherwise access is denied.
// "subscribers" and "for-sale" are both satisfied by any recorded purchase.
func (e *Engine) Authorize(ctx context.Context, video models.Video, requester Requester) (Decision, error) {
	decision, err := e.evaluate(ctx, video, requester)
	if err != nil {
		return Decision{}, err
	}
	if e.recorder != nil {
		e.recorder.ObserveDecision(decision.Allowed, decision.Reason)
	}
	return decision, nil
}

func (e *Engine) evaluate(ctx context.Context, video models.Video, requester Requester) (Decision, error) {
	if video.Visibility == models.VisibilityPublic {
		return Decision{Allowed: true, Reason: ReasonPublic}, nil
	}

	if requester.ID == "" {
		return Decision{Allowed: false, Reason: ReasonDenied}, nil
	}

	if requester.ID == video.OwnerID {
		return Decision{Allowed: true, Reason: ReasonOwner}, nil
	}

	if e.purchases == nil {
		return Decision{}, errors.New("access: purchase checker unavailable")
	}

	ok, err := e.purchases.HasPurchase(ctx, requester.ID, video.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("check purchase: %w", err)
	}
	if ok {
		return Decision{Allowed: true, Reason: ReasonPurchase}, nil
	}

	return Decision{Allowed: false, Reason: ReasonDenied}, nil
}

// Message returns the client-facing text for a denial.
func (d Decision) Message() string {
	if d.Allowed {
		return ""
	}
	return DenyReason
}
