package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibee/backend/internal/models"
)

type purchaseSet struct {
	pairs map[[2]string]int
	calls int
	err   error
}

func newPurchaseSet() *purchaseSet {
	return &purchaseSet{pairs: make(map[[2]string]int)}
}

func (p *purchaseSet) add(userID, videoID string) {
	p.pairs[[2]string{userID, videoID}]++
}

func (p *purchaseSet) HasPurchase(_ context.Context, userID, videoID string) (bool, error) {
	p.calls++
	if p.err != nil {
		return false, p.err
	}
	return p.pairs[[2]string{userID, videoID}] > 0, nil
}

type decisionRecorder struct {
	allowed []bool
	reasons []string
}

func (r *decisionRecorder) ObserveDecision(allowed bool, reason string) {
	r.allowed = append(r.allowed, allowed)
	r.reasons = append(r.reasons, reason)
}

func video(visibility models.Visibility) models.Video {
	return models.Video{ID: "video-1", OwnerID: "creator-1", Visibility: visibility}
}

func TestAuthorizeRuleTable(t *testing.T) {
	fan := Requester{ID: "fan-1", Name: "Fan", Role: models.RoleFan}
	owner := Requester{ID: "creator-1", Name: "Rai Bee", Role: models.RoleCreator}

	tests := []struct {
		name       string
		visibility models.Visibility
		requester  Requester
		purchased  bool
		wantAllow  bool
		wantReason string
	}{
		{"public anonymous", models.VisibilityPublic, Requester{}, false, true, ReasonPublic},
		{"public fan", models.VisibilityPublic, fan, false, true, ReasonPublic},
		{"owner subscribers", models.VisibilitySubscribers, owner, false, true, ReasonOwner},
		{"owner for sale", models.VisibilityForSale, owner, false, true, ReasonOwner},
		{"fan subscribers without purchase", models.VisibilitySubscribers, fan, false, false, ReasonDenied},
		{"fan for sale without purchase", models.VisibilityForSale, fan, false, false, ReasonDenied},
		{"fan subscribers with purchase", models.VisibilitySubscribers, fan, true, true, ReasonPurchase},
		{"fan for sale with purchase", models.VisibilityForSale, fan, true, true, ReasonPurchase},
		{"anonymous for sale", models.VisibilityForSale, Requester{}, false, false, ReasonDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purchases := newPurchaseSet()
			if tt.purchased {
				purchases.add(tt.requester.ID, "video-1")
			}
			engine := NewEngine(purchases, nil)

			decision, err := engine.Authorize(context.Background(), video(tt.visibility), tt.requester)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllow, decision.Allowed)
			assert.Equal(t, tt.wantReason, decision.Reason)
			if !tt.wantAllow {
				assert.Equal(t, DenyReason, decision.Message())
			}
		})
	}
}

func TestAuthorizeIsDeterministic(t *testing.T) {
	purchases := newPurchaseSet()
	engine := NewEngine(purchases, nil)
	requester := Requester{ID: "fan-1"}

	first, err := engine.Authorize(context.Background(), video(models.VisibilityForSale), requester)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := engine.Authorize(context.Background(), video(models.VisibilityForSale), requester)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOwnerOverridesPurchaseState(t *testing.T) {
	purchases := newPurchaseSet()
	engine := NewEngine(purchases, nil)
	owner := Requester{ID: "creator-1"}

	for _, v := range []models.Visibility{models.VisibilityPublic, models.VisibilitySubscribers, models.VisibilityForSale} {
		decision, err := engine.Authorize(context.Background(), video(v), owner)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "visibility %s", v)
	}
	assert.Zero(t, purchases.calls, "owner check must not consult purchases")
}

func TestPurchaseFlipsDenyToAllow(t *testing.T) {
	purchases := newPurchaseSet()
	engine := NewEngine(purchases, nil)
	fan := Requester{ID: "fan-1"}

	denied, err := engine.Authorize(context.Background(), video(models.VisibilityForSale), fan)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	purchases.add("fan-1", "video-1")

	allowed, err := engine.Authorize(context.Background(), video(models.VisibilityForSale), fan)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, ReasonPurchase, allowed.Reason)
}

func TestPurchaseForOtherPairDoesNotGrant(t *testing.T) {
	purchases := newPurchaseSet()
	purchases.add("fan-1", "video-2")
	purchases.add("fan-2", "video-1")
	engine := NewEngine(purchases, nil)

	decision, err := engine.Authorize(context.Background(), video(models.VisibilitySubscribers), Requester{ID: "fan-1"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAuthorizePropagatesStoreErrors(t *testing.T) {
	purchases := newPurchaseSet()
	purchases.err = errors.New("connection reset")
	engine := NewEngine(purchases, nil)

	_, err := engine.Authorize(context.Background(), video(models.VisibilityForSale), Requester{ID: "fan-1"})
	assert.Error(t, err)

	engine = NewEngine(nil, nil)
	_, err = engine.Authorize(context.Background(), video(models.VisibilityForSale), Requester{ID: "fan-1"})
	assert.Error(t, err)
}

func TestAuthorizeRecordsDecisions(t *testing.T) {
	recorder := &decisionRecorder{}
	engine := NewEngine(newPurchaseSet(), recorder)

	_, err := engine.Authorize(context.Background(), video(models.VisibilityPublic), Requester{})
	require.NoError(t, err)
	_, err = engine.Authorize(context.Background(), video(models.VisibilityForSale), Requester{ID: "fan-1"})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, recorder.allowed)
	assert.Equal(t, []string{ReasonPublic, ReasonDenied}, recorder.reasons)
}
