package service

import (
	"context"
	"errors"
	"testing"

	"prs/internal/apperror"
	"prs/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCreateLineItemRecomputesTotal(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	pens := env.seedProduct(t, "Pens", "2.50")
	req := env.newRequest(t, alice)

	item := env.addItem(t, alice, req.ID, paper, 3)
	assert.Equal(t, "30.00", env.request(t, req.ID).Total.StringFixed(2))
	require.NotNil(t, item.Product)
	assert.Equal(t, "Paper", item.Product.Name)

	env.addItem(t, alice, req.ID, pens, 2)
	assert.Equal(t, "35.00", env.request(t, req.ID).Total.StringFixed(2))
	assert.Len(t, env.notifier.named(EventRequestTotalChanged), 2)
}

func TestCreateLineItemRejectsBadQuantity(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	req := env.newRequest(t, alice)

	for _, qty := range []int{0, -2} {
		_, err := env.lineItems.CreateLineItem(context.Background(), alice, CreateLineItemDTO{
			RequestID: uintPtr(req.ID),
			ProductID: uintPtr(paper),
			Quantity:  qty,
		})
		requireKind(t, err, apperror.KindValidation)
	}
	assert.Empty(t, env.store.lineItems)
}

func TestCreateLineItemDuplicateProduct(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	req := env.newRequest(t, alice)
	env.addItem(t, alice, req.ID, paper, 1)

	_, err := env.lineItems.CreateLineItem(context.Background(), alice, CreateLineItemDTO{
		RequestID: uintPtr(req.ID),
		ProductID: uintPtr(paper),
		Quantity:  4,
	})
	requireKind(t, err, apperror.KindConflict)
	assert.Equal(t, "10.00", env.request(t, req.ID).Total.StringFixed(2))
}

func TestCreateLineItemUnknownReferences(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	req := env.newRequest(t, alice)

	_, err := env.lineItems.CreateLineItem(context.Background(), alice, CreateLineItemDTO{
		RequestID: uintPtr(777), ProductID: uintPtr(paper), Quantity: 1,
	})
	requireKind(t, err, apperror.KindNotFound)

	_, err = env.lineItems.CreateLineItem(context.Background(), alice, CreateLineItemDTO{
		RequestID: uintPtr(req.ID), ProductID: uintPtr(888), Quantity: 1,
	})
	requireKind(t, err, apperror.KindNotFound)
}

func TestLineItemWithoutProductContributesNothing(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	req := env.newRequest(t, alice)

	item, err := env.lineItems.CreateLineItem(context.Background(), alice, CreateLineItemDTO{
		RequestID: uintPtr(req.ID), Quantity: 5,
	})
	require.NoError(t, err)
	assert.Nil(t, item.ProductID)
	assert.True(t, env.request(t, req.ID).Total.IsZero())
}

func TestUpdateLineItemMovesBetweenRequests(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	first := env.newRequest(t, alice)
	second := env.newRequest(t, alice)
	item := env.addItem(t, alice, first.ID, paper, 2)

	updated, err := env.lineItems.UpdateLineItem(context.Background(), alice, item.ID, UpdateLineItemDTO{
		ID:        item.ID,
		RequestID: uintPtr(second.ID),
		ProductID: uintPtr(paper),
		Quantity:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, *updated.RequestID)

	assert.True(t, env.request(t, first.ID).Total.IsZero())
	assert.Equal(t, "50.00", env.request(t, second.ID).Total.StringFixed(2))
}

func TestUpdateLineItemChecksIdentity(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	req := env.newRequest(t, alice)
	item := env.addItem(t, alice, req.ID, paper, 2)

	_, err := env.lineItems.UpdateLineItem(context.Background(), alice, item.ID, UpdateLineItemDTO{
		ID: item.ID + 100, RequestID: uintPtr(req.ID), ProductID: uintPtr(paper), Quantity: 1,
	})
	requireKind(t, err, apperror.KindConflict)

	_, err = env.lineItems.UpdateLineItem(context.Background(), alice, 5000, UpdateLineItemDTO{
		ID: 5000, RequestID: uintPtr(req.ID), ProductID: uintPtr(paper), Quantity: 1,
	})
	requireKind(t, err, apperror.KindNotFound)

	_, err = env.lineItems.UpdateLineItem(context.Background(), alice, item.ID, UpdateLineItemDTO{
		ID: item.ID, RequestID: uintPtr(req.ID), ProductID: uintPtr(paper), Quantity: 0,
	})
	requireKind(t, err, apperror.KindValidation)
	assert.Equal(t, "20.00", env.request(t, req.ID).Total.StringFixed(2))
}

func TestDeleteLineItemRemovesContribution(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	pens := env.seedProduct(t, "Pens", "2.50")
	req := env.newRequest(t, alice)
	env.addItem(t, alice, req.ID, paper, 1)
	pensItem := env.addItem(t, alice, req.ID, pens, 4)
	require.Equal(t, "20.00", env.request(t, req.ID).Total.StringFixed(2))

	require.NoError(t, env.lineItems.DeleteLineItem(context.Background(), alice, pensItem.ID))
	assert.Equal(t, "10.00", env.request(t, req.ID).Total.StringFixed(2))

	err := env.lineItems.DeleteLineItem(context.Background(), alice, pensItem.ID)
	requireKind(t, err, apperror.KindNotFound)
}

// movingLineItemRepo moves the item to another request right after the first
// lookup returns, so the caller acts on a stale owner.
type movingLineItemRepo struct {
	fakeLineItemRepo
	move  func()
	moved bool
}

func (r *movingLineItemRepo) FindByID(ctx context.Context, id uint) (*model.LineItem, error) {
	item, err := r.fakeLineItemRepo.FindByID(ctx, id)
	if err == nil && !r.moved {
		r.moved = true
		r.move()
	}
	return item, err
}

func TestDeleteLineItemDetectsConcurrentMove(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	first := env.newRequest(t, alice)
	second := env.newRequest(t, alice)
	item := env.addItem(t, alice, first.ID, paper, 3)
	ctx := context.Background()

	repo := &movingLineItemRepo{fakeLineItemRepo: fakeLineItemRepo{env.store}}
	repo.move = func() {
		_, err := env.lineItems.UpdateLineItem(ctx, alice, item.ID, UpdateLineItemDTO{
			ID: item.ID, RequestID: uintPtr(second.ID), ProductID: uintPtr(paper), Quantity: 3,
		})
		require.NoError(t, err)
	}
	requestRepo := fakeRequestRepo{env.store}
	productRepo := fakeProductRepo{env.store}
	totals := NewTotalService(requestRepo, repo, productRepo, zaptest.NewLogger(t))
	racing := NewLineItemService(repo, requestRepo, productRepo, fakeAuditRepo{env.store},
		fakeTxManager{}, totals, NewRequestLocks(), env.notifier, zaptest.NewLogger(t))

	err := racing.DeleteLineItem(ctx, alice, item.ID)
	requireKind(t, err, apperror.KindConcurrencyConflict)

	// The item survives in its new request and both totals still match their items.
	assert.True(t, env.request(t, first.ID).Total.IsZero())
	assert.Equal(t, "30.00", env.request(t, second.ID).Total.StringFixed(2))

	require.NoError(t, racing.DeleteLineItem(ctx, alice, item.ID))
	assert.True(t, env.request(t, second.ID).Total.IsZero())
	_, err = env.lineItems.ListByRequest(ctx, second.ID)
	requireKind(t, err, apperror.KindNotFound)
}

func TestListByRequest(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	req := env.newRequest(t, alice)

	_, err := env.lineItems.ListByRequest(context.Background(), 4242)
	requireKind(t, err, apperror.KindNotFound)

	_, err = env.lineItems.ListByRequest(context.Background(), req.ID)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeEmptyResult, appErr.Code)

	env.addItem(t, alice, req.ID, paper, 1)
	items, err := env.lineItems.ListByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestLineItemAuditMirrorsOntoRequest(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	paper := env.seedProduct(t, "Paper", "10.00")
	req := env.newRequest(t, alice)
	item := env.addItem(t, alice, req.ID, paper, 1)
	require.NoError(t, env.lineItems.DeleteLineItem(context.Background(), alice, item.ID))

	var lineItemActions []string
	for _, l := range env.store.audits {
		if l.EntityType == model.EntityLineItem && l.EntityID == item.ID {
			lineItemActions = append(lineItemActions, l.Action)
		}
	}
	assert.Equal(t, []string{model.ActionCreateLineItem, model.ActionDeleteLineItem}, lineItemActions)

	history, err := env.audit.RequestHistory(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}
