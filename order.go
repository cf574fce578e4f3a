package flow

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

const orderPollInterval = 50 * time.Millisecond

// OrderCreator precreates the backing order through the host's own checkout processing, at most
// once per checkout attempt.
type OrderCreator struct {
	doc      page.Document
	state    *State
	backend  Backend
	store    sessionStore
	saveCard saveCardPreference
	notifier *Notifier
	settings Settings
	lockWait time.Duration
	sleep    func(context.Context, time.Duration) error
	logger   logr.Logger
}

// CreateBeforePayment returns the order for this checkout attempt, creating it when needed. A nil
// reference with a nil error means another caller held the lock and no order appeared in time.
func (c *OrderCreator) CreateBeforePayment(ctx context.Context) (*OrderReference, error) {
	if ref := c.hiddenReference(); ref != nil {
		return ref, nil
	}
	if !c.state.TryLockOrderCreation() {
		return c.waitForOrder(ctx)
	}
	c.doc.SetSubmitEnabled(false)
	defer func() {
		c.state.UnlockOrderCreation()
		c.doc.SetSubmitEnabled(true)
	}()

	if ref := c.hiddenReference(); ref != nil {
		return ref, nil
	}

	values, ok := c.doc.FormValues(page.FormCheckout)
	if !ok {
		return nil, c.fail(newError(OrderError, CodeFormMissing, msgFormNotPresent))
	}
	if values.Get(c.settings.NonceField) == "" {
		return nil, c.fail(newError(OrderError, CodeMissingNonce, msgMissingNonce))
	}
	values.Set("payment-session-id", c.doc.Hidden(HiddenSessionID))
	values.Set("save-card-persist", yesNo(c.saveCard.Resolve(ctx)))

	c.logger.V(2).Info("precreating order")
	ctx = contextWithRequestContext(ctx, &RequestContext{
		SessionKey:     c.store.sessionKey,
		IdempotencyKey: "order-" + c.store.sessionKey,
	})
	raw, err := c.backend.ProcessCheckout(ctx, values)
	if err != nil {
		return nil, c.fail(newError(OrderError, CodeNetwork, msgOrderFailed, withCause(err)))
	}
	ref, err := parseOrderResponse(raw)
	if err != nil {
		return nil, c.fail(err)
	}

	c.doc.SetHidden(HiddenOrderID, ref.OrderID)
	c.doc.SetHidden(HiddenOrderKey, ref.OrderKey)
	if err := c.store.set(ctx, keyOrderID, ref.OrderID); err != nil {
		c.logger.Error(err, "persist order id")
	}
	if err := c.store.set(ctx, keyOrderKey, ref.OrderKey); err != nil {
		c.logger.Error(err, "persist order key")
	}
	c.logger.Info("order precreated", "orderID", ref.OrderID)
	return ref, nil
}

func (c *OrderCreator) fail(err error) error {
	c.notifier.Show(err)
	return err
}

// waitForOrder polls while another caller holds the lock, then reads the hidden field once.
func (c *OrderCreator) waitForOrder(ctx context.Context) (*OrderReference, error) {
	c.logger.V(2).Info("order precreation in progress, waiting")
	for waited := time.Duration(0); waited < c.lockWait; waited += orderPollInterval {
		if ref := c.hiddenReference(); ref != nil {
			return ref, nil
		}
		if !c.state.OrderCreationInProgress() {
			break
		}
		if err := c.sleep(ctx, orderPollInterval); err != nil {
			return nil, err
		}
	}
	if ref := c.hiddenReference(); ref != nil {
		return ref, nil
	}
	c.logger.V(2).Info("no order after waiting for concurrent precreation")
	return nil, nil
}

func (c *OrderCreator) hiddenReference() *OrderReference {
	id := c.doc.Hidden(HiddenOrderID)
	if id == "" {
		return nil
	}
	return &OrderReference{OrderID: id, OrderKey: c.doc.Hidden(HiddenOrderKey)}
}

// Current returns the known order. The hidden field wins; storage is only used when it agrees
// with the hidden field or the field is gone.
func (c *OrderCreator) Current(ctx context.Context) *OrderReference {
	storedID, _, err := c.store.get(ctx, keyOrderID)
	if err != nil {
		c.logger.Error(err, "read stored order id")
	}
	storedKey, _, err := c.store.get(ctx, keyOrderKey)
	if err != nil {
		c.logger.Error(err, "read stored order key")
	}

	if ref := c.hiddenReference(); ref != nil {
		if ref.OrderKey == "" && storedID == ref.OrderID {
			ref.OrderKey = storedKey
		}
		return ref
	}
	if storedID == "" {
		return nil
	}
	return &OrderReference{OrderID: storedID, OrderKey: storedKey}
}
