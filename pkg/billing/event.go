package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Processor event types the reconciler understands.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
)

// Event is a verified, decoded webhook event. The set of implementations is
// closed: SubscriptionCreated, SubscriptionUpdated, SubscriptionDeleted,
// PaymentSucceeded, PaymentFailed and UnrecognizedEvent.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// EventMeta is common to every event.
type EventMeta struct {
	ID        string
	Type      string
	Env       Environment
	CreatedAt time.Time
}

func (m EventMeta) Meta() EventMeta { return m }

type SubscriptionCreated struct {
	EventMeta
	Subscription RemoteSubscription
}

type SubscriptionUpdated struct {
	EventMeta
	Subscription RemoteSubscription
}

type SubscriptionDeleted struct {
	EventMeta
	Subscription RemoteSubscription
}

type PaymentSucceeded struct {
	EventMeta
	Payment RemotePayment
}

type PaymentFailed struct {
	EventMeta
	Payment RemotePayment
}

// UnrecognizedEvent is any verified event whose type has no handler.
type UnrecognizedEvent struct {
	EventMeta
}

func (SubscriptionCreated) isEvent() {}
func (SubscriptionUpdated) isEvent() {}
func (SubscriptionDeleted) isEvent() {}
func (PaymentSucceeded) isEvent()    {}
func (PaymentFailed) isEvent()       {}
func (UnrecognizedEvent) isEvent()   {}

// RemotePayment is a payment attempt as reported by the processor.
type RemotePayment struct {
	ID          string
	CustomerID  string
	AmountMinor int64
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// DecodeEvent turns the data.object of a verified webhook into a typed
// Event. Only the fields the lifecycle needs are read, so additions to the
// processor's object schema do not break decoding.
func DecodeEvent(meta EventMeta, object json.RawMessage) (Event, error) {
	switch meta.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		sub, err := decodeSubscription(object)
		if err != nil {
			return nil, err
		}
		switch meta.Type {
		case EventSubscriptionCreated:
			return SubscriptionCreated{EventMeta: meta, Subscription: sub}, nil
		case EventSubscriptionUpdated:
			return SubscriptionUpdated{EventMeta: meta, Subscription: sub}, nil
		default:
			return SubscriptionDeleted{EventMeta: meta, Subscription: sub}, nil
		}

	case EventPaymentSucceeded, EventPaymentFailed:
		p, err := decodePayment(object)
		if err != nil {
			return nil, err
		}
		if meta.Type == EventPaymentSucceeded {
			return PaymentSucceeded{EventMeta: meta, Payment: p}, nil
		}
		return PaymentFailed{EventMeta: meta, Payment: p}, nil

	default:
		return UnrecognizedEvent{EventMeta: meta}, nil
	}
}

type wirePeriod struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type wireSubscription struct {
	ID       string          `json:"id"`
	Customer json.RawMessage `json:"customer"`
	Status   string          `json:"status"`
	CancelAt *int64          `json:"cancel_at"`
	wirePeriod
	Items struct {
		Data []wirePeriod `json:"data"`
	} `json:"items"`
}

type wirePaymentIntent struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Customer json.RawMessage `json:"customer"`
	Status   string          `json:"status"`
	Created  int64           `json:"created"`
}

func decodeSubscription(object json.RawMessage) (RemoteSubscription, error) {
	var w wireSubscription
	if err := json.Unmarshal(object, &w); err != nil {
		return RemoteSubscription{}, errors.Join(ErrMalformedEvent, err)
	}
	if w.ID == "" {
		return RemoteSubscription{}, errors.Join(ErrMalformedEvent, errors.New("subscription id is missing"))
	}
	customerID, err := expandableID(w.Customer)
	if err != nil {
		return RemoteSubscription{}, errors.Join(ErrMalformedEvent, err)
	}

	// newer API versions moved the billing period onto subscription items
	period := w.wirePeriod
	if period.CurrentPeriodEnd == 0 && len(w.Items.Data) > 0 {
		period = w.Items.Data[0]
	}

	sub := RemoteSubscription{
		ID:            w.ID,
		CustomerID:    customerID,
		Status:        w.Status,
		PeriodStartAt: unixTime(period.CurrentPeriodStart),
		PeriodEndAt:   unixTime(period.CurrentPeriodEnd),
	}
	if w.CancelAt != nil && *w.CancelAt > 0 {
		at := unixTime(*w.CancelAt)
		sub.CancelAt = &at
	}
	return sub, nil
}

func decodePayment(object json.RawMessage) (RemotePayment, error) {
	var w wirePaymentIntent
	if err := json.Unmarshal(object, &w); err != nil {
		return RemotePayment{}, errors.Join(ErrMalformedEvent, err)
	}
	if w.ID == "" {
		return RemotePayment{}, errors.Join(ErrMalformedEvent, errors.New("payment intent id is missing"))
	}
	customerID, err := expandableID(w.Customer)
	if err != nil {
		return RemotePayment{}, errors.Join(ErrMalformedEvent, err)
	}
	return RemotePayment{
		ID:          w.ID,
		CustomerID:  customerID,
		AmountMinor: w.Amount,
		Currency:    w.Currency,
		Status:      w.Status,
		CreatedAt:   unixTime(w.Created),
	}, nil
}

// expandableID reads a reference that is either an id string or an
// expanded object with an "id" field. null and absent values yield "".
func expandableID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		err := json.Unmarshal(raw, &id)
		return id, err
	}
	var obj struct {
		ID string `json:"id"`
	}
	err := json.Unmarshal(raw, &obj)
	return obj.ID, err
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
