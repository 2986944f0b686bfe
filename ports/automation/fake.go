package automation

import (
	"context"
	"fmt"
	"sync"
)

// Stage names used by FakeService failure injection.
const (
	StageConnect  = "connect"
	StageTerms    = "terms"
	StageLogin    = "login"
	StagePopulate = "populate"
	StageAddress  = "address"
	StageDelivery = "delivery"
	StagePayment  = "payment"
	StageSummary  = "summary"
)

// FakeService is a scripted automation backend. Set FailAt to a stage name
// to make that stage fail; everything before it succeeds.
type FakeService struct {
	mu     sync.Mutex
	calls  []string
	items  []Item
	chosen *DeliveryOption

	FailAt  string
	Options []DeliveryOption
	Details Summary
}

// NewFakeService returns a fake that succeeds at every stage and offers a
// single delivery slot.
func NewFakeService() *FakeService {
	return &FakeService{
		Options: []DeliveryOption{{Index: 0, Day: "Tomorrow", Marker: "10:00", Label: "Tomorrow from 10:00"}},
		Details: Summary{
			Address:    "Example Street 1",
			Contact:    "group@example.org",
			Payment:    "card on file",
			Packaging:  "paper bags",
			TotalPrice: "0,00",
		},
	}
}

func (f *FakeService) stage(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.FailAt == name {
		return fmt.Errorf("automation stage %s failed", name)
	}
	return nil
}

func (f *FakeService) Connect(context.Context) error     { return f.stage(StageConnect) }
func (f *FakeService) AcceptTerms(context.Context) error { return f.stage(StageTerms) }
func (f *FakeService) Login(context.Context) error       { return f.stage(StageLogin) }

func (f *FakeService) PopulateCart(_ context.Context, items []Item) error {
	if err := f.stage(StagePopulate); err != nil {
		return err
	}
	f.mu.Lock()
	f.items = append([]Item(nil), items...)
	f.mu.Unlock()
	return nil
}

func (f *FakeService) SetAddress(context.Context) error { return f.stage(StageAddress) }

func (f *FakeService) ListDeliveryOptions(context.Context) ([]DeliveryOption, error) {
	if err := f.stage(StageDelivery); err != nil {
		return nil, err
	}
	return append([]DeliveryOption(nil), f.Options...), nil
}

func (f *FakeService) SelectDeliveryOption(_ context.Context, opt DeliveryOption) error {
	f.mu.Lock()
	f.chosen = &opt
	f.mu.Unlock()
	return nil
}

func (f *FakeService) EnterPayment(context.Context) error { return f.stage(StagePayment) }

func (f *FakeService) OrderSummary(context.Context) (*Summary, error) {
	if err := f.stage(StageSummary); err != nil {
		return nil, err
	}
	s := f.Details
	return &s, nil
}

// Calls returns the stage names invoked so far, in order.
func (f *FakeService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// PopulatedItems returns the items handed to PopulateCart.
func (f *FakeService) PopulatedItems() []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Item(nil), f.items...)
}

// Chosen returns the delivery option applied, if any.
func (f *FakeService) Chosen() *DeliveryOption {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chosen
}

var _ Service = (*FakeService)(nil)
