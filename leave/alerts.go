package leave

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/govhr/leave-engine/generic"
)

// =============================================================================
// EXPIRY ALERTS
// =============================================================================

type ExpiryAlert struct {
	GrantID         string
	EmployeeID      generic.EntityID
	EmployeeName    string
	Email           string
	Category        Category
	DisplayName     string
	Remaining       generic.Amount
	Balance         generic.Amount
	ExpiryDate      generic.TimePoint
	DaysUntilExpiry int
	Severity        Severity
}

// AlertGenerator turns expiring grants into tiered alerts.
type AlertGenerator struct {
	store    Store
	registry *Registry
	ledger   *BalanceLedger
}

func NewAlertGenerator(store Store, registry *Registry, ledger *BalanceLedger) *AlertGenerator {
	return &AlertGenerator{store: store, registry: registry, ledger: ledger}
}

// Generate lists grants expiring within withinDays of asOf, classified and
// sorted soonest first. Grants outside both tiers are dropped.
func (g *AlertGenerator) Generate(ctx context.Context, asOf generic.TimePoint, withinDays int) ([]ExpiryAlert, error) {
	expiring, err := g.ledger.Expiry().ListExpiring(ctx, asOf, withinDays)
	if err != nil {
		return nil, err
	}

	employees := map[generic.EntityID]Employee{}
	var alerts []ExpiryAlert
	for _, x := range expiring {
		sev := Classify(x.DaysUntilExpiry)
		if sev == SeverityNone {
			continue
		}
		e, ok := employees[x.EmployeeID]
		if !ok {
			e, err = g.store.GetEmployee(ctx, x.EmployeeID)
			if err != nil {
				return nil, err
			}
			employees[x.EmployeeID] = e
		}
		balance, err := g.ledger.Balance(ctx, x.EmployeeID, x.Category)
		if err != nil {
			return nil, err
		}
		name := string(x.Category)
		if p, ok := g.registry.Policy(x.Category); ok {
			name = p.DisplayName
		}
		alerts = append(alerts, ExpiryAlert{
			GrantID:         x.GrantID,
			EmployeeID:      x.EmployeeID,
			EmployeeName:    e.Name,
			Email:           e.Email,
			Category:        x.Category,
			DisplayName:     name,
			Remaining:       x.Remaining,
			Balance:         balance,
			ExpiryDate:      x.ExpiryDate,
			DaysUntilExpiry: x.DaysUntilExpiry,
			Severity:        sev,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.DaysUntilExpiry != b.DaysUntilExpiry {
			return a.DaysUntilExpiry < b.DaysUntilExpiry
		}
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		return a.Category < b.Category
	})
	return alerts, nil
}

// Notification renders the alert for the notifier.
func (a ExpiryAlert) Notification(at time.Time) Notification {
	return Notification{
		Recipient: a.EmployeeID,
		Name:      a.EmployeeName,
		Email:     a.Email,
		Event:     EventCreditsExpiring,
		Details: fmt.Sprintf("%s days of %s expire on %s (%d days left, %s)",
			a.Remaining, a.DisplayName, a.ExpiryDate, a.DaysUntilExpiry, a.Severity),
		At: at,
	}
}

// =============================================================================
// NOTIFIER - Collaborator contract
// =============================================================================

type Event string

const (
	EventRequestSubmitted Event = "request_submitted"
	EventRequestCancelled Event = "request_cancelled"
	EventApprovalRecorded Event = "approval_recorded"
	EventRequestApproved  Event = "request_approved"
	EventRequestRejected  Event = "request_rejected"
	EventCreditsGranted   Event = "credits_granted"
	EventCreditsExpiring  Event = "credits_expiring"
	EventCreditsForfeited Event = "credits_forfeited"
)

type Notification struct {
	Recipient generic.EntityID
	Name      string
	Email     string
	Event     Event
	Details   string
	RequestID string
	At        time.Time
}

// Notifier delivers status-change notifications. Implementations may queue;
// the engine logs and ignores any error they return.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }
