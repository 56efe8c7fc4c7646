/*
Package leave implements CSC leave-credit rules on top of the generic ledger.

PURPOSE:
  Knows which leave categories exist, who may use them, how credits are
  earned every month, how requests deduct and refund them, and which grants
  forfeit after one year.

KEY CONCEPTS IN THIS FILE (category.go):
  - Category: A leave type, also the ledger ResourceType
  - CategoryPolicy: Credit, allotment, carry-over and eligibility attributes
  - Registry: Read-only catalog consulted by every operation

CSC CATALOG:
  Category            Credit  Allotment  Cumulative  Commutable  Expires  Who
  vacation            yes     15/yr      yes         yes         no       all
  sick                yes     15/yr      yes         yes         no       all
  mandatory           yes     5/yr       no          no          1 year   all
  special_privilege   yes     3/yr       no          no          1 year   all
  cto                 yes     earned     no          no          1 year   all
  solo_parent         yes     7/yr       no          no          no       solo parents
  service_credit      yes     earned     yes         no          no       all
  maternity           no      105        -           -           -        female
  paternity           no      7          -           -           -        male
  ...

SEE ALSO:
  - employee.go: Eligibility checks against a CategoryPolicy
  - factory/catalog.go: Loading an alternative catalog from JSON
*/
package leave

import (
	"fmt"
	"sort"

	"github.com/govhr/leave-engine/generic"
)

// =============================================================================
// CATEGORY - The leave resource type
// =============================================================================

type Category string

func (c Category) ResourceID() string     { return string(c) }
func (c Category) ResourceDomain() string { return Domain }

var _ generic.ResourceType = Category("")

const Domain = "leave"

const (
	Vacation          Category = "vacation"
	Sick              Category = "sick"
	Mandatory         Category = "mandatory"
	SpecialPrivilege  Category = "special_privilege"
	CTO               Category = "cto"
	SoloParent        Category = "solo_parent"
	ServiceCredit     Category = "service_credit"
	Maternity         Category = "maternity"
	Paternity         Category = "paternity"
	SpecialLeaveWomen Category = "special_leave_women"
	VAWC              Category = "vawc"
	Rehabilitation    Category = "rehabilitation"
	Study             Category = "study"
	Adoption          Category = "adoption"
	Calamity          Category = "calamity"
	WithoutPay        Category = "without_pay"
)

type Gender string

const (
	GenderAny    Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// =============================================================================
// CATEGORY POLICY
// =============================================================================

type CategoryPolicy struct {
	Category    Category
	DisplayName string

	// RequiresCredit categories keep a balance and are checked on submission.
	RequiresCredit bool

	// AnnualAllotment is the yearly entitlement for credit categories. For
	// non-credit categories it caps the working days of a single request.
	// Zero means uncapped.
	AnnualAllotment generic.Amount

	Cumulative bool
	Commutable bool

	Gender         Gender
	SoloParentOnly bool

	// ExpiresAfterYear grants forfeit one calendar year after grant date.
	ExpiresAfterYear bool

	// ResetsAnnually balances are overwritten with AnnualAllotment by the
	// January accrual run.
	ResetsAnnually bool

	// RefundOnCancel returns deducted credits when a pending request is
	// cancelled or finally rejected.
	RefundOnCancel bool
}

// Capped reports whether single requests are limited by AnnualAllotment.
func (p CategoryPolicy) Capped() bool {
	return !p.RequiresCredit && p.AnnualAllotment.IsPositive()
}

func creditPolicy(c Category, name string, allotment float64) CategoryPolicy {
	return CategoryPolicy{
		Category:        c,
		DisplayName:     name,
		RequiresCredit:  true,
		AnnualAllotment: generic.Days(allotment),
		RefundOnCancel:  true,
	}
}

func unpaidPolicy(c Category, name string, limit float64) CategoryPolicy {
	return CategoryPolicy{
		Category:        c,
		DisplayName:     name,
		AnnualAllotment: generic.Days(limit),
	}
}

// DefaultPolicies is the CSC catalog.
func DefaultPolicies() []CategoryPolicy {
	vacation := creditPolicy(Vacation, "Vacation Leave", 15)
	vacation.Cumulative, vacation.Commutable = true, true

	sick := creditPolicy(Sick, "Sick Leave", 15)
	sick.Cumulative, sick.Commutable = true, true

	mandatory := creditPolicy(Mandatory, "Mandatory/Forced Leave", 5)
	mandatory.ExpiresAfterYear = true

	slp := creditPolicy(SpecialPrivilege, "Special Privilege Leave", 3)
	slp.ExpiresAfterYear, slp.ResetsAnnually = true, true

	cto := creditPolicy(CTO, "Compensatory Time-Off", 0)
	cto.ExpiresAfterYear = true

	solo := creditPolicy(SoloParent, "Solo Parent Leave", 7)
	solo.SoloParentOnly, solo.ResetsAnnually = true, true

	service := creditPolicy(ServiceCredit, "Service Credits", 0)
	service.Cumulative = true

	maternity := unpaidPolicy(Maternity, "Maternity Leave", 105)
	maternity.Gender = GenderFemale
	paternity := unpaidPolicy(Paternity, "Paternity Leave", 7)
	paternity.Gender = GenderMale
	women := unpaidPolicy(SpecialLeaveWomen, "Special Leave Benefits for Women", 60)
	women.Gender = GenderFemale
	vawc := unpaidPolicy(VAWC, "10-Day VAWC Leave", 10)
	vawc.Gender = GenderFemale

	return []CategoryPolicy{
		vacation, sick, mandatory, slp, cto, solo, service,
		maternity, paternity, women, vawc,
		unpaidPolicy(Rehabilitation, "Rehabilitation Privilege", 0),
		unpaidPolicy(Study, "Study Leave", 0),
		unpaidPolicy(Adoption, "Adoption Leave", 60),
		unpaidPolicy(Calamity, "Special Emergency (Calamity) Leave", 5),
		unpaidPolicy(WithoutPay, "Leave Without Pay", 0),
	}
}

func init() {
	for _, p := range DefaultPolicies() {
		generic.RegisterResource(p.Category)
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the read-only category catalog. Build it once at startup.
type Registry struct {
	policies map[Category]CategoryPolicy
	order    []Category
}

func NewRegistry(policies []CategoryPolicy) (*Registry, error) {
	r := &Registry{policies: make(map[Category]CategoryPolicy, len(policies))}
	for _, p := range policies {
		if p.Category == "" {
			return nil, fmt.Errorf("%w: empty category name", ErrInvalidCategory)
		}
		if _, dup := r.policies[p.Category]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidCategory, p.Category)
		}
		if p.AnnualAllotment.Unit == "" {
			p.AnnualAllotment = generic.Days(0)
		}
		if p.AnnualAllotment.IsNegative() {
			return nil, fmt.Errorf("%w: %s has negative allotment", ErrInvalidCategory, p.Category)
		}
		if !p.RequiresCredit && (p.ExpiresAfterYear || p.ResetsAnnually || p.RefundOnCancel) {
			return nil, fmt.Errorf("%w: %s keeps no balance but has balance rules", ErrInvalidCategory, p.Category)
		}
		if p.ResetsAnnually && !p.AnnualAllotment.IsPositive() {
			return nil, fmt.Errorf("%w: %s resets annually without an allotment", ErrInvalidCategory, p.Category)
		}
		r.policies[p.Category] = p
		r.order = append(r.order, p.Category)
		generic.RegisterResource(p.Category)
	}
	return r, nil
}

// DefaultRegistry returns the CSC catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultPolicies())
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a category name.
func (r *Registry) Lookup(name string) (CategoryPolicy, error) {
	p, ok := r.policies[Category(name)]
	if !ok {
		return CategoryPolicy{}, fmt.Errorf("%w: %q", ErrInvalidCategory, name)
	}
	return p, nil
}

func (r *Registry) Policy(c Category) (CategoryPolicy, bool) {
	p, ok := r.policies[c]
	return p, ok
}

// All returns policies in catalog order.
func (r *Registry) All() []CategoryPolicy {
	out := make([]CategoryPolicy, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.policies[c])
	}
	return out
}

// CreditCategories lists categories that keep a balance, in catalog order.
func (r *Registry) CreditCategories() []Category {
	var out []Category
	for _, c := range r.order {
		if r.policies[c].RequiresCredit {
			out = append(out, c)
		}
	}
	return out
}

// ExpiringCategories lists categories with one-year grants, sorted by name.
func (r *Registry) ExpiringCategories() []Category {
	var out []Category
	for c, p := range r.policies {
		if p.ExpiresAfterYear {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
