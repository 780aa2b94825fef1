package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blingsync/backend/internal/domain/shared"
)

// RuleScope identifies what a pricing rule applies to
type RuleScope string

const (
	// ScopeCategory applies a markup to every product in a category
	ScopeCategory RuleScope = "category"
	// ScopeProduct overrides the computed price for a single product
	ScopeProduct RuleScope = "product"
)

// Rule adjusts the price derived from the remote value. Category rules
// replace the global markup for their category; product rules take
// precedence over everything and pin the price to FixedPrice when set,
// otherwise apply their own markup.
type Rule struct {
	shared.TenantEntity
	Scope         RuleScope
	TargetID      string
	MarkupPercent decimal.Decimal
	FixedPrice    *decimal.Decimal
	Enabled       bool
}

// NewRule creates an enabled pricing rule
func NewRule(tenantID uuid.UUID, scope RuleScope, targetID string, markupPercent decimal.Decimal) *Rule {
	return &Rule{
		TenantEntity:  shared.NewTenantEntity(tenantID),
		Scope:         scope,
		TargetID:      targetID,
		MarkupPercent: markupPercent,
		Enabled:       true,
	}
}

// RuleRepository defines the persistence interface for pricing rules
type RuleRepository interface {
	Save(ctx context.Context, r *Rule) error
	FindEnabledByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Rule, error)
}

// Policy resolves the final local price for a remote price through the
// rule chain: global markup, then category rule, then product override.
type Policy struct {
	// GlobalMarkupPercent comes from the tenant connection settings
	GlobalMarkupPercent decimal.Decimal
	categoryRules       map[string]*Rule
	productRules        map[string]*Rule
}

// NewPolicy builds the lookup maps from a tenant's enabled rules
func NewPolicy(globalMarkup decimal.Decimal, rules []*Rule) *Policy {
	p := &Policy{
		GlobalMarkupPercent: globalMarkup,
		categoryRules:       make(map[string]*Rule),
		productRules:        make(map[string]*Rule),
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		switch r.Scope {
		case ScopeCategory:
			p.categoryRules[r.TargetID] = r
		case ScopeProduct:
			p.productRules[r.TargetID] = r
		}
	}
	return p
}

// Resolve computes the local price for a product. Product rules win over
// category rules, which win over the global markup. The result is rounded
// to 2 decimal places.
func (p *Policy) Resolve(productID, categoryID string, remotePrice decimal.Decimal) decimal.Decimal {
	if r, ok := p.productRules[productID]; ok {
		if r.FixedPrice != nil {
			return r.FixedPrice.Round(2)
		}
		return applyMarkup(remotePrice, r.MarkupPercent)
	}
	if r, ok := p.categoryRules[categoryID]; ok {
		return applyMarkup(remotePrice, r.MarkupPercent)
	}
	return applyMarkup(remotePrice, p.GlobalMarkupPercent)
}

func applyMarkup(price, markupPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(decimal.NewFromInt(100)))
	return price.Mul(factor).Round(2)
}
