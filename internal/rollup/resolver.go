package rollup

import (
	"sort"
	"strings"

	"affrollup/internal/domain"
)

// UngroupedStrategy decides the bucket of a product no custom group matched, when the
// Arsenal enables autoGroupUngrouped.
type UngroupedStrategy interface {
	Group(productName string) (key, label string)
}

// NormalizedNameStrategy folds case and whitespace so that spelling variants of the same
// product name share a bucket. It does not attempt fuzzy similarity.
type NormalizedNameStrategy struct{}

func (NormalizedNameStrategy) Group(productName string) (string, string) {
	label := strings.Join(strings.Fields(productName), " ")
	return strings.ToLower(label), label
}

// Resolver classifies records against one Arsenal snapshot.
type Resolver struct {
	groups         []domain.CustomProductGroup
	autoGroup      bool
	showIndividual bool
	fallback       UngroupedStrategy
}

// NewResolver copies the active groups of the arsenal and orders them (and their offers)
// by ascending order, keeping slice position for ties. A nil arsenal resolves everything
// ungrouped. A nil fallback defaults to NormalizedNameStrategy.
func NewResolver(arsenal *domain.Arsenal, fallback UngroupedStrategy) *Resolver {
	if fallback == nil {
		fallback = NormalizedNameStrategy{}
	}
	r := &Resolver{fallback: fallback}
	if arsenal == nil {
		return r
	}

	snapshot := arsenal.Clone()
	r.autoGroup = snapshot.Config.AutoGroupUngrouped
	r.showIndividual = snapshot.Config.ShowIndividualProducts

	for _, g := range snapshot.CustomGroups {
		if !g.IsActive {
			continue
		}
		sort.SliceStable(g.Offers, func(i, j int) bool {
			return g.Offers[i].Order < g.Offers[j].Order
		})
		r.groups = append(r.groups, g)
	}
	sort.SliceStable(r.groups, func(i, j int) bool {
		return r.groups[i].Order < r.groups[j].Order
	})

	return r
}

func (r *Resolver) ShowIndividualProducts() bool {
	return r.showIndividual
}

// Resolve classifies a record by its product name.
func (r *Resolver) Resolve(rec domain.TransactionRecord) domain.Classification {
	return r.Classify(rec.ProductName)
}

// Classify returns the first matching group and, inside it, the first matching offer.
// A product matched by a group but none of its offers stays on the group with no offer.
func (r *Resolver) Classify(productName string) domain.Classification {
	for _, g := range r.groups {
		if !MatchesAny(g.MatchRules, productName) {
			continue
		}

		c := domain.Classification{
			GroupKey:  g.ID,
			GroupName: g.Name,
			IsGrouped: true,
		}
		for _, o := range g.Offers {
			if MatchesAny(o.MatchRules, productName) {
				offerKey := o.ID
				c.OfferKey = &offerKey
				c.OfferName = o.Name
				c.OfferType = o.OfferType
				break
			}
		}
		return c
	}

	if r.autoGroup {
		key, label := r.fallback.Group(productName)
		return domain.Classification{GroupKey: key, GroupName: label}
	}

	return domain.Classification{GroupKey: productName, GroupName: productName}
}
