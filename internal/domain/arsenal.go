package domain

import "time"

// MatchRuleType is the tag of a match rule. Only contains is defined today.
type MatchRuleType string

const (
	MatchContains MatchRuleType = "contains"
)

func (t MatchRuleType) IsValid() bool {
	switch t {
	case MatchContains:
		return true
	default:
		return false
	}
}

type MatchRule struct {
	Type          MatchRuleType `json:"type" yaml:"type"`
	Value         string        `json:"value" yaml:"value"`
	CaseSensitive bool          `json:"caseSensitive" yaml:"caseSensitive"`
}

type OfferType string

const (
	OfferUpsell    OfferType = "UPSELL"
	OfferDownsell  OfferType = "DOWNSELL"
	OfferOrderBump OfferType = "ORDER_BUMP"
)

func (t OfferType) IsValid() bool {
	switch t {
	case OfferUpsell, OfferDownsell, OfferOrderBump:
		return true
	default:
		return false
	}
}

type OfferRule struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	OfferType  OfferType   `json:"offerType" yaml:"offerType"`
	MatchRules []MatchRule `json:"matchRules" yaml:"matchRules"`
	Order      int         `json:"order" yaml:"order"`
}

type CustomProductGroup struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	MatchRules []MatchRule `json:"matchRules" yaml:"matchRules"`
	Offers     []OfferRule `json:"offers" yaml:"offers"`
	Order      int         `json:"order" yaml:"order"`
	IsActive   bool        `json:"isActive" yaml:"isActive"`
}

type ArsenalConfig struct {
	AutoGroupUngrouped     bool `json:"autoGroupUngrouped" yaml:"autoGroupUngrouped"`
	ShowIndividualProducts bool `json:"showIndividualProducts" yaml:"showIndividualProducts"`
}

// Arsenal is a user-owned grouping configuration. The engine reads it as an immutable snapshot.
type Arsenal struct {
	ID           string               `json:"id" yaml:"id"`
	UserID       string               `json:"userId" yaml:"userId"`
	Name         string               `json:"name" yaml:"name"`
	CustomGroups []CustomProductGroup `json:"customGroups" yaml:"customGroups"`
	Config       ArsenalConfig        `json:"config" yaml:"config"`
	IsActive     bool                 `json:"isActive" yaml:"isActive"`
	CreatedAt    time.Time            `json:"createdAt" yaml:"-"`
	UpdatedAt    time.Time            `json:"updatedAt" yaml:"-"`
}

// Clone returns a deep copy so stores and callers never share slices.
func (a Arsenal) Clone() Arsenal {
	out := a
	if a.CustomGroups == nil {
		return out
	}
	out.CustomGroups = make([]CustomProductGroup, len(a.CustomGroups))
	for i, g := range a.CustomGroups {
		g.MatchRules = append([]MatchRule(nil), g.MatchRules...)
		if g.Offers != nil {
			offers := make([]OfferRule, len(g.Offers))
			for j, o := range g.Offers {
				o.MatchRules = append([]MatchRule(nil), o.MatchRules...)
				offers[j] = o
			}
			g.Offers = offers
		}
		out.CustomGroups[i] = g
	}
	return out
}

// Classification is the resolved grouping of one record
type Classification struct {
	GroupKey  string    `json:"group_key"`
	GroupName string    `json:"group_name"`
	OfferKey  *string   `json:"offer_key,omitempty"`
	OfferName string    `json:"offer_name,omitempty"`
	OfferType OfferType `json:"offer_type,omitempty"`
	IsGrouped bool      `json:"is_grouped"`
}
