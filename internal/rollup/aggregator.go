package rollup

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"affrollup/internal/domain"
)

// NoAffiliateKey buckets rows without an affiliate
const NoAffiliateKey = "(direct)"

// BucketKey identifies a bucket and carries the labels shown for it. Buckets are told apart by
// ID; Key is the display key. ID defaults to Key.
type BucketKey struct {
	ID        string
	Key       string
	Label     string
	GroupKey  string
	GroupName string
	OfferKey  string
	OfferName string
	OfferType domain.OfferType
}

type KeyFunc func(rec domain.TransactionRecord) BucketKey

// bucketID joins key parts with NUL so that a product name containing the display separator
// can never land in another bucket. grouped keeps arsenal groups apart from verbatim names.
func bucketID(grouped bool, parts ...string) string {
	scope := "u"
	if grouped {
		scope = "g"
	}
	return scope + "\x00" + strings.Join(parts, "\x00")
}

func (k BucketKey) identity() string {
	if k.ID != "" {
		return k.ID
	}
	return k.Key
}

func ByAffiliate() KeyFunc {
	return func(rec domain.TransactionRecord) BucketKey {
		id := rec.Affiliate()
		if id == "" {
			id = NoAffiliateKey
		}
		return BucketKey{Key: id, Label: id}
	}
}

// ByProduct groups by Arsenal group. With showIndividualProducts each product keeps its own
// row, labelled with its group.
func ByProduct(r *Resolver) KeyFunc {
	return func(rec domain.TransactionRecord) BucketKey {
		c := r.Resolve(rec)
		k := BucketKey{
			ID:        bucketID(c.IsGrouped, c.GroupKey),
			Key:       c.GroupKey,
			Label:     c.GroupName,
			GroupKey:  c.GroupKey,
			GroupName: c.GroupName,
		}
		if c.IsGrouped && r.ShowIndividualProducts() {
			k.ID = bucketID(true, c.GroupKey, "", rec.ProductName)
			k.Key = c.GroupKey + "/" + rec.ProductName
			k.Label = rec.ProductName
		}
		return k
	}
}

// ByOffer splits each group into its offers; rows with no offer land on the group's main row.
func ByOffer(r *Resolver) KeyFunc {
	return func(rec domain.TransactionRecord) BucketKey {
		c := r.Resolve(rec)
		k := BucketKey{
			ID:        bucketID(c.IsGrouped, c.GroupKey),
			Key:       c.GroupKey,
			Label:     c.GroupName,
			GroupKey:  c.GroupKey,
			GroupName: c.GroupName,
		}
		if c.OfferKey != nil {
			k.ID = bucketID(true, c.GroupKey, *c.OfferKey)
			k.Key = c.GroupKey + "/" + *c.OfferKey
			k.Label = c.GroupName + " / " + c.OfferName
			k.OfferKey = *c.OfferKey
			k.OfferName = c.OfferName
			k.OfferType = c.OfferType
		}
		return k
	}
}

// ByItem groups by the raw product, ignoring the Arsenal.
func ByItem() KeyFunc {
	return func(rec domain.TransactionRecord) BucketKey {
		key := rec.ProductID
		if key == "" {
			key = rec.ProductName
		}
		return BucketKey{Key: key, Label: rec.ProductName}
	}
}

// KeyFuncFor returns the key function of a report dimension.
func KeyFuncFor(dim domain.Dimension, r *Resolver) (KeyFunc, error) {
	switch dim {
	case domain.DimensionAffiliate:
		return ByAffiliate(), nil
	case domain.DimensionProduct:
		return ByProduct(r), nil
	case domain.DimensionOffer:
		return ByOffer(r), nil
	case domain.DimensionItem:
		return ByItem(), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDimension, dim)
	}
}

type bucket struct {
	id        string
	metrics   domain.AggregateMetrics
	customers map[string]struct{}
	firstSeen int
}

// Rollup is the result of one aggregation pass. Buckets keep first-seen order.
type Rollup struct {
	buckets []*bucket
	index   map[string]int
}

func newRollup() *Rollup {
	return &Rollup{index: make(map[string]int)}
}

func (r *Rollup) Len() int {
	return len(r.buckets)
}

// Metrics returns a copy of every bucket in first-seen order
func (r *Rollup) Metrics() []domain.AggregateMetrics {
	out := make([]domain.AggregateMetrics, len(r.buckets))
	for i, b := range r.buckets {
		out[i] = b.snapshot()
	}
	return out
}

// Get returns the first bucket whose display key is key
func (r *Rollup) Get(key string) (domain.AggregateMetrics, bool) {
	for _, b := range r.buckets {
		if b.metrics.Key == key {
			return b.snapshot(), true
		}
	}
	return domain.AggregateMetrics{}, false
}

func (b *bucket) snapshot() domain.AggregateMetrics {
	m := b.metrics
	m.UniqueCustomerCount = len(b.customers)
	return m
}

func (r *Rollup) bucketFor(k BucketKey, seen int) *bucket {
	id := k.identity()
	if i, ok := r.index[id]; ok {
		return r.buckets[i]
	}
	b := &bucket{
		id: id,
		metrics: domain.AggregateMetrics{
			Key:       k.Key,
			Label:     k.Label,
			GroupKey:  k.GroupKey,
			GroupName: k.GroupName,
			OfferKey:  k.OfferKey,
			OfferName: k.OfferName,
			OfferType: k.OfferType,
		},
		customers: make(map[string]struct{}),
		firstSeen: seen,
	}
	r.index[id] = len(r.buckets)
	r.buckets = append(r.buckets, b)
	return b
}

// Aggregate folds records into buckets in a single left-to-right pass.
func Aggregate(records []domain.TransactionRecord, keyFn KeyFunc) *Rollup {
	r := newRollup()
	for i, rec := range records {
		r.bucketFor(keyFn(rec), i).accumulate(rec)
	}
	return r
}

func (b *bucket) accumulate(rec domain.TransactionRecord) {
	m := &b.metrics

	switch {
	case rec.IsCompletedSale():
		gross := rec.GrossAmount
		m.SalesCount++
		m.UnitsSold += rec.Quantity
		m.TotalRevenue = m.TotalRevenue.Add(gross)
		m.CommissionPaid = m.CommissionPaid.Add(domain.Amount(rec.AffiliateCommission))
		m.Taxes = m.Taxes.Add(domain.Amount(rec.TaxAmount))
		m.PlatformFeePercentAmount = m.PlatformFeePercentAmount.Add(gross.Mul(domain.Amount(rec.PlatformFeePercent)))
		m.PlatformFeeFixedAmount = m.PlatformFeeFixedAmount.Add(domain.Amount(rec.PlatformFeeFixed))
		if rec.ProductCogsPerUnit.Valid {
			m.Cogs = m.Cogs.Add(rec.ProductCogsPerUnit.Decimal.Mul(decimal.NewFromInt(int64(rec.Quantity))))
		}
	case rec.Type.IsRefundLike():
		m.RefundCount++
		if rec.Type == domain.TypeChargeback {
			m.ChargebackCount++
		}
		m.RefundsAndChargebacksCost = m.RefundsAndChargebacksCost.Add(RefundCost(rec))
		return
	case rec.Type == domain.TypeRebill:
		m.RebillCount++
	}

	if id := rec.Customer(); id != "" {
		b.customers[id] = struct{}{}
	}
}

// AggregateSharded partitions records by bucket key across workers and merges the shards
// back in first-seen order. The result is identical to Aggregate.
func AggregateSharded(records []domain.TransactionRecord, keyFn KeyFunc, workers int) *Rollup {
	if workers <= 1 || len(records) < workers {
		return Aggregate(records, keyFn)
	}

	keys := make([]BucketKey, len(records))
	shards := make([][]int, workers)
	for i, rec := range records {
		keys[i] = keyFn(rec)
		s := shardOf(keys[i].identity(), workers)
		shards[s] = append(shards[s], i)
	}

	partials := make([]*Rollup, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			part := newRollup()
			for _, i := range shards[w] {
				part.bucketFor(keys[i], i).accumulate(records[i])
			}
			partials[w] = part
		})
	}
	wg.Wait()

	merged := newRollup()
	for _, part := range partials {
		merged.buckets = append(merged.buckets, part.buckets...)
	}
	sort.Slice(merged.buckets, func(i, j int) bool {
		return merged.buckets[i].firstSeen < merged.buckets[j].firstSeen
	})
	for i, b := range merged.buckets {
		merged.index[b.id] = i
	}
	return merged
}

func shardOf(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
