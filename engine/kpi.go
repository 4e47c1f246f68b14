/*
kpi.go - Periodic KPI aggregation

Computes utilization, financial and conversion metrics for a provider
over a period, from the resources and allocations whose ranges overlap
it. The snapshot is upserted keyed by (provider, period start, period
end): recomputing the same period overwrites the prior snapshot instead
of appending a new one.

All counts and sums are zero-safe: empty inputs produce a zeroed
snapshot, and rate divisions guard their denominators.
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type KPIAggregator struct {
	Store TxStore
	Now   func() time.Time
}

func NewKPIAggregator(store TxStore) *KPIAggregator {
	return &KPIAggregator{Store: store, Now: time.Now}
}

func (k *KPIAggregator) now() time.Time {
	if k.Now != nil {
		return k.Now().UTC()
	}
	return time.Now().UTC()
}

// Compute aggregates the provider's history over the period and upserts
// the resulting snapshot. Never errors on empty result sets.
func (k *KPIAggregator) Compute(ctx context.Context, provider ProviderID, period DateRange) (*KPI, error) {
	if !period.Valid() {
		return nil, &InvalidRangeError{Range: period, Reason: "end before start"}
	}

	resources, err := k.Store.ListResources(ctx, ResourceFilter{
		ProviderID: &provider,
		Overlaps:   &period,
	})
	if err != nil {
		return nil, err
	}

	kpi := &KPI{
		ProviderID:      provider,
		CalculationDate: DayOf(k.now()),
		Period:          period,
	}

	var hourlySum, dailySum decimal.Decimal
	var hourlyN, dailyN int64

	for _, r := range resources {
		kpi.ResourcesAvailable++
		switch r.Status {
		case ResourceAllocated:
			kpi.ResourcesAllocated++
		case ResourceCompleted:
			kpi.ResourcesCompleted++
		}
		kpi.PersonDaysAvailable += r.PersonCount * r.Range.OverlapDays(period)

		if r.HourlyRate.IsPositive() {
			hourlySum = hourlySum.Add(r.HourlyRate)
			hourlyN++
		}
		if r.DailyRate.IsPositive() {
			dailySum = dailySum.Add(r.DailyRate)
			dailyN++
		}
	}
	if hourlyN > 0 {
		kpi.AverageHourlyRate = hourlySum.Div(decimal.NewFromInt(hourlyN))
	}
	if dailyN > 0 {
		kpi.AverageDailyRate = dailySum.Div(decimal.NewFromInt(dailyN))
	}

	for _, r := range resources {
		rid := r.ID
		allocs, err := k.Store.ListAllocations(ctx, AllocationFilter{
			ResourceID: &rid,
			Overlaps:   &period,
		})
		if err != nil {
			return nil, err
		}

		for _, a := range allocs {
			overlap := a.Range.OverlapDays(period)

			switch {
			case a.Status.ConsumesCapacity():
				kpi.PersonDaysAllocated += a.PersonCount * overlap
				kpi.TotalPotentialRevenue = kpi.TotalPotentialRevenue.Add(a.TotalCost)
			case a.Status == StatusCompleted:
				kpi.PersonDaysCompleted += a.PersonCount * overlap
				kpi.TotalRevenue = kpi.TotalRevenue.Add(a.TotalCost)
			}

			if a.InvitationSentAt != nil {
				kpi.InvitationsSent++
			}
			if a.OfferSubmittedAt != nil {
				kpi.OffersSubmitted++
			}
			if a.Status == StatusAccepted {
				kpi.OffersAccepted++
			}
		}
	}

	if kpi.PersonDaysAvailable > 0 {
		kpi.UtilizationRate = 100 * float64(kpi.PersonDaysAllocated) / float64(kpi.PersonDaysAvailable)
	}
	if kpi.OffersSubmitted > 0 {
		kpi.SuccessRate = 100 * float64(kpi.OffersAccepted) / float64(kpi.OffersSubmitted)
	}

	if err := k.Store.UpsertKPI(ctx, kpi); err != nil {
		return nil, err
	}
	return kpi, nil
}

// Get returns the stored snapshot for the exact period, or computes one
// when none exists yet.
func (k *KPIAggregator) Get(ctx context.Context, provider ProviderID, period DateRange) (*KPI, error) {
	kpi, err := k.Store.GetKPI(ctx, provider, period)
	if err != nil {
		return nil, err
	}
	if kpi != nil {
		return kpi, nil
	}
	return k.Compute(ctx, provider, period)
}
