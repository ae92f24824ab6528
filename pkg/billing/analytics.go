package billing

import (
	"context"
	"math"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
)

// GatewayAnalytics aggregates one gateway's payment links over the query
// window.
type GatewayAnalytics struct {
	Gateway            string  `json:"gateway"`
	TotalLinks         int     `json:"total_links"`
	CompletedLinks     int     `json:"completed_links"`
	TotalAmount        float64 `json:"total_amount"`
	PaidAmount         float64 `json:"paid_amount"`
	SuccessRate        float64 `json:"success_rate"`
	AvgPaymentTimeDays int     `json:"avg_payment_time_days"`
}

// AnalyticsReport is the full per-gateway breakdown plus the overall rate.
type AnalyticsReport struct {
	Gateways    []GatewayAnalytics `json:"gateways"`
	TotalLinks  int                `json:"total_links"`
	SuccessRate float64            `json:"success_rate"`
}

// Analytics aggregates success rate and average payment time per gateway.
// Payment time is the span between link creation and payment, rounded to
// whole days.
func (s *Service) Analytics(ctx context.Context, filter persistence.PaymentLinkFilter) (*AnalyticsReport, error) {
	links, err := s.store.PaymentLinks().List(ctx, filter)
	if err != nil {
		return nil, err
	}

	perGateway := make(map[string]*GatewayAnalytics)
	paymentDays := make(map[string][]float64)

	for _, link := range links {
		stats, ok := perGateway[link.Gateway]
		if !ok {
			stats = &GatewayAnalytics{Gateway: link.Gateway}
			perGateway[link.Gateway] = stats
		}

		stats.TotalLinks++
		stats.TotalAmount += link.Amount

		if link.Status == models.PaymentLinkCompleted {
			stats.CompletedLinks++
			stats.PaidAmount += link.PaidAmount

			if link.PaidAt != nil {
				days := link.PaidAt.Sub(link.CreatedAt).Hours() / 24
				paymentDays[link.Gateway] = append(paymentDays[link.Gateway], days)
			}
		}
	}

	report := &AnalyticsReport{Gateways: make([]GatewayAnalytics, 0, len(perGateway))}

	completed := 0

	for _, name := range s.gateways.Names() {
		stats, ok := perGateway[name]
		if !ok {
			continue
		}

		stats.SuccessRate = rate(stats.CompletedLinks, stats.TotalLinks)
		stats.AvgPaymentTimeDays = avgWholeDays(paymentDays[name])

		report.Gateways = append(report.Gateways, *stats)
		report.TotalLinks += stats.TotalLinks
		completed += stats.CompletedLinks

		delete(perGateway, name)
	}

	// Links from gateways no longer registered still count.
	for name, stats := range perGateway {
		stats.SuccessRate = rate(stats.CompletedLinks, stats.TotalLinks)
		stats.AvgPaymentTimeDays = avgWholeDays(paymentDays[name])

		report.Gateways = append(report.Gateways, *stats)
		report.TotalLinks += stats.TotalLinks
		completed += stats.CompletedLinks
	}

	report.SuccessRate = rate(completed, report.TotalLinks)

	return report, nil
}

func rate(completed, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(completed) / float64(total)
}

func avgWholeDays(days []float64) int {
	if len(days) == 0 {
		return 0
	}

	var sum float64
	for _, d := range days {
		sum += d
	}

	return int(math.Round(sum / float64(len(days))))
}
