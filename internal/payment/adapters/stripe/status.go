package stripe

import "github.com/smallbiznis/paycore/internal/payment/domain"

// paymentStatuses covers PaymentIntent and Charge statuses.
var paymentStatuses = map[string]domain.PaymentStatus{
	"succeeded":               domain.PaymentStatusCompleted,
	"paid":                    domain.PaymentStatusCompleted,
	"processing":              domain.PaymentStatusPending,
	"requires_payment_method": domain.PaymentStatusPending,
	"requires_confirmation":   domain.PaymentStatusPending,
	"requires_action":         domain.PaymentStatusPending,
	"requires_capture":        domain.PaymentStatusPending,
	"pending":                 domain.PaymentStatusPending,
	"canceled":                domain.PaymentStatusFailed,
	"failed":                  domain.PaymentStatusFailed,
	"refunded":                domain.PaymentStatusRefunded,
	"disputed":                domain.PaymentStatusDisputed,
}

var subscriptionStatuses = map[string]domain.SubscriptionStatus{
	"active":             domain.SubscriptionStatusActive,
	"trialing":           domain.SubscriptionStatusTrialing,
	"past_due":           domain.SubscriptionStatusPastDue,
	"unpaid":             domain.SubscriptionStatusPastDue,
	"incomplete":         domain.SubscriptionStatusPastDue,
	"paused":             domain.SubscriptionStatusPastDue,
	"incomplete_expired": domain.SubscriptionStatusCanceled,
	"canceled":           domain.SubscriptionStatusCanceled,
}

// mapPaymentStatus never passes a raw status through; unknown values are pending.
func mapPaymentStatus(status string) domain.PaymentStatus {
	if mapped, ok := paymentStatuses[status]; ok {
		return mapped
	}
	return domain.PaymentStatusPending
}

// mapSubscriptionStatus treats unknown values as past_due so nothing
// unrecognized is reported as in good standing.
func mapSubscriptionStatus(status string) domain.SubscriptionStatus {
	if mapped, ok := subscriptionStatuses[status]; ok {
		return mapped
	}
	return domain.SubscriptionStatusPastDue
}

// recurringInterval maps a billing cycle onto a Stripe price interval.
func recurringInterval(cycle domain.BillingCycle) (string, int64) {
	switch cycle {
	case domain.BillingCycleQuarterly:
		return "month", 3
	case domain.BillingCycleYearly:
		return "year", 1
	default:
		return "month", 1
	}
}

func billingCycleFromInterval(interval string, count int64) domain.BillingCycle {
	switch {
	case interval == "year" && count == 1:
		return domain.BillingCycleYearly
	case interval == "month" && count == 3:
		return domain.BillingCycleQuarterly
	case interval == "month" && count == 1:
		return domain.BillingCycleMonthly
	default:
		return domain.BillingCycleCustom
	}
}

func paymentMethodType(method domain.PaymentMethod) string {
	switch method {
	case domain.PaymentMethodSEPA:
		return "sepa_debit"
	case domain.PaymentMethodACH:
		return "us_bank_account"
	default:
		return "card"
	}
}
