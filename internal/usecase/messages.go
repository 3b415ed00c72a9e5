// File: internal/usecase/messages.go
package usecase

import (
	"fmt"
	"time"

	"vpn-subscription-bot/internal/domain/model"
)

// User-facing notification texts. Telegram messages use HTML parse mode, so
// anything interpolated here must stay free of markup characters (ids are
// UUIDs/ULIDs, descriptors are wrapped in <code>).

func msgProvisioned(sub *model.Subscription, descriptor string) string {
	if sub.NonExpiring || sub.ExpireAt == nil {
		return fmt.Sprintf("✅ Your VPN access is ready.\n\n<code>%s</code>", descriptor)
	}
	return fmt.Sprintf("✅ Your VPN access is ready until <b>%s</b>.\n\n<code>%s</code>",
		sub.ExpireAt.Format("02.01.2006 15:04 MST"), descriptor)
}

func msgRenewed(sub *model.Subscription) string {
	if sub.NonExpiring || sub.ExpireAt == nil {
		return "✅ Payment received, your subscription is renewed."
	}
	return fmt.Sprintf("✅ Payment received. Your subscription now runs until <b>%s</b>.",
		sub.ExpireAt.Format("02.01.2006 15:04 MST"))
}

func msgPaymentCanceled() string {
	return "Payment was canceled. You can start a new one from the menu."
}

func msgPaymentDeclined() string {
	return "❌ The payment was declined by the provider. No money was taken."
}

func msgPaymentTimeout() string {
	return "⏳ We did not receive payment confirmation in time. If you were charged, contact support with your payment id."
}

func msgPaymentLost(paymentID string) string {
	return fmt.Sprintf("❌ The payment could not be found at the provider. Reference: <code>%s</code>. Contact support if you were charged.", paymentID)
}

func msgTechnicalError(reference string) string {
	return fmt.Sprintf("⚠️ Payment received, but a technical error stopped us from activating your access. Reference: <code>%s</code>. Support has been notified.", reference)
}

func msgRefundInProgress(amountMinor int64, currency string) string {
	return fmt.Sprintf("↩️ We could not activate your access and are refunding %s. The money returns the way it came, usually within a few days.",
		formatAmount(amountMinor, currency))
}

func msgRefundFailed(reference string) string {
	return fmt.Sprintf("⚠️ We could not activate your access. A refund is being handled manually. Reference: <code>%s</code>.", reference)
}

func msgExpiryWarning(sub *model.Subscription, left time.Duration) string {
	days := int(left.Hours() / 24)
	if days <= 1 {
		return "⚠️ Your VPN subscription expires in less than a day. Renew now to keep access."
	}
	return fmt.Sprintf("⚠️ Your VPN subscription expires in %d days. Renew to keep access.", days)
}

func msgExpired() string {
	return "🚫 Your VPN subscription has expired and access is disabled. Renew it to restore access; your configuration is kept for a while."
}

func msgDeletionWarning(daysLeft int) string {
	if daysLeft <= 1 {
		return "❗️ Your expired VPN configuration will be deleted in less than a day. Renew now to keep it."
	}
	return fmt.Sprintf("❗️ Your expired VPN configuration will be deleted in %d days unless you renew.", daysLeft)
}

func msgOperatorEscalation(e *model.RetryEntry) string {
	return fmt.Sprintf("🛑 Provisioning gave up after %d attempts.\nEntry: <code>%s</code>\nPayment: <code>%s</code>\nOwner: <code>%s</code>\nStatus: %s\nLast error: %s",
		e.AttemptCount, e.ID, e.PaymentID, e.OwnerID, e.Status, e.LastError)
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currency)
}
