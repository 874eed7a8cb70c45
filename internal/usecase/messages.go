package usecase

import (
	"fmt"
	"strings"
	"time"
)

// Message rendering for Telegram notifications. All texts are HTML-mode and
// kept here so the billing flows stay free of formatting noise.

func buyerLine(username string, userID int64) string {
	if strings.TrimSpace(username) != "" {
		return "@" + username
	}
	return fmt.Sprintf("user (ID: %d, hidden profile)", userID)
}

func cardLine(maskedPan, brand string) string {
	if maskedPan == "" {
		return ""
	}
	line := fmt.Sprintf("💳 <b>Card:</b> <code>%s</code>", maskedPan)
	if brand != "" && brand != "unknown" {
		line += fmt.Sprintf(" (%s)", strings.ToUpper(brand))
	}
	return line + "\n"
}

func msgOneTimeSuccess(productName string, months int, amount float64) string {
	return fmt.Sprintf(
		"✅ <b>Payment received!</b>\n\nAccess to <b>%s</b> is active for %d mo.\nAmount: <b>%.2f₴</b>",
		productName, months, amount,
	)
}

func msgSubscriptionStarted(productName string, months int, amount float64, cardInfo string) string {
	return fmt.Sprintf(
		"✅ <b>Subscription activated!</b>\n\n<b>%s</b> will renew automatically every %d mo.\nAmount: <b>%.2f₴</b>\n%s",
		productName, months, amount, cardInfo,
	)
}

func msgAutoPaymentSuccess(productName string, amount float64, months int, nextDate time.Time) string {
	return fmt.Sprintf(
		"✅ <b>Subscription renewed</b>\n\n<b>%s</b> was charged <b>%.2f₴</b>.\nNext charge: <b>%s</b>",
		productName, amount, nextDate.Format("02.01.2006"),
	)
}

func msgAutoPaymentFailed(productName, maskedPan string) string {
	return fmt.Sprintf(
		"❌ <b>Renewal charge failed</b>\n\nWe could not charge card <code>%s</code> for <b>%s</b>.\nPlease check the card; we will retry on the next cycle.",
		maskedPan, productName,
	)
}

func msgTokenInvalid(productName, maskedPan string) string {
	return fmt.Sprintf(
		"⚠️ <b>Saved card is no longer valid</b>\n\nAutomatic renewal of <b>%s</b> (card <code>%s</code>) has been stopped.\nSubscribe again to continue.",
		productName, maskedPan,
	)
}

func msgSubscriptionCancelled(productName string) string {
	return fmt.Sprintf(
		"🚫 <b>Subscription cancelled</b>\n\nAutomatic renewal of <b>%s</b> was stopped after repeated failed charges.",
		productName,
	)
}

func msgExpiringSoon(productName string, daysLeft int) string {
	return fmt.Sprintf(
		"⏳ <b>Your access to %s ends in %d day(s)!</b>\n\nRenew in time to keep using the service.",
		productName, daysLeft,
	)
}

func msgExpired(productName string) string {
	return fmt.Sprintf(
		"❌ <b>Your access to %s has ended!</b>\n\nRenew the subscription to continue.",
		productName,
	)
}

func msgPartnerCredit(buyer, productName string, amount, credit float64) string {
	return fmt.Sprintf(
		"🎉 <b>Referral purchase!</b>\n\n%s bought <b>%s</b> for %.2f₴.\nYour reward: <b>%.1f₴</b>",
		buyer, productName, amount, credit,
	)
}

func msgAdminPurchase(kind string, userID int64, username, productName string, amount float64, months int) string {
	return fmt.Sprintf(
		"💰 <b>New %s</b>\n\nBuyer: %s\nProduct: <b>%s</b>\nAmount: <b>%.2f₴</b> / %d mo.",
		kind, buyerLine(username, userID), productName, amount, months,
	)
}

func msgAdminAutoPayment(ok bool, userID int64, username, productName string, amount float64, detail string) string {
	head := "✅ <b>Auto-charge succeeded</b>"
	if !ok {
		head = "❌ <b>Auto-charge failed</b>"
	}
	msg := fmt.Sprintf(
		"%s\n\nUser: %s\nProduct: <b>%s</b>\nAmount: <b>%.2f₴</b>\n",
		head, buyerLine(username, userID), productName, amount,
	)
	if detail != "" {
		msg += detail
	}
	return msg
}

func msgTokenCaptureFailed(productName string) string {
	return fmt.Sprintf(
		"⚠️ <b>Payment received, but auto-renewal could not be set up</b>\n\nYour access to <b>%s</b> is active, but we could not save the card for automatic renewal. Our team will contact you.",
		productName,
	)
}

func msgAdminTokenCaptureFailed(userID int64, invoiceID string) string {
	return fmt.Sprintf(
		"⚠️ <b>Card token missing for settled invoice</b>\n\nUser ID: <code>%d</code>\nInvoice: <code>%s</code>\nAuto-renewal was NOT set up.",
		userID, invoiceID,
	)
}

func msgAdminDailyStats(active, succeeded, failed int, revenue float64) string {
	return fmt.Sprintf(
		"📊 <b>Subscription stats</b>\n\nActive subscriptions: <b>%d</b>\nSuccessful charges today: <b>%d</b>\nFailed charges today: <b>%d</b>\nRevenue today: <b>%.2f₴</b>",
		active, succeeded, failed, revenue,
	)
}
