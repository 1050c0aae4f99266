package utils

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/gomail.v2"
)

// SendRedemptionEmail notifies an affiliate that their redemption was paid or
// rejected. Email failures are logged and swallowed: notification is best
// effort and never blocks ledger state.
func SendRedemptionEmail(to, status, currency string, amountCents int64, reason string) {
	if to == "" {
		return
	}

	smtpHost := os.Getenv("SMTP_HOST")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	smtpPort := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &smtpPort)
	}
	if smtpHost == "" || smtpUser == "" {
		log.Printf("SMTP not configured, skipping redemption email to %s", to)
		return
	}

	amount := fmt.Sprintf("%d.%02d %s", amountCents/100, amountCents%100, currency)

	var subject, body string
	if status == "paid" {
		subject = "Your payout is on its way"
		body = fmt.Sprintf("Your redemption of %s has been paid out to your payout account.", amount)
	} else {
		subject = "Your payout could not be completed"
		body = fmt.Sprintf("Your redemption of %s was rejected and the amount has been returned to your balance.", amount)
		if reason != "" {
			body += fmt.Sprintf(" Reason: %s.", reason)
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)
	if err := d.DialAndSend(m); err != nil {
		log.Printf("Failed to send redemption email to %s: %v", to, err)
	}
}
