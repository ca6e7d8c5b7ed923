package lib

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/wneessen/go-mail"
)

var smtpClient *mail.Client

// GetSMTPClient returns nil when SMTP_HOST is unset; confirmation mail is
// optional and the booking flow never depends on it.
func GetSMTPClient() *mail.Client {
	if smtpClient != nil {
		return smtpClient
	}
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}
	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		port = p
	}
	c, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(os.Getenv("SMTP_USERNAME")),
		mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
	)
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil
	}
	smtpClient = c
	return smtpClient
}

// SendMailInput is one outbound message, body and subject already rendered.
type SendMailInput struct {
	To      string
	Subject string
	Body    string
}

// SendMail delivers best effort in the background, same contract as the push
// hub: a failed send is logged, never surfaced.
func SendMail(input *SendMailInput) {
	client := GetSMTPClient()
	if client == nil {
		return
	}
	from := os.Getenv("SMTP_FROM")
	go func() {
		msg := mail.NewMsg()
		if err := msg.From(from); err != nil {
			log.Printf("[mail] Bad from address: %s\n", err.Error())
			return
		}
		if err := msg.To(input.To); err != nil {
			log.Printf("[mail] Bad to address: %s\n", err.Error())
			return
		}
		msg.Subject(input.Subject)
		msg.SetBodyString(mail.TypeTextPlain, input.Body)
		if err := client.DialAndSend(msg); err != nil {
			log.Printf("[mail] Could not send %q to %s: %s\n", input.Subject, input.To, err.Error())
		}
	}()
}

// BookingConfirmationMail renders the message sent when staff confirms a
// booking.
func BookingConfirmationMail(to, date, slot string, players int) *SendMailInput {
	return &SendMailInput{
		To:      to,
		Subject: "Your paintball booking is confirmed",
		Body: fmt.Sprintf(
			"Your booking for %s, %s (%d players) has been confirmed.\nSee you on the field!",
			date, slot, players,
		),
	}
}
