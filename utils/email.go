package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"marketplace/config"

	"gopkg.in/gomail.v2"
)

// ReceiptData fills the payment receipt template.
type ReceiptData struct {
	OrderID       uint
	PaymentID     uint
	TransactionID string
	Amount        string
	Currency      string
	DetailLink    string
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>Payment received</h2>
<p>Your payment for order #{{.OrderID}} has been confirmed.</p>
<table>
<tr><td>Amount</td><td>{{.Amount}} {{.Currency}}</td></tr>
<tr><td>Transaction</td><td>{{.TransactionID}}</td></tr>
<tr><td>Reference</td><td>{{.PaymentID}}</td></tr>
</table>
{{if .DetailLink}}<p><a href="{{.DetailLink}}">View your order</a></p>{{end}}
</body>
</html>`))

// Mailer sends rendered messages over SMTP.
type Mailer struct {
	cfg  config.SMTP
	send func(*gomail.Message) error
}

func NewMailer(cfg config.SMTP) *Mailer {
	m := &Mailer{cfg: cfg}
	m.send = func(msg *gomail.Message) error {
		return gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password).DialAndSend(msg)
	}
	return m
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != ""
}

func RenderReceipt(data ReceiptData) (string, error) {
	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return body.String(), nil
}

func (m *Mailer) SendReceipt(to string, data ReceiptData) error {
	body, err := RenderReceipt(data)
	if err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Payment received for order #%d", data.OrderID))
	msg.SetBody("text/html", body)
	if err := m.send(msg); err != nil {
		return fmt.Errorf("send receipt for order %d: %w", data.OrderID, err)
	}
	return nil
}
