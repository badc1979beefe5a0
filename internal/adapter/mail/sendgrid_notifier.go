package mail

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

const defaultSendGridHost = "https://api.sendgrid.com"

// SendGridNotifier implements port.Notifier
type SendGridNotifier struct {
	apiKey   string
	from     string
	fromName string
	host     string
	log      *slog.Logger
}

func NewSendGridNotifier(apiKey, from, fromName string, log *slog.Logger) *SendGridNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &SendGridNotifier{
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
		host:     defaultSendGridHost,
		log:      log,
	}
}

// WithHost points the notifier at another API host.
func (n *SendGridNotifier) WithHost(host string) *SendGridNotifier {
	n.host = strings.TrimRight(host, "/")
	return n
}

func (n *SendGridNotifier) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	if n.apiKey == "" {
		return errors.New("sendgrid api key is empty")
	}
	if n.from == "" {
		return errors.New("from address is empty")
	}
	if order.CustomerEmail == "" {
		return errors.New("to address is empty")
	}

	subject, body := RenderConfirmation(order)
	message := mail.NewSingleEmail(
		mail.NewEmail(n.fromName, n.from),
		subject,
		mail.NewEmail("", order.CustomerEmail),
		body,
		"<pre>"+html.EscapeString(body)+"</pre>",
	)

	request := sendgrid.GetRequest(n.apiKey, "/v3/mail/send", n.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return errors.Wrap(err, "sendgrid send")
	}
	if response.StatusCode >= 400 {
		return errors.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}

	n.log.Info("order confirmation mailed",
		slog.Int("status", response.StatusCode),
		slog.String("order_number", order.OrderNumber),
	)
	return nil
}

// RenderConfirmation builds the plain-text confirmation for order.
func RenderConfirmation(order domain.Order) (subject, body string) {
	subject = "Your order " + order.OrderNumber
	currency := strings.ToUpper(order.Currency)

	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order!\n\nOrder number: %s\n\n", order.OrderNumber)
	for _, l := range order.Lines {
		fmt.Fprintf(&b, "%d x %s  %s %s\n", l.Quantity, l.Title, formatMinor(l.TotalAmountMinor), currency)
	}
	fmt.Fprintf(&b, "\nTotal: %s %s\n", formatMinor(order.AmountTotalMinor), currency)
	return subject, b.String()
}

func formatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
