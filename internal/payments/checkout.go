package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

// Session is the caller-visible result of creating a checkout session.
type Session struct {
	ID  string
	URL string
}

type SessionRequest struct {
	AppointmentID  string
	ServiceName    string
	AmountUSDCents int64
	CustomerEmail  string
}

// Checkout creates hosted payment sessions for card bookings.
type Checkout interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// StripeCheckout creates one-time-payment Checkout sessions. The appointment id
// travels in session metadata so the webhook can find the booking to confirm.
type StripeCheckout struct {
	secretKey  string
	successURL string
	cancelURL  string
}

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

func NewStripeCheckout(cfg StripeConfig) (*StripeCheckout, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, fmt.Errorf("checkout success and cancel URLs are required")
	}
	return &StripeCheckout{
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

func (c *StripeCheckout) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	// Stripe uses a global API key. Keep usage limited to this call.
	stripe.Key = c.secretKey

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withQueryParam(c.successURL, "appointment_id", req.AppointmentID)),
		CancelURL:         stripe.String(withQueryParam(c.cancelURL, "appointment_id", req.AppointmentID)),
		ClientReferenceID: stripe.String(req.AppointmentID),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(req.AmountUSDCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ServiceName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"appointment_id": req.AppointmentID,
		},
	}
	params.AddExpand("url")

	sess, err := checkoutsession.New(params)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func withQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
