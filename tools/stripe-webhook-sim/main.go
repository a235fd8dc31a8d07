// stripe-webhook-sim sends a locally signed checkout.session.completed event
// to the API, for exercising the payment confirmation path without Stripe.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL       = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "api base url")
		appointmentID = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment_id metadata")
		sessionID     = flag.String("session-id", getenv("CHECKOUT_SESSION_ID", "cs_test_123"), "checkout session id")
		secret        = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointmentID) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", now.UnixNano()),
		"object":      "event",
		"created":     now.Unix(),
		"type":        "checkout.session.completed",
		"api_version": "2024-06-20",
		"data": map[string]any{
			"object": map[string]any{
				"id":             *sessionID,
				"object":         "checkout.session",
				"payment_intent": fmt.Sprintf("pi_test_%d", now.UnixNano()),
				"metadata": map[string]any{
					"appointment_id": *appointmentID,
				},
			},
		},
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/stripe/webhook", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
