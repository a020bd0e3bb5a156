package notify

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	KindNextInLine        = "next_in_line"
	KindYourTurn          = "your_turn"
	KindPaymentRequired   = "payment_required"
	KindBookingConfirmed  = "booking_confirmed"
	KindPrescriptionReady = "prescription_ready"
	KindDeliveryComplete  = "delivery_complete"
)

type template struct {
	title string
	body  string
}

var templates = map[string]template{
	KindNextInLine: {
		title: "You're Next!",
		body:  "Your token #{token_number} is now position 1. Please prepare for your consultation!",
	},
	KindYourTurn: {
		title: "It's Your Turn!",
		body:  "Your token #{token_number} is now being called. Proceed to Dr. {doctor}'s office.",
	},
	KindPaymentRequired: {
		title: "Payment Required!",
		body:  "Your pharmacy fees are ready: {amount}. Please pay in the Pharmacy tab to receive your medication.",
	},
	KindBookingConfirmed: {
		title: "Success!",
		body:  "Token #{token_number} booked for Dr. {doctor}. Your position is {position}.",
	},
	KindPrescriptionReady: {
		title: "Prescription Ready!",
		body:  "Your prescription is ready! Check the Prescriptions tab.",
	},
	KindDeliveryComplete: {
		title: "Delivery Complete",
		body:  "Medication delivery/collection complete! Your order history has been updated.",
	},
}

type payloadData map[string]string

// Render builds the notification of the given kind.
func Render(kind string, payload payloadData) Notification {
	tpl := templates[kind]
	return Notification{Kind: kind, Title: tpl.title, Body: renderTemplate(tpl.body, payload)}
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	for _, key := range []string{"token_number", "doctor", "position", "amount"} {
		result = strings.ReplaceAll(result, "{"+key+"}", payload[key])
	}
	return result
}

// FormatINR renders amount as Indian rupees with two decimals.
func FormatINR(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "₹ 0.00"
	}
	p := message.NewPrinter(language.Make("en-IN"))
	return p.Sprint(currency.Symbol(currency.INR.Amount(amount)))
}
