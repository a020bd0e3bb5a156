package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/notify"
	"qms/patient-client/internal/pharmacy"
	"qms/patient-client/internal/queueview"
	"qms/patient-client/internal/router"
)

func table(out io.Writer, header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	return w
}

func renderProfile(out io.Writer, user models.User) {
	fmt.Fprintf(out, "Name:  %s\nEmail: %s\nRole:  %s\n", user.Name, user.Email, user.Role)
	if user.Phone != "" {
		fmt.Fprintf(out, "Phone: %s\n", user.Phone)
	}
	if user.Age > 0 {
		fmt.Fprintf(out, "Age:   %d\n", user.Age)
	}
}

func renderDoctors(out io.Writer, doctors []models.Doctor, selected string) {
	if len(doctors) == 0 {
		fmt.Fprintln(out, "No doctors available.")
		return
	}
	w := table(out, "", "ID", "DOCTOR", "SPECIALIZATION")
	for _, doctor := range doctors {
		mark := ""
		if doctor.ID == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, doctor.ID, doctor.Name, doctor.Specialization)
	}
	_ = w.Flush()
}

func renderToken(out io.Writer, snap queueview.Snapshot) {
	token := snap.Token
	if token == nil {
		fmt.Fprintln(out, "You have no active token. Book one with `patient-client book`.")
		return
	}
	fmt.Fprintf(out, "Token #%d with %s (%s)\n", token.TokenNumber, token.DoctorName(), token.BookingDate)
	switch token.Status {
	case models.TokenInConsultation:
		fmt.Fprintln(out, "Status: it's your turn, please proceed to the consultation room.")
	case models.TokenWaiting:
		fmt.Fprintf(out, "Status: waiting, position %d, about %d min\n", token.Position, token.EstimatedWaitTime)
	default:
		fmt.Fprintf(out, "Status: %s\n", token.Status)
	}
	if snap.StatsLoaded {
		fmt.Fprintf(out, "Waiting in queue: %d (next wait about %d min)\n", snap.Stats.TotalWaiting, snap.Stats.NextEstimatedWaitTime)
	}
	ahead := snap.PatientsAhead()
	if len(ahead) == 0 {
		return
	}
	w := table(out, "TOKEN", "STATUS", "POSITION")
	for _, t := range ahead {
		label := fmt.Sprintf("#%d", t.TokenNumber)
		if t.ID == token.ID {
			label += " (you)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", label, t.Status, t.Position)
	}
	_ = w.Flush()
}

func renderQueue(out io.Writer, queue []models.Token, stats models.QueueStats) {
	fmt.Fprintf(out, "Waiting: %d, next wait about %d min\n", stats.TotalWaiting, stats.NextEstimatedWaitTime)
	if len(queue) == 0 {
		fmt.Fprintln(out, "The queue is empty.")
		return
	}
	w := table(out, "TOKEN", "STATUS", "POSITION", "WAIT")
	for _, t := range queue {
		fmt.Fprintf(w, "#%d\t%s\t%d\t%d min\n", t.TokenNumber, t.Status, t.Position, t.EstimatedWaitTime)
	}
	_ = w.Flush()
}

func renderPrescriptions(out io.Writer, list []models.Prescription) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No prescriptions yet.")
		return
	}
	w := table(out, "ID", "DATE", "DOCTOR", "DIAGNOSIS", "STATUS", "TOTAL")
	for _, p := range list {
		date := ""
		if p.CreatedAt != nil {
			date = p.CreatedAt.Local().Format("2006-01-02")
		}
		doctor := ""
		if p.Doctor != nil {
			doctor = p.Doctor.Name
		}
		total := ""
		if p.Fee != nil {
			total = notify.FormatINR(p.Fee.Total)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, date, doctor, p.Details.Diagnosis, p.Status, total)
	}
	_ = w.Flush()
}

func renderPharmacy(out io.Writer, snap pharmacy.Snapshot, now time.Time) {
	selected := snap.Selected
	if selected == nil {
		fmt.Fprintln(out, "Nothing to pay or collect at the pharmacy.")
		return
	}
	fmt.Fprintf(out, "Prescription %s (%s)\n", selected.ID, selected.Status)
	for _, m := range selected.Details.Medicines {
		fmt.Fprintf(out, "  - %s, %s for %s\n", m.Name, m.Dosage, m.Duration)
	}
	if fee := selected.Fee; fee != nil {
		fmt.Fprintf(out, "Consultation %s, medicines %s, tax %s, total %s\n",
			notify.FormatINR(fee.Consultation), notify.FormatINR(fee.Subtotal), notify.FormatINR(fee.Tax), notify.FormatINR(fee.Total))
	}
	if snap.DeliveryOTP != "" {
		fmt.Fprintf(out, "Delivery OTP: %s\n", snap.DeliveryOTP)
		if seconds := snap.Cooldown.Seconds(now); seconds > 0 {
			fmt.Fprintf(out, "Resend available in %ds\n", seconds)
		}
	}
}

func renderNavBar(out io.Writer, items []router.NavItem) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		label := item.Title
		if item.Badge > 0 {
			label = fmt.Sprintf("%s (%d)", label, item.Badge)
		}
		if item.Active {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	fmt.Fprintln(out, strings.Join(parts, " | "))
}
