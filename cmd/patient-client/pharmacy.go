package main

import (
	"context"
	"time"

	"qms/patient-client/internal/dashboard"

	"github.com/spf13/cobra"
)

func newPrescriptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "prescriptions",
		Aliases: []string{"rx"},
		Short:   "List your prescriptions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				renderPrescriptions(a.out, d.Pharmacy().Snapshot().Prescriptions)
				return nil
			})
		},
	}
}

func newPayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <prescription-id>",
		Short: "Pay pharmacy fees and receive a delivery OTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, true, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				if err := d.Pay(ctx, args[0]); err != nil {
					return alerted(err)
				}
				renderPharmacy(a.out, d.Pharmacy().Snapshot(), time.Now())
				return nil
			})
		},
	}
}

func newResendOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-otp <prescription-id>",
		Short: "Issue a new delivery OTP for a paid prescription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				if err := d.ResendOTP(ctx, args[0]); err != nil {
					return alerted(err)
				}
				renderPharmacy(a.out, d.Pharmacy().Snapshot(), time.Now())
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <prescription-id>",
		Short: "Delete a prescription from your history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				return alerted(d.DeletePrescription(ctx, args[0]))
			})
		},
	}
}
