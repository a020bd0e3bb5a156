package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qms/patient-client/internal/dashboard"

	"github.com/spf13/cobra"
)

func newDoctorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctors",
		Short: "List doctors accepting bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				snap := d.Queue().Snapshot()
				renderDoctors(a.out, snap.Doctors, snap.SelectedDoctor)
				return nil
			})
		},
	}
}

func newBookCmd() *cobra.Command {
	var doctorID, date string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a queue token with a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			return withDashboard(cmd, true, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				if err := d.Book(ctx, doctorID, date); err != nil {
					return alerted(err)
				}
				renderToken(a.out, d.Queue().Snapshot())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id (see `patient-client doctors`)")
	cmd.Flags().StringVar(&date, "date", "", "booking date as YYYY-MM-DD, defaults to today")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel your waiting token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				if token := d.Queue().Snapshot().Token; token == nil {
					fmt.Fprintln(a.out, "You have no token to cancel.")
					return nil
				}
				return alerted(d.Cancel(ctx))
			})
		},
	}
}

func newQueueCmd() *cobra.Command {
	var doctorID string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show your token and the patients ahead of you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				target := doctorID
				if token := d.Queue().Snapshot().Token; token != nil && target == "" {
					target = token.DoctorID()
				}
				if target != "" {
					if err := d.SelectDoctor(ctx, target); err != nil {
						return err
					}
				}
				renderToken(a.out, d.Queue().Snapshot())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor whose queue to show, defaults to your token's doctor")
	return cmd
}

func newLiveQueueCmd() *cobra.Command {
	var doctorID string
	cmd := &cobra.Command{
		Use:     "livequeue",
		Aliases: []string{"live"},
		Short:   "Show a doctor's public queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDashboard(cmd, false, func(ctx context.Context, a *app, d *dashboard.Dashboard) error {
				target := doctorID
				if target == "" {
					target = d.Queue().Snapshot().Token.DoctorID()
				}
				if target == "" {
					return errors.New("pass --doctor or book a token first")
				}
				if err := d.SelectDoctor(ctx, target); err != nil {
					return err
				}
				snap := d.Queue().Snapshot()
				renderQueue(a.out, snap.Queue, snap.Stats)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	return cmd
}
