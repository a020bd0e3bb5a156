package main

import (
	"errors"
	"fmt"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/router"
	"qms/patient-client/internal/session"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.report(a.session.Login(cmd.Context(), email, password))
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var profile models.Profile
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a patient account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			a.router.ShowRegister(true)
			return a.report(a.session.Register(cmd.Context(), profile))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&profile.Name, "name", "", "full name")
	flags.StringVar(&profile.Email, "email", "", "email")
	flags.StringVar(&profile.Password, "password", "", "password, at least 6 characters")
	flags.StringVar(&profile.ConfirmPassword, "confirm-password", "", "repeat the password")
	flags.StringVar(&profile.Phone, "phone", "", "phone number")
	flags.IntVar(&profile.Age, "age", 0, "age in years")
	return cmd
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "demo [patient|doctor]",
		Short:     "Sign in with a demo account",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{models.RolePatient, models.RoleDoctor},
		RunE: func(cmd *cobra.Command, args []string) error {
			role := models.RolePatient
			if len(args) == 1 {
				role = args[0]
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.report(a.session.DemoLogin(cmd.Context(), role))
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			a.session.Logout(cmd.Context())
			a.router.Reset()
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in user and the current screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			screen := a.router.Screen()
			fmt.Fprintf(a.out, "Screen: %s\n", screen)
			user, ok := a.session.User()
			if !ok {
				return nil
			}
			renderProfile(a.out, user)
			if screen == router.ScreenStaffPlaceholder {
				fmt.Fprintf(a.out, "\n%s\n", errStaff)
			}
			return nil
		},
	}
}

// report prints a login or registration outcome and turns failure into a
// command error.
func (a *app) report(result session.Result) error {
	if !result.Success {
		a.console.Alert("Error", result.Message)
		return alerted(errors.New(result.Message))
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s).\n", result.User.Name, result.User.Role)
	if a.router.Screen() == router.ScreenStaffPlaceholder {
		fmt.Fprintln(a.out, errStaff)
	}
	return nil
}
