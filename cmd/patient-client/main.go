package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	yes bool
}

// errAlerted marks failures the user has already been shown as an alert.
var errAlerted = errors.New("alerted")

func alerted(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errAlerted, err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errAlerted) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "patient-client",
		Short:         "Hospital queue client for patients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&rootFlags.yes, "yes", "y", false, "answer yes to confirmation prompts")

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newDemoCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newDoctorsCmd(),
		newBookCmd(),
		newCancelCmd(),
		newQueueCmd(),
		newLiveQueueCmd(),
		newPrescriptionsCmd(),
		newPayCmd(),
		newResendOTPCmd(),
		newDeleteCmd(),
		newWatchCmd(),
	)
	return root
}
