package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"qms/patient-client/internal/dashboard"
	"qms/patient-client/internal/router"

	"github.com/spf13/cobra"
)

const replHelp = `Commands:
  home | tab <home|livequeue|queue|prescriptions|pharmacy|profile>
  doctors                      list doctors
  select <doctor>              load a doctor's queue (id or list number)
  book <doctor> [YYYY-MM-DD]   book a token
  cancel                       cancel your waiting token
  queue                        your token and the patients ahead
  live [doctor]                a doctor's public queue
  rx                           prescriptions
  pharmacy                     fees and delivery OTP
  pay <id> | resend <id> | delete <id>
  refresh | profile | logout | quit
`

var errQuit = errors.New("quit")

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Aliases: []string{"interactive"},
		Short:   "Stay connected for live updates and run commands interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			rt := a.realtime()
			d, err := a.dashboard(rt)
			if err != nil {
				return err
			}

			connectCtx, stopConnect := context.WithCancel(ctx)
			connected := make(chan struct{})
			go func() {
				defer close(connected)
				if err := rt.Connect(connectCtx); err != nil && connectCtx.Err() == nil {
					a.log.WithError(err).Warn("realtime unavailable")
				}
			}()
			defer func() {
				stopConnect()
				<-connected
			}()

			unmount, err := d.Mount(ctx)
			if err != nil {
				return err
			}
			defer unmount()

			r := &repl{app: a, dash: d}
			r.print(func(w io.Writer) {
				fmt.Fprintf(w, "Welcome, %s. Type `help` for commands.\n", d.User().Name)
				renderNavBar(w, d.NavBar())
			})
			for {
				line, err := a.console.ReadLine(ctx, "> ")
				if err != nil {
					return nil
				}
				if err := r.exec(ctx, line); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					if !errors.Is(err, errAlerted) {
						a.console.Printf("%v\n", err)
					}
				}
			}
		},
	}
}

type repl struct {
	app  *app
	dash *dashboard.Dashboard
}

func (r *repl) print(fn func(w io.Writer)) {
	var buf bytes.Buffer
	fn(&buf)
	r.app.console.Printf("%s", buf.String())
}

func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	d := r.dash

	switch strings.ToLower(fields[0]) {
	case "help", "?":
		r.print(func(w io.Writer) { fmt.Fprint(w, replHelp) })
	case "quit", "exit":
		return errQuit
	case "home":
		r.switchTab(router.TabHome)
	case "tab":
		r.switchTab(router.Tab(arg(1)))
	case "doctors":
		snap := d.Queue().Snapshot()
		r.print(func(w io.Writer) { renderDoctors(w, snap.Doctors, snap.SelectedDoctor) })
	case "select":
		if err := d.SelectDoctor(ctx, r.doctorRef(arg(1))); err != nil {
			return err
		}
		snap := d.Queue().Snapshot()
		r.print(func(w io.Writer) { renderQueue(w, snap.Queue, snap.Stats) })
	case "book":
		date := arg(2)
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		if err := d.Book(ctx, r.doctorRef(arg(1)), date); err != nil {
			return alerted(err)
		}
		r.print(func(w io.Writer) { renderToken(w, d.Queue().Snapshot()) })
	case "cancel":
		return alerted(d.Cancel(ctx))
	case "queue":
		r.print(func(w io.Writer) { renderToken(w, d.Queue().Snapshot()) })
	case "live":
		target := r.doctorRef(arg(1))
		if target == "" {
			target = d.Queue().Snapshot().Token.DoctorID()
		}
		if target == "" {
			return errors.New("usage: live <doctor>")
		}
		if err := d.SelectDoctor(ctx, target); err != nil {
			return err
		}
		snap := d.Queue().Snapshot()
		r.print(func(w io.Writer) { renderQueue(w, snap.Queue, snap.Stats) })
	case "rx", "prescriptions":
		r.print(func(w io.Writer) { renderPrescriptions(w, d.Pharmacy().Snapshot().Prescriptions) })
	case "pharmacy":
		r.switchTab(router.TabPharmacy)
	case "pay":
		if err := d.Pay(ctx, arg(1)); err != nil {
			return alerted(err)
		}
		r.print(func(w io.Writer) { renderPharmacy(w, d.Pharmacy().Snapshot(), time.Now()) })
	case "resend":
		if err := d.ResendOTP(ctx, arg(1)); err != nil {
			return alerted(err)
		}
		r.print(func(w io.Writer) { renderPharmacy(w, d.Pharmacy().Snapshot(), time.Now()) })
	case "delete":
		return alerted(d.DeletePrescription(ctx, arg(1)))
	case "refresh":
		if err := d.Refresh(ctx); err != nil {
			return err
		}
		r.print(func(w io.Writer) { renderNavBar(w, d.NavBar()) })
	case "profile":
		r.switchTab(router.TabProfile)
	case "logout":
		r.app.session.Logout(ctx)
		r.app.router.Reset()
		r.app.console.Printf("Signed out.\n")
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type `help`", fields[0])
	}
	return nil
}

// switchTab activates a tab and prints what it shows.
func (r *repl) switchTab(tab router.Tab) {
	d := r.dash
	tab = r.app.router.SetTab(tab)
	r.print(func(w io.Writer) {
		renderNavBar(w, d.NavBar())
		switch tab {
		case router.TabHome, router.TabQueue:
			renderToken(w, d.Queue().Snapshot())
		case router.TabLiveQueue:
			snap := d.Queue().Snapshot()
			renderQueue(w, snap.Queue, snap.Stats)
		case router.TabPrescriptions:
			renderPrescriptions(w, d.Pharmacy().Snapshot().Prescriptions)
		case router.TabPharmacy:
			renderPharmacy(w, d.Pharmacy().Snapshot(), time.Now())
		case router.TabProfile:
			renderProfile(w, d.User())
		}
	})
}

// doctorRef resolves a 1-based position in the doctor list to its id.
// Anything else is taken as an id.
func (r *repl) doctorRef(ref string) string {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref
	}
	doctors := r.dash.Queue().Snapshot().Doctors
	if n < 1 || n > len(doctors) {
		return ref
	}
	return doctors[n-1].ID
}
