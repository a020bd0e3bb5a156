package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"qms/patient-client/internal/apiclient"
	"qms/patient-client/internal/config"
	"qms/patient-client/internal/dashboard"
	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/notify"
	"qms/patient-client/internal/pharmacy"
	"qms/patient-client/internal/realtime"
	"qms/patient-client/internal/router"
	"qms/patient-client/internal/session"
	"qms/patient-client/internal/store"
	"qms/patient-client/internal/store/file"
	"qms/patient-client/internal/store/memory"
	"qms/patient-client/internal/store/postgres"
	"qms/patient-client/internal/telemetry"
	"qms/patient-client/internal/ui"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	errSignedOut = errors.New("not signed in; run `patient-client login` or `patient-client demo`")
	errStaff     = errors.New("staff features are not available in the patient app")
)

// app is the per-invocation object graph: one session store, one API client
// and at most one realtime connection.
type app struct {
	cfg      config.Config
	log      *logging.Logger
	console  *ui.Console
	confirm  ui.Confirmer
	out      io.Writer
	api      *apiclient.Client
	session  *session.Store
	router   *router.Router
	notifier *notify.Dispatcher
	closers  []func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	a := &app{
		cfg:     cfg,
		log:     log,
		out:     cmd.OutOrStdout(),
		console: ui.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout()),
	}
	a.confirm = a.console
	if rootFlags.yes {
		a.confirm = ui.AutoConfirm(true)
	}

	shutdownTelemetry := telemetry.Setup("patient-client", log)
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	})

	creds, closeStore, err := openCredentialStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.api = apiclient.New(apiclient.Options{BaseURL: cfg.APIBase, Timeout: cfg.HTTPTimeout, Logger: log})
	a.session = session.New(a.api, creds, log)
	a.api.OnUnauthorized(a.session.HandleUnauthorized)
	a.session.Restore(ctx)
	a.router = router.New(a.session)

	provider := notify.NewProvider(notify.ProviderConfig{
		Kind:       cfg.NotifyProvider,
		WebhookURL: cfg.NotifyWebhook,
		Token:      cfg.NotifyToken,
		Out:        a.out,
		Logger:     log.WithComponent("notify"),
	})
	a.notifier = notify.NewDispatcher(provider, 5*time.Second, log)
	return a, nil
}

// close flushes pending notifications and releases resources in reverse order.
func (a *app) close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openCredentialStore(ctx context.Context, cfg config.Config) (store.CredentialStore, func(), error) {
	switch cfg.SessionBackend {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DB_DSN is required for the postgres session backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		s := postgres.NewStore(pool, deviceID(cfg))
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return s, pool.Close, nil
	default:
		s, err := file.NewStore(cfg.SessionDir, cfg.SessionSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("open session dir: %w", err)
		}
		return s, func() {}, nil
	}
}

// deviceID names this machine's row in a shared session table. Without an
// explicit id it is derived from the host name so it is stable across runs.
func deviceID(cfg config.Config) string {
	if cfg.DeviceID != "" {
		return cfg.DeviceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
}

func (a *app) realtime() *realtime.Client {
	url := a.cfg.RealtimeURL
	if url == "" {
		url = realtime.URLFromAPIBase(a.cfg.APIBase)
	}
	rt := realtime.New(realtime.Options{
		URL:          url,
		Credential:   a.session.Credential(),
		ReconnectMax: a.cfg.ReconnectMax,
		Logger:       a.log,
	})
	a.closers = append(a.closers, func() { _ = rt.Close() })
	return rt
}

// connect tries the realtime channel for at most timeout. Commands keep
// working without it.
func (a *app) connect(ctx context.Context, rt *realtime.Client, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rt.Connect(ctx); err != nil {
		a.log.WithError(err).Warn("realtime unavailable")
		return false
	}
	return true
}

func (a *app) dashboard(rt dashboard.Realtime) (*dashboard.Dashboard, error) {
	switch a.router.Screen() {
	case router.ScreenPatientDashboard:
	case router.ScreenStaffPlaceholder:
		return nil, errStaff
	default:
		return nil, errSignedOut
	}
	user, _ := a.session.User()
	return dashboard.New(dashboard.Options{
		User:     user,
		API:      a.api,
		Realtime: rt,
		Router:   a.router,
		Notifier: a.notifier,
		Alerter:  a.console,
		Confirm:  a.confirm,
		Pharmacy: pharmacy.Options{
			PaymentDelay: a.cfg.PaymentDelay,
			ResendWindow: a.cfg.ResendCooldown,
			Logger:       a.log,
		},
		Logger: a.log,
	}), nil
}

// withDashboard runs fn against a freshly loaded dashboard. The realtime
// client is created but only connected when live is set.
func withDashboard(cmd *cobra.Command, live bool, fn func(ctx context.Context, a *app, d *dashboard.Dashboard) error) error {
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
	if live {
		a.connect(ctx, rt, 5*time.Second)
	}
	if err := d.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("refresh incomplete")
	}
	return fn(ctx, a, d)
}
