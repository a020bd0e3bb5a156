package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Notification is a local device notification.
type Notification struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Provider interface {
	Send(ctx context.Context, n Notification) error
}

type ProviderConfig struct {
	Kind       string
	WebhookURL string
	Token      string
	Out        io.Writer
	Logger     *logrus.Entry
}

func NewProvider(cfg ProviderConfig) Provider {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	switch cfg.Kind {
	case "", "stdout", "console":
		if cfg.Out == nil {
			return logProvider{log: log}
		}
		return &writerProvider{out: cfg.Out}
	case "log":
		return logProvider{log: log}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			return logProvider{log: log}
		}
		return webhookProvider{url: cfg.WebhookURL, token: cfg.Token}
	default:
		if strings.HasPrefix(cfg.Kind, "http://") || strings.HasPrefix(cfg.Kind, "https://") {
			return webhookProvider{url: cfg.Kind, token: cfg.Token}
		}
		return logProvider{log: log}
	}
}

type writerProvider struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *writerProvider) Send(ctx context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, "\n🔔 %s\n   %s\n", n.Title, n.Body)
	return err
}

type logProvider struct {
	log *logrus.Entry
}

func (p logProvider) Send(ctx context.Context, n Notification) error {
	p.log.WithFields(logrus.Fields{"kind": n.Kind, "title": n.Title}).Info(n.Body)
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, n Notification) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, n Notification) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	url   string
	token string
}

func (p webhookProvider) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
	}
	return nil
}
