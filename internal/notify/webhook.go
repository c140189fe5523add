package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/verify"
)

// DefaultWebhookTimeout bounds one delivery to all webhooks.
const DefaultWebhookTimeout = 15 * time.Second

// Webhooks posts embeds to Discord webhook URLs.
type Webhooks struct {
	urls     []string
	client   *http.Client
	username string
	log      *logging.Logger
	errors   *apperror.Handler
	wg       sync.WaitGroup
}

// NewWebhooks creates a notifier. Blank URLs are ignored; client may be nil.
func NewWebhooks(urls []string, client *http.Client, log *logging.Logger, errs *apperror.Handler) *Webhooks {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	if log == nil {
		log = logging.Nop()
	}
	var clean []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}
	return &Webhooks{
		urls:     clean,
		client:   client,
		username: "factlens",
		log:      log.With("component", "notify"),
		errors:   errs,
	}
}

// Enabled reports whether any webhook is configured.
func (w *Webhooks) Enabled() bool {
	return len(w.urls) > 0
}

// Send posts the embeds to every webhook and returns the joined failures.
func (w *Webhooks) Send(ctx context.Context, embeds ...*discordgo.MessageEmbed) error {
	body, err := json.Marshal(&discordgo.WebhookParams{
		Username: w.username,
		Embeds:   embeds,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var errs []error
	for _, hook := range w.urls {
		if err := w.post(ctx, hook, body); err != nil {
			errs = append(errs, err)
			continue
		}
		w.log.Debug("Forwarded to webhook %s", redact(hook))
	}
	return errors.Join(errs...)
}

func (w *Webhooks) post(ctx context.Context, hook string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
	if err != nil {
		return apperror.NewDiscordError(apperror.ErrDiscordConnection, "invalid webhook url", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return apperror.NewDiscordError(apperror.ErrDiscordConnection,
			fmt.Sprintf("failed to reach webhook %s", redact(hook)), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperror.NewDiscordError(apperror.ErrDiscordRateLimit,
			fmt.Sprintf("webhook %s is rate limited", redact(hook)), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return apperror.NewDiscordError(apperror.ErrDiscordConnection,
			fmt.Sprintf("webhook %s returned status %d", redact(hook), resp.StatusCode), nil)
	}
	return nil
}

// Alert delivers a fake-news alert in the background.
func (w *Webhooks) Alert(r *verify.Report) {
	if !w.Enabled() {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer apperror.RecoverFromPanic(w.errors, "notify")

		ctx, cancel := context.WithTimeout(context.Background(), DefaultWebhookTimeout)
		defer cancel()
		if err := w.Send(ctx, AlertEmbed(r)); err != nil {
			w.log.Warning("Webhook alert failed: %v", err)
			if w.errors != nil {
				w.errors.Handle(err, "notify")
			}
		}
	}()
}

// Wait blocks until background alerts have finished.
func (w *Webhooks) Wait() {
	w.wg.Wait()
}

// redact hides the webhook token, which is the last path segment.
func redact(hook string) string {
	if i := strings.LastIndex(hook, "/"); i > 0 && i < len(hook)-1 {
		return hook[:i+1] + "***"
	}
	return hook
}
