package inbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/pkg/contract"
)

// ErrDeliveryDisabled is returned when no IMAP server is configured.
var ErrDeliveryDisabled = errors.New("inbox delivery is not configured")

// Config holds IMAP delivery settings.
type Config struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`

	// Mailbox receives the appended messages
	Mailbox string `yaml:"mailbox"`

	// Recipient is the To address of every rendered message
	Recipient string `yaml:"recipient"`
}

// DefaultConfig returns sensible defaults. Delivery stays disabled until a
// server is set.
func DefaultConfig() Config {
	return Config{
		UseTLS:    true,
		Mailbox:   "INBOX",
		Recipient: "trainee@lab.local",
	}
}

// Deliverer appends rendered inbox items to a mailbox.
type Deliverer struct {
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewDeliverer creates a deliverer.
func NewDeliverer(cfg Config, logger zerolog.Logger) *Deliverer {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Deliverer{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "inbox_delivery").Logger(),
	}
}

// Enabled reports whether a server is configured.
func (d *Deliverer) Enabled() bool {
	return d.cfg.Server != ""
}

// Deliver renders items and appends them oldest first, so the newest item is
// the last one a client sees arrive. It returns the target mailbox.
func (d *Deliverer) Deliver(ctx context.Context, items []contract.InboxItem) (string, error) {
	if !d.Enabled() {
		return "", ErrDeliveryDisabled
	}

	now := d.now()
	msgs := make([]*Message, 0, len(items))
	for _, item := range items {
		m, err := Render(item, d.cfg.Recipient, now)
		if err != nil {
			return "", fmt.Errorf("render item %d: %w", item.Position, err)
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Date.Before(msgs[j].Date) })

	c, err := d.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := c.Append(d.cfg.Mailbox, flagsFor(m.Date, now), m.Date, bytes.NewBuffer(m.Raw)); err != nil {
			return "", fmt.Errorf("IMAP append failed: %w", err)
		}
	}

	d.logger.Info().
		Str("mailbox", d.cfg.Mailbox).
		Int("count", len(msgs)).
		Msg("Inbox delivered")
	return d.cfg.Mailbox, nil
}

func (d *Deliverer) connect() (*client.Client, error) {
	port := d.cfg.Port
	if port == 0 {
		if d.cfg.UseTLS {
			port = 993
		} else {
			port = 143
		}
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.Server, port)

	var c *client.Client
	var err error

	if d.cfg.UseTLS {
		c, err = client.DialTLS(addr, &tls.Config{
			ServerName: d.cfg.Server,
		})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("IMAP dial failed: %w", err)
	}

	if d.cfg.Username != "" {
		if err := c.Login(d.cfg.Username, d.cfg.Password); err != nil {
			c.Close()
			return nil, fmt.Errorf("IMAP login failed: %w", err)
		}
	}

	if _, err := c.Select(d.cfg.Mailbox, false); err != nil {
		if cerr := c.Create(d.cfg.Mailbox); cerr != nil {
			c.Logout()
			return nil, fmt.Errorf("IMAP mailbox %s unavailable: %w", d.cfg.Mailbox, err)
		}
	}

	d.logger.Debug().Str("server", addr).Msg("IMAP connected")
	return c, nil
}

// flagsFor marks messages older than a day as already read.
func flagsFor(date, now time.Time) []string {
	if now.Sub(date) >= 24*time.Hour {
		return []string{imap.SeenFlag}
	}
	return nil
}
