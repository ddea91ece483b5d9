package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swimnotify/internal/constants"
	"swimnotify/internal/gateway"
	"swimnotify/internal/roster"

	"github.com/sirupsen/logrus"
)

// Job names used for registration and the manual trigger endpoint
const (
	JobDailyReminder   = "daily-reminder"
	JobWeeklyRecap     = "weekly-recap"
	JobPaymentReminder = "payment-reminder"
)

// ProducerConfig tunes the scheduled producers
type ProducerConfig struct {
	Location       *time.Location
	AdminPhone     string
	MaxChunkLength int
	Delay          time.Duration
}

// Producers compose scheduled messages from the roster and hand them to
// the provider one at a time
type Producers struct {
	provider gateway.Provider
	source   roster.Source
	config   ProducerConfig
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewProducers(provider gateway.Provider, source roster.Source, config ProducerConfig, logger logrus.FieldLogger) *Producers {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.MaxChunkLength <= 0 {
		config.MaxChunkLength = constants.DefaultMaxChunkLength
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Producers{
		provider: provider,
		source:   source,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Jobs returns every producer wrapped in a single-flight Job
func (p *Producers) Jobs(logger logrus.FieldLogger) []*Job {
	return []*Job{
		NewJob(JobDailyReminder, p.DailyReminder, logger),
		NewJob(JobWeeklyRecap, p.WeeklyRecap, logger),
		NewJob(JobPaymentReminder, p.PaymentReminder, logger),
	}
}

// sendAll sends msgs in order, waiting the configured delay between
// them. A failed recipient is logged and the loop continues.
func (p *Producers) sendAll(ctx context.Context, job string, msgs []gateway.OutboundMessage) (RunSummary, error) {
	var summary RunSummary
	for i, msg := range msgs {
		if i > 0 {
			if err := p.wait(ctx); err != nil {
				return summary, err
			}
		}

		summary.Attempted++
		res, err := p.provider.SendMessage(ctx, msg)
		switch {
		case err == nil:
			summary.Sent++
		case res != nil && res.Queued:
			summary.Queued++
		default:
			summary.Failed++
		}
		LogSend(ctx, p.logger, job, msg.To, msg.RecipientName, err)
	}
	return summary, nil
}

func (p *Producers) wait(ctx context.Context) error {
	if p.config.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.config.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chunked turns a long text into one message per chunk
func (p *Producers) chunked(base gateway.OutboundMessage, text string) []gateway.OutboundMessage {
	chunks := ChunkMessage(text, p.config.MaxChunkLength)
	out := make([]gateway.OutboundMessage, 0, len(chunks))
	for i, chunk := range chunks {
		msg := base
		msg.Body = chunk
		if len(chunks) > 1 {
			msg.Metadata = withMeta(base.Metadata, "part", fmt.Sprintf("%d/%d", i+1, len(chunks)))
		}
		out = append(out, msg)
	}
	return out
}

func (p *Producers) today() (time.Time, time.Time) {
	now := p.now().In(p.config.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.config.Location)
	return start, start.AddDate(0, 0, 1)
}

func withMeta(meta map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}

var indonesianDays = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

var indonesianMonths = [...]string{"", "Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember"}

// formatDate renders "Senin, 2 Maret 2026"
func formatDate(t time.Time) string {
	return fmt.Sprintf("%s, %d %s %d", indonesianDays[t.Weekday()], t.Day(), indonesianMonths[t.Month()], t.Year())
}

func formatClock(t time.Time) string {
	return t.Format("15.04")
}

// formatRupiah renders 450000 as "Rp450.000"
func formatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "Rp" + b.String()
}
