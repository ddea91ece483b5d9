package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"swimnotify/internal/constants"
	"swimnotify/internal/errors"
	"swimnotify/internal/metrics"
	"swimnotify/internal/models"
	"swimnotify/internal/privacy"
	"swimnotify/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

type sendFunc func(ctx context.Context) (string, error)

// core holds what both providers share: the guarded status snapshot, the
// subscriber set and the logging contract around a transport call.
type core struct {
	mu          sync.RWMutex
	name        string
	status      Status
	broadcaster *Broadcaster
	log         MessageLog
	logger      logrus.FieldLogger
	opts        Options
	pace        *rate.Limiter
	now         func() time.Time
}

func newCore(name string, log MessageLog, logger logrus.FieldLogger, opts Options) core {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("provider", name)
	opts = opts.withDefaults()
	return core{
		name:        name,
		status:      Status{State: StateDisconnected, Provider: name},
		broadcaster: NewBroadcaster(logger),
		log:         log,
		logger:      logger,
		opts:        opts,
		pace:        rate.NewLimiter(paceLimit(opts.SendDelay), 1),
		now:         time.Now,
	}
}

// paceLimit allows one send per delay. No delay means no pacing.
func paceLimit(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func (o Options) withDefaults() Options {
	if o.CountryCode == "" {
		o.CountryCode = constants.DefaultCountryCode
	}
	if o.SendDelay < 0 {
		o.SendDelay = 0
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = constants.DefaultReconnectDelayMs * time.Millisecond
	}
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = constants.DefaultMaxBodyLength
	}
	return o
}

func (c *core) Name() string {
	return c.name
}

// GetStatus returns a copy of the current snapshot
func (c *core) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.clone()
}

func (c *core) AddClient(sub Subscriber) {
	c.broadcaster.Add(sub)
}

func (c *core) RemoveClient(sub Subscriber) {
	c.broadcaster.Remove(sub)
}

// update mutates the status under the lock and broadcasts the result
func (c *core) update(mutate func(s *Status)) {
	c.mu.Lock()
	mutate(&c.status)
	snapshot := c.status.clone()
	c.mu.Unlock()

	metrics.Set(metrics.ConnectionState, stateValue(snapshot.State), map[string]string{"provider": c.name})
	c.logger.WithField("state", snapshot.State).Info("WhatsApp provider state changed")
	c.broadcaster.Broadcast(snapshot)
}

func stateValue(s State) float64 {
	switch s {
	case StateConnected:
		return 1
	case StatePairing:
		return 0.5
	case StateError:
		return -1
	default:
		return 0
	}
}

func (c *core) fields(f logrus.Fields) logrus.Fields {
	if c.opts.Verbose {
		return f
	}
	return privacy.MaskFields(f)
}

// prepare validates msg and returns it with defaults applied and the
// normalized recipient
func (c *core) prepare(msg OutboundMessage) (OutboundMessage, string, error) {
	if msg.To == "" {
		return msg, "", errors.NewValidationError("to", "", "recipient is required")
	}
	if msg.Body == "" {
		return msg, "", errors.NewValidationError("body", "", "message body is required")
	}
	if n := utf8.RuneCountInString(msg.Body); n > c.opts.MaxBodyLength {
		return msg, "", errors.NewValidationError("body", privacy.DescribeBody(msg.Body),
			fmt.Sprintf("message body exceeds %d characters", c.opts.MaxBodyLength))
	}
	if msg.Category == "" {
		msg.Category = models.CategoryNotification
	}
	if !msg.Category.Valid() {
		return msg, "", errors.NewValidationError("category", string(msg.Category), "unknown message category")
	}

	recipient, err := NormalizePhone(msg.To, c.opts.CountryCode)
	if err != nil {
		return msg, "", err
	}
	return msg, recipient, nil
}

// deliver runs one transport attempt wrapped in exactly one log entry.
// Log store failures are reported and never change the send outcome.
func (c *core) deliver(ctx context.Context, msg OutboundMessage, recipient string, send sendFunc) (*DeliveryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "gateway.send",
		attribute.String("provider", c.name),
		attribute.String("category", string(msg.Category)),
	)
	defer span.End()

	labels := map[string]string{"provider": c.name, "category": string(msg.Category)}
	result := &DeliveryResult{Recipient: recipient, Provider: c.name}
	logger := c.logger.WithFields(c.fields(logrus.Fields{
		"recipient": recipient,
		"category":  string(msg.Category),
	}))

	if c.log != nil {
		logID, err := c.log.Create(ctx, &models.MessageLog{
			Recipient:     recipient,
			RecipientName: msg.RecipientName,
			Body:          msg.Body,
			Category:      msg.Category,
			Status:        models.DeliveryStatusPending,
			SenderRef:     msg.SenderRef,
			Provider:      c.name,
			Metadata:      msg.Metadata,
		})
		if err != nil {
			errors.LogWarn(logger, errors.NewLogWriteError("create", err), "Failed to create message log entry")
		}
		result.LogID = logID
	}

	start := time.Now()
	transportID, sendErr := send(ctx)
	metrics.Observe(metrics.SendDuration, time.Since(start), labels)

	update := models.MessageLogUpdate{At: c.now()}
	c.mu.Lock()
	if sendErr != nil {
		c.status.Stats.TotalFailed++
	} else {
		c.status.Stats.TotalSent++
	}
	c.mu.Unlock()

	if sendErr != nil {
		text := errorText(sendErr)
		update.Status = models.DeliveryStatusFailed
		update.Error = &text
		result.Error = text
		metrics.Inc(metrics.MessagesFailed, labels)
		tracing.RecordError(ctx, sendErr)
		errors.LogWarn(logger, sendErr, "Failed to send WhatsApp message")
	} else {
		update.Status = models.DeliveryStatusSent
		update.TransportID = &transportID
		result.Success = true
		result.TransportID = transportID
		metrics.Inc(metrics.MessagesSent, labels)
		logger.WithFields(c.fields(logrus.Fields{"transport_id": transportID})).Debug("WhatsApp message sent")
	}

	if c.log != nil && result.LogID != "" {
		if err := c.log.Update(ctx, result.LogID, update); err != nil {
			errors.LogWarn(logger.WithField("log_id", result.LogID), errors.NewLogWriteError("update", err), "Failed to finalize message log entry")
		}
	}

	return result, sendErr
}

// bulk sends msgs one at a time, paced by the send delay.
// Every input gets exactly one result, in input order.
func (c *core) bulk(ctx context.Context, msgs []OutboundMessage, sendOne func(context.Context, OutboundMessage) (*DeliveryResult, error)) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(msgs))
	for i, msg := range msgs {
		if err := c.wait(ctx); err != nil {
			for _, rest := range msgs[i:] {
				results = append(results, DeliveryResult{Recipient: rest.To, Provider: c.name, Error: err.Error()})
			}
			break
		}

		res, err := sendOne(ctx, msg)
		if res == nil {
			res = &DeliveryResult{Recipient: msg.To, Provider: c.name}
		}
		if err != nil && res.Error == "" {
			res.Error = errorText(err)
		}
		results = append(results, *res)
	}
	return results
}

// wait blocks until the pacing limiter allows another send. Bulk sends and
// the session queue drain share the limiter.
func (c *core) wait(ctx context.Context) error {
	return c.pace.Wait(ctx)
}

// errorText is what lands in the log entry and the result: the remote
// diagnostic for rejections, the full error otherwise.
func errorText(err error) string {
	if errors.IsTransportRejected(err) || errors.IsNotReady(err) || errors.HasCode(err, errors.ErrCodeValidationFailed) {
		return errors.GetUserMessage(err)
	}
	return err.Error()
}
