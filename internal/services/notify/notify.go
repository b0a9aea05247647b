package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/externals/telegram"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/libs/queue"
	"github.com/anvh2/market-intel/internal/models"
	"go.uber.org/zap"
)

const (
	// AlertTopic is where the scheduler publishes emitted alerts.
	AlertTopic = "market.alerts"

	consumerGroup = "notifier"
	pollBackoff   = 2 * time.Second
)

// Notifier drains the alert topic and pushes rendered messages to the
// configured telegram channels.
type Notifier struct {
	config      config.NotifyConfig
	logger      *logger.Logger
	notify      telegram.Notify
	queue       queue.IQueue
	quitChannel chan struct{}
}

func New(
	cfg config.NotifyConfig,
	logger *logger.Logger,
	notify telegram.Notify,
	q queue.IQueue,
) *Notifier {
	return &Notifier{
		config:      cfg,
		logger:      logger,
		notify:      notify,
		queue:       q,
		quitChannel: make(chan struct{}),
	}
}

func (s *Notifier) Start() error {
	go s.consume()
	return nil
}

func (s *Notifier) Stop() {
	close(s.quitChannel)
}

func (s *Notifier) consume() {
	ticker := time.NewTicker(pollBackoff)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.drain()
		case <-s.quitChannel:
			return
		}
	}
}

func (s *Notifier) drain() {
	for {
		msg, err := s.queue.Consume(context.Background(), AlertTopic, consumerGroup)
		if err != nil {
			if !errors.Is(err, queue.ErrNoMessageAvailable) && !errors.Is(err, queue.ErrMustCommitBeforeConsuming) {
				s.logger.Error("[Notify] consume failed", zap.Error(err))
			}
			return
		}

		alert, ok := msg.Data.(*models.Alert)
		if ok {
			s.deliver(alert)
		}

		if err := msg.Commit(context.Background()); err != nil {
			s.logger.Error("[Notify] commit failed", zap.Error(err))
			return
		}
	}
}

func (s *Notifier) deliver(alert *models.Alert) {
	channel, ok := s.config.Channels["alerts"]
	if !ok {
		s.logger.Warn("[Notify] no alerts channel configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.notify.PushNotify(ctx, channel, render(alert)); err != nil {
		s.logger.Error("[Notify] push failed",
			zap.String("category", string(alert.Category)), zap.Error(err))
	}
}

func render(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(alert.Priority)), alert.Title)
	fmt.Fprintf(&b, "%s\n", alert.Description)
	if alert.Context.Previous != "" || alert.Context.Current != "" {
		fmt.Fprintf(&b, "%s -> %s\n", alert.Context.Previous, alert.Context.Current)
	}
	if alert.ActionableInsight != "" {
		fmt.Fprintf(&b, "%s\n", alert.ActionableInsight)
	}
	return b.String()
}
