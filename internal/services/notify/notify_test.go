package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/libs/queue"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mutex    sync.Mutex
	messages []string
	chats    []int64
}

func (f *fakeBot) PushNotify(ctx context.Context, chatID int64, message string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.messages = append(f.messages, message)
	f.chats = append(f.chats, chatID)
	return nil
}

func (f *fakeBot) Stop() {}

func (f *fakeBot) count() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.messages)
}

func TestRender(t *testing.T) {
	alert := &models.Alert{
		Category:    models.AlertBiasShift,
		Priority:    models.PriorityHigh,
		Title:       "Bias shifted WAIT to LONG",
		Description: "Aggregated bias moved",
		Context: models.AlertContext{
			Previous: "WAIT", Current: "LONG", TriggerEvent: "bias_changed",
		},
		ActionableInsight: "Look for long setups",
	}

	text := render(alert)
	assert.Contains(t, text, "[HIGH]")
	assert.Contains(t, text, "Bias shifted WAIT to LONG")
	assert.Contains(t, text, "WAIT -> LONG")
	assert.Contains(t, text, "Look for long setups")
}

func TestNotifierDrainsQueue(t *testing.T) {
	q := queue.New()
	defer q.Close()

	bot := &fakeBot{}
	notifier := New(config.NotifyConfig{Channels: map[string]int64{"alerts": 42}}, logger.NewDev(), bot, q)

	require.NoError(t, q.Push(context.Background(), AlertTopic, &models.Alert{
		Category: models.AlertRegimeChange,
		Priority: models.PriorityHigh,
		Title:    "Regime changed to trending",
	}))

	notifier.drain()

	require.Equal(t, 1, bot.count())
	assert.Equal(t, int64(42), bot.chats[0])
	assert.Contains(t, bot.messages[0], "Regime changed")

	// Nothing left on the topic.
	notifier.drain()
	assert.Equal(t, 1, bot.count())
}
