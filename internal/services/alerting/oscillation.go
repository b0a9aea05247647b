package alerting

import (
	"github.com/anvh2/market-intel/internal/libs/cache/circular"
	"github.com/anvh2/market-intel/internal/models"
)

// oscillationWindow is how many recent biases the suppressor remembers.
const (
	oscillationWindow     = 6
	oscillationMaxChanges = 3
)

// oscillation suppresses BIAS_SHIFT chatter: with three or more flips inside
// the window, the bias is noise, not news.
type oscillation struct {
	history *circular.Cache
}

func newOscillation() *oscillation {
	return &oscillation{history: circular.New(oscillationWindow)}
}

func (o *oscillation) observe(bias models.Bias) {
	o.history.Insert(bias)
}

func (o *oscillation) suppressed() bool {
	raw := o.history.Sorted()

	changes := 0
	var prev models.Bias
	first := true
	for _, v := range raw {
		bias, ok := v.(models.Bias)
		if !ok {
			continue
		}
		if !first && bias != prev {
			changes++
		}
		prev = bias
		first = false
	}

	return changes >= oscillationMaxChanges
}
