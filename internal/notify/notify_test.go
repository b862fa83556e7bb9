package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhealth/claimsim/internal/notify"
)

func TestNoopDiscardsEveryPublish(t *testing.T) {
	t.Run("publish always succeeds and close never panics", func(t *testing.T) {
		var n notify.Notifier = notify.Noop{}
		err := n.Publish(context.Background(), "aging.alert", map[string]string{"foo": "bar"})
		assert.NoError(t, err)
		assert.NotPanics(t, n.Close)
	})
}

func TestDialNATSFailsFastOnUnreachableURL(t *testing.T) {
	t.Run("an unreachable url returns an error instead of blocking forever", func(t *testing.T) {
		_, err := notify.DialNATS("nats://127.0.0.1:1", nil)
		assert.Error(t, err)
	})
}
