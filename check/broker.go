package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Broker dials the first reachable Kafka broker and asks it for the cluster
// controller.
func Broker(brokers []string, timeout time.Duration) Check {
	return Func(func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errors.New("no brokers configured")
		}

		dialer := &kafka.Dialer{Timeout: timeout}

		var lastErr error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}

			controller, err := conn.Controller()
			conn.Close()
			if err != nil {
				lastErr = err
				continue
			}

			if controller.Host == "" {
				return fmt.Errorf("broker %s reported no controller", addr)
			}

			return nil
		}

		return fmt.Errorf("unable to reach any of %d broker(s): %w", len(brokers), lastErr)
	})
}
