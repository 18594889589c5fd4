package host

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var retrySleep = time.Second

// Retryable is a source that can be reopened after it fails.
type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

var errStarting = errors.New("starting")

// retry keeps r running until ctx is cancelled, closing and reopening it
// after every error.
func retry(ctx context.Context, r Retryable) error {
	err := errStarting
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			if err != errStarting {
				log.WithField("err", err).Errorf("%s: reopening due to error", r.Name())
				if err = r.Close(); err != nil {
					log.WithField("err", err).Warnf("%s: unable to close", r.Name())
				}
				select {
				case <-time.After(retrySleep):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			err = r.Open()
			if err != nil {
				log.WithField("err", err).Warnf("%s: unable to open", r.Name())
				continue
			}
		}
		err = r.Start(ctx)
	}
}
