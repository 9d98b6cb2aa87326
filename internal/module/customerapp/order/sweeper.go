package order

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/pkg/monitoring"
)

// Sweeper is the safety net behind the deferred expire callbacks. It
// periodically scans for PENDING orders past their hold deadline and expires
// them through the same compare-and-set path the callback uses, so an order
// is never reclaimed twice.
type Sweeper struct {
	logger    *logrus.Logger
	interval  time.Duration
	batchSize int64
	orderRepo OrderRepository
	useCase   OrderUseCase
}

type SweeperProperty struct {
	Logger          *logrus.Logger
	Interval        time.Duration
	BatchSize       int64
	OrderRepository OrderRepository
	OrderUseCase    OrderUseCase
}

func NewSweeper(props SweeperProperty) *Sweeper {
	return &Sweeper{
		logger:    props.Logger,
		interval:  props.Interval,
		batchSize: props.BatchSize,
		orderRepo: props.OrderRepository,
		useCase:   props.OrderUseCase,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.WithContext(ctx).WithError(err).Error("expiry sweep failed")
			}
		}
	}
}

// Sweep expires one batch of overdue orders and returns how many it
// reclaimed. Orders that were settled between the scan and the expire attempt
// are skipped, not failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() {
		monitoring.ObserveSweepDuration(time.Since(started).Seconds())
	}()

	ids, err := s.orderRepo.FindExpiredIDs(ctx, time.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	var reclaimed int
	for _, id := range ids {
		expired, err := s.useCase.ExpireOrder(ctx, id)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Errorf("failed to expire order '%s'", id)
			continue
		}

		if expired {
			reclaimed++
		}
	}

	if reclaimed > 0 {
		monitoring.AddExpiredOrdersReclaimed(reclaimed)
		s.logger.WithContext(ctx).Infof("expiry sweep reclaimed %d order(s)", reclaimed)
	}

	return reclaimed, nil
}
