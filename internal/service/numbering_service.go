package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prs/internal/apperror"
	"prs/internal/repository"

	"go.uber.org/zap"
)

const (
	requestNumberDateLayout = "20060102"
	maxDailySequence        = 9999
)

// NumberingService hands out request numbers of the form YYYYMMDDNNNN.
type NumberingService interface {
	// Assign runs create with a fresh number in its own transaction and retries
	// with the next sequence when the number is already taken.
	Assign(ctx context.Context, create func(txCtx context.Context, number string) error) (string, error)
}

type numberingService struct {
	requestRepo repository.RequestRepository
	txManager   repository.TransactionManager
	now         func() time.Time
	maxAttempts int
	log         *zap.Logger
}

func NewNumberingService(
	requestRepo repository.RequestRepository,
	txManager repository.TransactionManager,
	now func() time.Time,
	maxAttempts int,
	log *zap.Logger,
) NumberingService {
	if now == nil {
		now = time.Now
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &numberingService{
		requestRepo: requestRepo,
		txManager:   txManager,
		now:         now,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// FormatRequestNumber renders the UTC date stamp followed by a 4-digit sequence.
func FormatRequestNumber(day time.Time, sequence int64) string {
	return fmt.Sprintf("%s%04d", day.UTC().Format(requestNumberDateLayout), sequence)
}

// next returns today's count+1+skip. The day's advisory lock is held until the
// surrounding transaction ends.
func (s *numberingService) next(ctx context.Context, skip int64) (string, error) {
	today := s.now().UTC()
	prefix := today.Format(requestNumberDateLayout)

	if err := s.requestRepo.LockNumberPrefix(ctx, prefix); err != nil {
		return "", fmt.Errorf("failed to lock request numbers for %s: %w", prefix, err)
	}

	count, err := s.requestRepo.CountByNumberPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to count requests for %s: %w", prefix, err)
	}

	sequence := count + 1 + skip
	if sequence > maxDailySequence {
		return "", apperror.Conflict("daily request number limit reached for %s", prefix)
	}
	return FormatRequestNumber(today, sequence), nil
}

func (s *numberingService) Assign(ctx context.Context, create func(txCtx context.Context, number string) error) (string, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		var number string
		err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			var genErr error
			number, genErr = s.next(txCtx, int64(attempt))
			if genErr != nil {
				return genErr
			}
			return create(txCtx, number)
		})
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return "", err
		}
		s.log.Warn("request number already taken, retrying",
			zap.String("request_number", number),
			zap.Int("attempt", attempt+1))
	}

	return "", apperror.ConcurrencyConflict("could not allocate a unique request number after %d attempts", s.maxAttempts)
}
