package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

// Report описывает итог прогона планировщика.
type Report struct {
	Users       int `json:"users"`
	Fetched     int `json:"fetched"`
	Created     int `json:"created"`
	Skipped     int `json:"skipped"`
	FetchErrors int `json:"fetch_errors"`
}

func (r *Report) add(other Report) {
	r.Users += other.Users
	r.Fetched += other.Fetched
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.FetchErrors += other.FetchErrors
}

// Options задаёт параметры сервиса планирования.
type Options struct {
	Location     *time.Location
	FetchTimeout time.Duration
	Workers      int
	Now          func() time.Time
}

// Service получает новости, дедуплицирует их и создаёт записи расписания.
type Service struct {
	users     domain.UserRepo
	summaries domain.SummaryRepo
	schedules domain.ScheduleRepo
	news      domain.NewsSource
	log       zerolog.Logger

	loc          *time.Location
	fetchTimeout time.Duration
	workers      int
	now          func() time.Time
}

var _ domain.ScheduleTrigger = (*Service)(nil)

// NewService создаёт сервис.
func NewService(users domain.UserRepo, summaries domain.SummaryRepo, schedules domain.ScheduleRepo, news domain.NewsSource, logger zerolog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		users:        users,
		summaries:    summaries,
		schedules:    schedules,
		news:         news,
		log:          logger,
		loc:          opts.Location,
		fetchTimeout: opts.FetchTimeout,
		workers:      opts.Workers,
		now:          opts.Now,
	}
}

// RunForUser планирует новости одного пользователя. Неподписанный пользователь пропускается.
func (s *Service) RunForUser(ctx context.Context, userID int64) (Report, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("получение пользователя %d: %w", userID, err)
	}
	if !user.Subscribed {
		s.log.Debug().Int64("user", userID).Msg("schedule: пользователь не подписан, пропускаем")
		return Report{}, nil
	}
	start := time.Now()
	defer func() { metrics.ScheduleRunSeconds.Observe(time.Since(start).Seconds()) }()
	return s.planUser(ctx, user), nil
}

// RunAll планирует новости всех подписанных пользователей ограниченным пулом воркеров.
func (s *Service) RunAll(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { metrics.ScheduleRunSeconds.Observe(time.Since(start).Seconds()) }()

	users, err := s.users.ListSubscribed(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("список подписчиков: %w", err)
	}

	var (
		mu    sync.Mutex
		total Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, user := range users {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			rep := s.planUser(gctx, user)
			mu.Lock()
			total.add(rep)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().
		Int("users", total.Users).
		Int("fetched", total.Fetched).
		Int("created", total.Created).
		Int("skipped", total.Skipped).
		Int("fetch_errors", total.FetchErrors).
		Dur("took", time.Since(start)).
		Msg("schedule: прогон завершён")
	return total, ctx.Err()
}

// TriggerUser запускает планирование для пользователя и пишет итог в лог.
func (s *Service) TriggerUser(ctx context.Context, userID int64) error {
	rep, err := s.RunForUser(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Info().Int64("user", userID).Int("created", rep.Created).Int("skipped", rep.Skipped).Msg("schedule: пользователь запланирован")
	return nil
}

func (s *Service) planUser(ctx context.Context, user domain.UserAccount) Report {
	rep := Report{Users: 1}
	hour, minute := preferredClock(user.PreferredTime)
	sendTime := NextSendTime(s.now(), hour, minute, s.loc)
	methods := user.DeliveryMethod.SendMethods()
	log := s.log.With().Int64("user", user.ID).Logger()

	for _, category := range user.Categories {
		if ctx.Err() != nil {
			return rep
		}
		items, err := s.fetch(ctx, category)
		if err != nil {
			rep.FetchErrors++
			metrics.IncFetchError(category)
			log.Warn().Err(err).Str("category", category).Msg("schedule: не удалось получить новости")
			continue
		}
		rep.Fetched += len(items)
		for _, item := range items {
			if item.SummaryText == "" {
				rep.Skipped++
				continue
			}
			summary, created, err := s.summaries.FindOrCreate(ctx, category, item)
			if err != nil {
				log.Error().Err(err).Str("category", category).Msg("schedule: не удалось сохранить новость")
				continue
			}
			if created {
				metrics.NewsSummariesCreated.Inc()
			}
			ok, err := s.schedules.CreateIfAbsent(ctx, domain.ScheduleEntry{
				UserID:      user.ID,
				SummaryID:   summary.ID,
				SendTime:    sendTime,
				SendMethods: methods,
			})
			if err != nil {
				log.Error().Err(err).Int64("summary", summary.ID).Msg("schedule: не удалось создать запись расписания")
				continue
			}
			if ok {
				rep.Created++
				metrics.ScheduleEntriesCreated.Inc()
			} else {
				rep.Skipped++
			}
		}
	}
	return rep
}

func (s *Service) fetch(ctx context.Context, category string) ([]domain.NewsItem, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	items, err := s.news.FetchCategory(ctx, category)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("таймаут получения %s: %w", category, err)
		}
		return nil, err
	}
	return items, nil
}
