package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"newspulse-bot/internal/domain"
)

// Summaries хранит дедуплицированные новости в памяти.
type Summaries struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]domain.NewsSummary
	byText map[string]int64
}

var _ domain.SummaryRepo = (*Summaries)(nil)

// NewSummaries создаёт пустое хранилище новостей.
func NewSummaries() *Summaries {
	return &Summaries{byID: make(map[int64]domain.NewsSummary), byText: make(map[string]int64)}
}

// FindOrCreate возвращает новость с тем же текстом или создаёт новую под одной блокировкой.
func (r *Summaries) FindOrCreate(_ context.Context, category string, item domain.NewsItem) (domain.NewsSummary, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byText[item.SummaryText]; ok {
		return r.byID[id], false, nil
	}
	r.nextID++
	s := domain.NewsSummary{
		ID:          r.nextID,
		Category:    category,
		Title:       item.Title,
		SummaryText: item.SummaryText,
		SourceURL:   item.SourceURL,
		CreatedAt:   time.Now().UTC(),
	}
	r.byID[s.ID] = s
	r.byText[s.SummaryText] = s.ID
	return s, true, nil
}

// GetSummary возвращает новость по ID.
func (r *Summaries) GetSummary(_ context.Context, id int64) (domain.NewsSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.NewsSummary{}, domain.ErrSummaryNotFound
	}
	return s, nil
}

// Count возвращает число сохранённых новостей.
func (r *Summaries) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type scheduleKey struct {
	userID    int64
	summaryID int64
}

// Schedules хранит записи расписания в памяти.
type Schedules struct {
	mu      sync.Mutex
	nextID  int64
	entries map[scheduleKey]domain.ScheduleEntry
}

var _ domain.ScheduleRepo = (*Schedules)(nil)

// NewSchedules создаёт пустое хранилище расписания.
func NewSchedules() *Schedules {
	return &Schedules{entries: make(map[scheduleKey]domain.ScheduleEntry)}
}

// CreateIfAbsent создаёт запись, если пары (пользователь, новость) ещё нет.
func (r *Schedules) CreateIfAbsent(_ context.Context, entry domain.ScheduleEntry) (bool, error) {
	key := scheduleKey{userID: entry.UserID, summaryID: entry.SummaryID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false, nil
	}
	r.nextID++
	entry.ID = r.nextID
	entry.CreatedAt = time.Now().UTC()
	entry.SendMethods = append([]domain.SendMethod(nil), entry.SendMethods...)
	r.entries[key] = entry
	return true, nil
}

// ListForUser возвращает записи пользователя по времени отправки.
func (r *Schedules) ListForUser(_ context.Context, userID int64) ([]domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduleEntry
	for key, e := range r.entries {
		if key.userID == userID {
			e.SendMethods = append([]domain.SendMethod(nil), e.SendMethods...)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SendTime.Equal(out[j].SendTime) {
			return out[i].SendTime.Before(out[j].SendTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Count возвращает общее число записей.
func (r *Schedules) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
