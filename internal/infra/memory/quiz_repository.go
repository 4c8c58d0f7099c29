package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from the backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizContent, error)
}

// QuizRepository is the in-process quiz cache used when Redis is not configured.
// Content is kept for ttl and unknown ids for a tenth of it.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	rnd     *rand.Rand
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz    domain.QuizContent
	missing bool
	until   time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]quizEntry),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.QuizContent, error) {
	if entry, ok := r.lookup(quizID); ok {
		return entry.result()
	}

	v, err, _ := r.group.Do(quizID, func() (interface{}, error) {
		if entry, ok := r.lookup(quizID); ok {
			return entry, nil
		}
		// shared by every waiter, so detached from the caller's cancellation
		quiz, err := r.loader.LoadQuiz(context.WithoutCancel(ctx), quizID)
		switch {
		case errors.Is(err, domain.ErrQuizNotFound):
			return r.store(quizID, quizEntry{missing: true}, r.ttl/10), nil
		case err != nil:
			return nil, err
		}
		return r.store(quizID, quizEntry{quiz: quiz}, r.ttl), nil
	})
	if err != nil {
		return domain.QuizContent{}, err
	}
	return v.(quizEntry).result()
}

func (r *QuizRepository) lookup(quizID string) (quizEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[quizID]
	if !ok || !entry.until.After(r.clock()) {
		return quizEntry{}, false
	}
	return entry, true
}

func (r *QuizRepository) store(quizID string, entry quizEntry, ttl time.Duration) quizEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ttl > 0 {
		// up to 10% jitter spreads out reloads of quizzes cached together
		ttl += time.Duration(r.rnd.Int63n(int64(ttl)/10 + 1))
	}
	entry.until = r.clock().Add(ttl)
	r.entries[quizID] = entry
	return entry
}

func (e quizEntry) result() (domain.QuizContent, error) {
	if e.missing {
		return domain.QuizContent{}, domain.ErrQuizNotFound
	}
	return e.quiz, nil
}

// StaticQuizLoader serves a fixed set of quizzes, used when no database is configured.
type StaticQuizLoader map[string]domain.QuizContent

func NewStaticQuizLoader(quizzes map[string]domain.QuizContent) StaticQuizLoader {
	return StaticQuizLoader(quizzes)
}

func (l StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizContent, error) {
	if quiz, ok := l[quizID]; ok {
		return quiz, nil
	}
	return domain.QuizContent{}, domain.ErrQuizNotFound
}
