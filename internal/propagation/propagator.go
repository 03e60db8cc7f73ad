package propagation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
)

// Projector строит свежую проекцию, минуя кэш.
type Projector interface {
	ProjectDay(ctx context.Context, key calendar.DayKey) (*calendar.DayProjection, error)
}

// Invalidator сбрасывает закэшированные проекции, затронутые изменением.
type Invalidator interface {
	Invalidate(c Change)
}

// Bridge доставляет изменения другим экземплярам сервиса.
type Bridge interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe блокируется до отмены ctx.
	Subscribe(ctx context.Context, handle func(Change)) error
	Close() error
}

type Options struct {
	Invalidator Invalidator
	Bridge      Bridge
	Logger      zerolog.Logger
	// Пауза перед повтором неудавшейся перепроекции.
	RetryDelay time.Duration
	// Идентификатор экземпляра; по умолчанию случайный.
	Origin string
}

const defaultRetryDelay = 2 * time.Second

// Propagator следит за изменениями записей и рассылает наблюдателям
// полные перепроекции. Срабатывание по уровню: ключ помечается грязным,
// цикл Run перепроецирует каждый грязный ключ один раз, сколько бы
// изменений ни пришло за это время.
type Propagator struct {
	projector   Projector
	invalidator Invalidator
	bridge      Bridge
	log         zerolog.Logger
	retryDelay  time.Duration
	origin      string

	mu       sync.Mutex
	watchers map[calendar.DayKey]map[*Watcher]struct{}
	dirty    map[calendar.DayKey]struct{}
	// Поколение ключа растёт при каждой пометке; по нему Watch понимает,
	// не устарела ли начальная проекция.
	gen  map[calendar.DayKey]uint64
	wake chan struct{}
}

func New(projector Projector, opts Options) *Propagator {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	return &Propagator{
		projector:   projector,
		invalidator: opts.Invalidator,
		bridge:      opts.Bridge,
		log:         opts.Logger,
		retryDelay:  opts.RetryDelay,
		origin:      opts.Origin,
		watchers:    make(map[calendar.DayKey]map[*Watcher]struct{}),
		dirty:       make(map[calendar.DayKey]struct{}),
		gen:         make(map[calendar.DayKey]uint64),
		wake:        make(chan struct{}, 1),
	}
}

// Watch подписывает на пару (провайдер, дата) и сразу кладёт в канал
// текущую проекцию.
func (p *Propagator) Watch(ctx context.Context, providerID uuid.UUID, date time.Time) (*Watcher, error) {
	key := calendar.NewDayKey(providerID, date)
	w := newWatcher(p, key)

	p.mu.Lock()
	if p.watchers[key] == nil {
		p.watchers[key] = make(map[*Watcher]struct{})
	}
	p.watchers[key][w] = struct{}{}
	gen := p.gen[key]
	p.mu.Unlock()

	proj, err := p.projector.ProjectDay(ctx, key)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("initial projection %s: %w", key, err)
	}

	// Проверка и доставка под одним p.mu: иначе flush успел бы отдать
	// свежую проекцию между ними, и начальная её затёрла бы.
	// Если за время расчёта ключ пометили, свежую проекцию доставит Run.
	p.mu.Lock()
	if p.gen[key] == gen {
		w.offer(proj, gen)
	}
	p.mu.Unlock()

	p.log.Debug().Str("key", key.String()).Msg("watcher registered")
	return w, nil
}

func (p *Propagator) unregister(w *Watcher) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.watchers[w.key]
	if !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(p.watchers, w.key)
		delete(p.dirty, w.key)
		delete(p.gen, w.key)
	}
}

// WatcherCount — число наблюдателей ключа.
func (p *Propagator) WatcherCount(key calendar.DayKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers[key])
}

// Publish применяет изменение локально и, если настроен мост, рассылает
// его остальным экземплярам. Ошибка моста не отменяет локального эффекта.
func (p *Propagator) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	c.Origin = p.origin
	p.apply(c)

	if p.bridge == nil {
		return nil
	}
	if err := p.bridge.Publish(ctx, c); err != nil {
		p.log.Warn().Err(err).Str("provider_id", c.ProviderID.String()).Msg("bridge publish failed")
		return fmt.Errorf("bridge publish: %w", err)
	}
	return nil
}

func (p *Propagator) apply(c Change) {
	if p.invalidator != nil {
		p.invalidator.Invalidate(c)
	}

	p.mu.Lock()
	var marked int
	for key := range p.watchers {
		if c.Matches(key) {
			p.dirty[key] = struct{}{}
			p.gen[key]++
			marked++
		}
	}
	p.mu.Unlock()

	if marked > 0 {
		p.signal()
	}
}

func (p *Propagator) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// fromBridge обрабатывает изменение другого экземпляра.
func (p *Propagator) fromBridge(c Change) {
	if c.Origin == p.origin {
		return
	}
	p.apply(c)
}

// Run крутит цикл перепроекции до отмены ctx. Если задан мост, параллельно
// слушает изменения других экземпляров.
func (p *Propagator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if p.bridge != nil {
		g.Go(func() error {
			err := p.bridge.Subscribe(ctx, p.fromBridge)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bridge subscribe: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		p.loop(ctx)
		return nil
	})

	return g.Wait()
}

func (p *Propagator) loop(ctx context.Context) {
	var retry <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-retry:
			retry = nil
		}

		if failed := p.flush(ctx); failed && retry == nil {
			retry = time.After(p.retryDelay)
		}
	}
}

// flush перепроецирует грязные ключи. Неудачные остаются грязными.
func (p *Propagator) flush(ctx context.Context) (failed bool) {
	p.mu.Lock()
	keys := make([]calendar.DayKey, 0, len(p.dirty))
	gens := make(map[calendar.DayKey]uint64, len(p.dirty))
	for key := range p.dirty {
		keys = append(keys, key)
		gens[key] = p.gen[key]
	}
	clear(p.dirty)
	p.mu.Unlock()

	for _, key := range keys {
		if ctx.Err() != nil {
			p.remark(key)
			return true
		}

		proj, err := p.projector.ProjectDay(ctx, key)
		if err != nil {
			p.log.Error().Err(err).Str("key", key.String()).Msg("re-projection failed, will retry")
			p.remark(key)
			failed = true
			continue
		}

		for _, w := range p.snapshot(key) {
			w.offer(proj, gens[key])
		}
	}
	return failed
}

func (p *Propagator) remark(key calendar.DayKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.watchers[key]; ok {
		p.dirty[key] = struct{}{}
	}
}

func (p *Propagator) snapshot(key calendar.DayKey) []*Watcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Watcher, 0, len(p.watchers[key]))
	for w := range p.watchers[key] {
		out = append(out, w)
	}
	return out
}
