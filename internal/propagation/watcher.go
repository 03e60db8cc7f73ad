package propagation

import (
	"sync"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
)

// Watcher получает полные проекции одной пары (провайдер, дата).
// Буфер на одну проекцию: новая вытесняет непрочитанную, поэтому
// медленный читатель всегда видит последнюю и никого не блокирует.
type Watcher struct {
	key calendar.DayKey
	p   *Propagator

	mu     sync.Mutex
	ch     chan *calendar.DayProjection
	closed bool
	// Поколение последней отданной проекции; более старые отбрасываются.
	delivered uint64
}

func newWatcher(p *Propagator, key calendar.DayKey) *Watcher {
	return &Watcher{
		key: key,
		p:   p,
		ch:  make(chan *calendar.DayProjection, 1),
	}
}

func (w *Watcher) Key() calendar.DayKey {
	return w.key
}

// C — канал проекций. Закрывается в Close.
func (w *Watcher) C() <-chan *calendar.DayProjection {
	return w.ch
}

// Close снимает подписку. Повторный вызов безопасен.
func (w *Watcher) Close() {
	w.p.unregister(w)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}

// offer кладёт проекцию, посчитанную для поколения gen ключа.
func (w *Watcher) offer(proj *calendar.DayProjection, gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen < w.delivered {
		return
	}
	w.delivered = gen
	select {
	case <-w.ch:
	default:
	}
	// Писатель один (под mu), буфер только что освобождён.
	w.ch <- proj
}
