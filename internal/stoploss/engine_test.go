package stoploss

import (
	"math"
	"testing"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"
)

func init() {
	logger.Init()
}

func testEngine() *Engine {
	return New(config.StopConfig{
		TrailPct:     0.2,
		FixedPct:     0.5,
		MinUpdatePct: 0.1,
		// интервал нулевой, чтобы тесты не зависели от часов
	})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeStopLong(t *testing.T) {
	e := testEngine()

	// в плюсе: трейлинг 0.2% от текущей
	if got := e.ComputeStop(100, 103, models.PosSideLong); !approx(got, 103*0.998) {
		t.Errorf("лонг в плюсе: %v, ждали %v", got, 103*0.998)
	}
	// в минусе: фикс 0.5% от входа
	if got := e.ComputeStop(100, 97, models.PosSideLong); !approx(got, 99.5) {
		t.Errorf("лонг в минусе: %v, ждали 99.5", got)
	}
	// ровно на входе — ещё entry-ветка
	if got := e.ComputeStop(100, 100, models.PosSideLong); !approx(got, 99.5) {
		t.Errorf("лонг на входе: %v, ждали 99.5", got)
	}
}

func TestComputeStopShort(t *testing.T) {
	e := testEngine()

	// шорт в плюсе (цена ниже входа): трейлинг 0.2% выше текущей
	if got := e.ComputeStop(100, 95, models.PosSideShort); !approx(got, 95*1.002) {
		t.Errorf("шорт в плюсе: %v, ждали %v", got, 95*1.002)
	}
	// шорт в минусе: фикс 0.5% выше входа
	if got := e.ComputeStop(100, 104, models.PosSideShort); !approx(got, 100.5) {
		t.Errorf("шорт в минусе: %v, ждали 100.5", got)
	}
	if got := e.ComputeStop(100, 100, models.PosSideShort); !approx(got, 100.5) {
		t.Errorf("шорт на входе: %v, ждали 100.5", got)
	}
}

// Известная острая грань: при пересечении ценой уровня входа снизу
// вверх стоп скачет с entry-ветки (99.5) сразу на current-ветку
// (~entry×0.998) без плавного перехода. Поведение сохранено как есть.
func TestEntryCrossDiscontinuity(t *testing.T) {
	e := testEngine()

	below := e.ComputeStop(100, 99.999, models.PosSideLong)
	above := e.ComputeStop(100, 100.001, models.PosSideLong)

	if !approx(below, 99.5) {
		t.Fatalf("чуть ниже входа: %v, ждали 99.5", below)
	}
	wantAbove := 100.001 * 0.998
	if !approx(above, wantAbove) {
		t.Fatalf("чуть выше входа: %v, ждали %v", above, wantAbove)
	}
	// разрыв ~0.3% при бесконечно малом движении цены
	jump := (above - below) / below * 100
	if jump < 0.29 || jump > 0.31 {
		t.Errorf("скачок на пересечении входа = %.4f%%, ждали ~0.3%%", jump)
	}
}

func TestShouldUpdateMonotonic(t *testing.T) {
	e := testEngine()

	// лонг: только вверх
	if !e.ShouldUpdate(99.5, 102.79, models.PosSideLong) {
		t.Error("ужесточение лонг-стопа должно проходить")
	}
	if e.ShouldUpdate(102.79, 99.5, models.PosSideLong) {
		t.Error("ослабление лонг-стопа должно молча отбрасываться")
	}
	if e.ShouldUpdate(100, 100, models.PosSideLong) {
		t.Error("равный стоп — не обновление")
	}

	// шорт: только вниз
	if !e.ShouldUpdate(100.5, 98.2, models.PosSideShort) {
		t.Error("ужесточение шорт-стопа должно проходить")
	}
	if e.ShouldUpdate(98.2, 100.5, models.PosSideShort) {
		t.Error("ослабление шорт-стопа должно молча отбрасываться")
	}
}

func TestShouldUpdateThreshold(t *testing.T) {
	e := testEngine() // порог 0.1%

	// сдвиг 0.05% — шум, пропускаем
	if e.ShouldUpdate(100, 100.05, models.PosSideLong) {
		t.Error("сдвиг ниже порога должен отбрасываться")
	}
	// сдвиг 0.2% — двигаем
	if !e.ShouldUpdate(100, 100.2, models.PosSideLong) {
		t.Error("сдвиг выше порога должен проходить")
	}
}

func TestShouldUpdateNoExisting(t *testing.T) {
	e := testEngine()
	if !e.ShouldUpdate(0, 99.5, models.PosSideLong) {
		t.Error("при отсутствии стопа любой валидный новый должен ставиться")
	}
	if e.ShouldUpdate(0, 0, models.PosSideLong) {
		t.Error("нулевой новый стоп ставить нельзя")
	}
}

func TestShouldUpdateInterval(t *testing.T) {
	e := New(config.StopConfig{
		TrailPct:          0.2,
		FixedPct:          0.5,
		MinUpdatePct:      0.1,
		MinUpdateInterval: time.Hour,
	})
	e.MarkCreating()
	e.MarkActive() // фиксирует lastUpdate

	if e.ShouldUpdate(100, 101, models.PosSideLong) {
		t.Error("внутри интервала замены запрещены")
	}

	e.lastUpdate = time.Now().Add(-2 * time.Hour)
	if !e.ShouldUpdate(100, 101, models.PosSideLong) {
		t.Error("после интервала замена должна проходить")
	}
}

// Монотонность на последовательности цен: лонг-стоп не убывает.
func TestTrailingMonotonicSequence(t *testing.T) {
	e := testEngine()
	entry := 100.0
	prices := []float64{99, 101, 103, 102, 105, 104, 99, 110}

	stop := e.ComputeStop(entry, prices[0], models.PosSideLong)
	for _, p := range prices[1:] {
		next := e.ComputeStop(entry, p, models.PosSideLong)
		if e.ShouldUpdate(stop, next, models.PosSideLong) {
			if next <= stop {
				t.Fatalf("принятое обновление ослабило стоп: %v → %v", stop, next)
			}
			stop = next
		}
	}
	// максимум цены 110 → трейлинг дотянулся до 110×0.998
	if want := 110 * 0.998; !approx(stop, want) {
		t.Errorf("финальный стоп %v, ждали %v", stop, want)
	}
}

// Сценарий из практики: вход $100, рост до $103 — стоп ужесточается
// с $99.50 до $102.79.
func TestScenarioTightenAfterRally(t *testing.T) {
	e := testEngine()
	entry := 100.0

	initial := e.ComputeStop(entry, 100, models.PosSideLong)
	if !approx(initial, 99.5) {
		t.Fatalf("начальный стоп %v, ждали 99.5", initial)
	}

	after := e.ComputeStop(entry, 103, models.PosSideLong)
	if got := math.Round(after*100) / 100; got != 102.79 {
		t.Fatalf("после ралли до 103 стоп %v, ждали 102.79", got)
	}
	if !e.ShouldUpdate(initial, after, models.PosSideLong) {
		t.Error("ужесточение 99.5 → 102.79 обязано пройти")
	}
}

func TestStateMachine(t *testing.T) {
	e := testEngine()
	if e.State() != StateAbsent {
		t.Fatalf("стартовое состояние %s, ждали absent", e.State())
	}
	e.MarkCreating()
	if e.State() != StateCreating {
		t.Errorf("после MarkCreating: %s", e.State())
	}
	e.MarkActive()
	if e.State() != StateActive {
		t.Errorf("после MarkActive: %s", e.State())
	}
	e.MarkReplacing()
	if e.State() != StateReplacing {
		t.Errorf("после MarkReplacing: %s", e.State())
	}
	// cancel прошёл, create упал: откат в Absent, не зависаем в Replacing
	e.MarkAbsent()
	if e.State() != StateAbsent {
		t.Errorf("после провала замены: %s, ждали absent", e.State())
	}
}
