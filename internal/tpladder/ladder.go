package tpladder

import (
	"fmt"
	"math"

	"alpha_bot/internal/helper"
	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"
)

// ActionKind — что делать с уровнем лесенки по итогам сверки.
type ActionKind string

const (
	ActionSkip   ActionKind = "skip"   // живой ордер на месте, объёма хватает
	ActionCreate ActionKind = "create" // ордера нет, создать полный объём
	ActionTopUp  ActionKind = "topup"  // ордер есть, но объём недобран
)

// Action — одно действие сверки для координатора.
type Action struct {
	Kind         ActionKind
	Level        int
	Ratio        float64
	TriggerPrice float64
	Amount       float64 // сколько создавать (для skip — 0)
	ExistingID   string  // algoId найденного живого ордера
}

// Ladder — лесенка частичных тейк-профитов. Считает целевые уровни и
// сверяет их с ордерами, реально отдыхающими на бирже. Сама ордера не
// создаёт — отдаёт координатору список действий.
type Ladder struct {
	levels    []config.TPLevel
	tolerance float64 // относительная полоса совпадения цены
}

func New(levels []config.TPLevel, tolerance float64) (*Ladder, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("tpladder: пустая конфигурация уровней")
	}
	sum := 0.0
	for _, l := range levels {
		if l.Ratio <= 0 || l.Ratio > 1 {
			return nil, fmt.Errorf("tpladder: доля уровня вне (0,1]: %v", l.Ratio)
		}
		if l.GainPct <= 0 {
			return nil, fmt.Errorf("tpladder: неположительный процент прибыли: %v", l.GainPct)
		}
		sum += l.Ratio
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("tpladder: сумма долей %v != 1.0", sum)
	}
	if tolerance <= 0 {
		tolerance = 0.002
	}
	return &Ladder{levels: levels, tolerance: tolerance}, nil
}

// TargetPrice — целевая цена уровня от цены входа.
func (l *Ladder) TargetPrice(entryPrice float64, side models.PosSide, level config.TPLevel) float64 {
	gain := level.GainPct / 100
	if side == models.PosSideShort {
		return entryPrice * (1 - gain)
	}
	return entryPrice * (1 + gain)
}

// Reconcile — сверка желаемых уровней с живыми algo-ордерами.
//
// Каждый уровень независим: для него ищется живой ордер противоположной
// стороны с ценой внутри полосы. Нашёлся с достаточным объёмом — skip;
// с недобором — topup на разницу; не нашёлся — create на полный
// position.amount × ratio. Один живой ордер закрывает максимум один
// уровень (одним проходом с пометкой использованных). Уже исполненные
// биржей уровни пропускаются — их пересоздание закрыло бы объём по
// текущей цене.
func (l *Ladder) Reconcile(pos *models.Position, live []models.AlgoOrder, inst models.Instrument) []Action {
	if !pos.Open() {
		return nil
	}
	closeSide := pos.Side.Opposite()
	used := make(map[string]bool, len(live))
	actions := make([]Action, 0, len(l.levels))

	for i, lvl := range l.levels {
		if pos.FilledTPLevels[i+1] {
			continue
		}
		target := l.TargetPrice(pos.EntryPrice, pos.Side, lvl)
		want := pos.Amount * lvl.Ratio
		if inst.LotSz > 0 {
			want = helper.RoundDownToLot(want, inst.LotSz)
		}
		if want <= 0 {
			continue
		}

		match := l.findMatch(live, used, closeSide, target)
		switch {
		case match == nil:
			actions = append(actions, Action{
				Kind: ActionCreate, Level: i + 1, Ratio: lvl.Ratio,
				TriggerPrice: target, Amount: want,
			})

		case match.Amount >= want*(1-l.tolerance):
			used[match.AlgoID] = true
			actions = append(actions, Action{
				Kind: ActionSkip, Level: i + 1, Ratio: lvl.Ratio,
				TriggerPrice: target, ExistingID: match.AlgoID,
			})

		default:
			used[match.AlgoID] = true
			shortfall := want - match.Amount
			if inst.LotSz > 0 {
				shortfall = helper.RoundDownToLot(shortfall, inst.LotSz)
			}
			if shortfall <= 0 {
				actions = append(actions, Action{
					Kind: ActionSkip, Level: i + 1, Ratio: lvl.Ratio,
					TriggerPrice: target, ExistingID: match.AlgoID,
				})
				continue
			}
			logger.Info("[tpladder] уровень %d недобран: живой %.6f, нужно %.6f, добор %.6f",
				i+1, match.Amount, want, shortfall)
			actions = append(actions, Action{
				Kind: ActionTopUp, Level: i + 1, Ratio: lvl.Ratio,
				TriggerPrice: target, Amount: shortfall, ExistingID: match.AlgoID,
			})
		}
	}
	return actions
}

func (l *Ladder) findMatch(live []models.AlgoOrder, used map[string]bool, side models.OrderSide, target float64) *models.AlgoOrder {
	for i := range live {
		o := &live[i]
		if used[o.AlgoID] || o.Side != side {
			continue
		}
		if helper.WithinBand(o.TriggerPrice, target, l.tolerance) {
			return o
		}
	}
	return nil
}

// DetectFills — исполненные уровни: ожидаемый algoId исчез из живых.
// Push-API филлов нет, поэтому исполнение ловится по исчезновению.
// Возвращает algoId исполненных ордеров.
func (l *Ladder) DetectFills(pos *models.Position, live []models.AlgoOrder) []string {
	if pos == nil || len(pos.TakeProfitOrders) == 0 {
		return nil
	}
	alive := make(map[string]bool, len(live))
	for _, o := range live {
		alive[o.AlgoID] = true
	}

	var filled []string
	for id, lvl := range pos.TakeProfitOrders {
		if !alive[id] {
			logger.Info("[tpladder] ордер уровня %d (%s) исчез с биржи — уровень исполнен", lvl.Level, id)
			filled = append(filled, id)
		}
	}
	return filled
}

// Duplicates — лишние TP-ордера на бирже: несколько живых на одной
// целевой цене. Учтённые в позиции ордера легально делят уровень
// (частичный + добор недостачи) и не трогаются; из неучтённых чужаков
// при наличии учтённых снимаются все, иначе остаётся самый свежий.
func (l *Ladder) Duplicates(pos *models.Position, live []models.AlgoOrder) []string {
	if !pos.Open() {
		return nil
	}
	closeSide := pos.Side.Opposite()

	var toCancel []string
	for _, lvl := range l.levels {
		target := l.TargetPrice(pos.EntryPrice, pos.Side, lvl)

		var tracked, strays []models.AlgoOrder
		for _, o := range live {
			if o.Side != closeSide || !helper.WithinBand(o.TriggerPrice, target, l.tolerance) {
				continue
			}
			if _, ok := pos.TakeProfitOrders[o.AlgoID]; ok {
				tracked = append(tracked, o)
			} else {
				strays = append(strays, o)
			}
		}
		if len(tracked)+len(strays) < 2 {
			continue
		}

		switch {
		case len(tracked) > 0:
			for _, m := range strays {
				logger.Warn("[tpladder] неучтённый дубль TP на %.4f: снимаем %s", target, m.AlgoID)
				toCancel = append(toCancel, m.AlgoID)
			}
		default:
			newest := 0
			for i := 1; i < len(strays); i++ {
				if strays[i].CreatedAt.After(strays[newest].CreatedAt) {
					newest = i
				}
			}
			for i, m := range strays {
				if i != newest {
					logger.Warn("[tpladder] дубль TP на %.4f: снимаем %s, оставляем %s",
						target, m.AlgoID, strays[newest].AlgoID)
					toCancel = append(toCancel, m.AlgoID)
				}
			}
		}
	}
	return toCancel
}
