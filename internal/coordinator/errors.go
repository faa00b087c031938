package coordinator

import "errors"

var (
	// ErrDuplicateSuppressed — операция уже выполнена или выполняется
	// параллельным вызовом; тихий no-op для вызывающего.
	ErrDuplicateSuppressed = errors.New("coordinator: duplicate suppressed")

	// ErrInsufficientBalance — свободной маржи не хватает на размер.
	ErrInsufficientBalance = errors.New("coordinator: insufficient balance")

	// ErrOrderRejected — биржа отвергла ордер.
	ErrOrderRejected = errors.New("coordinator: order rejected")

	// ErrFillTimeout — ордер не дошёл до терминального статуса за
	// отведённое время; исход неизвестен, гадать нельзя.
	ErrFillTimeout = errors.New("coordinator: fill wait timeout")

	// ErrRiskDenied — риск-гейт не пустил сделку.
	ErrRiskDenied = errors.New("coordinator: risk gate denied")

	// ErrStopOrderGap — позиция открыта, а стоп-ордер поставить не
	// удалось: незащищённая экспозиция, чинится на следующем цикле.
	ErrStopOrderGap = errors.New("coordinator: position without stop order")
)
