package runner

import "alpha_bot/internal/coordinator"

// Notifier — внешние уведомления движка. Боевая реализация — телеграм,
// без токена используется заглушка в stdout.
type Notifier = coordinator.Notifier
