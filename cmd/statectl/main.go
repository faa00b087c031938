package main

import (
	"fmt"
	"os"
	"time"

	"alpha_bot/internal/modules/config"
	"alpha_bot/internal/statestore"
	"alpha_bot/pkg/logger"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// statectl — консольная утилита для файла состояния бота: посмотреть
// текущую позицию, хвост журнала сделок, снять бэкап или очистить
// состояние. Работает только с диском, к бирже не ходит.
func main() {
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	viper.SetDefault("data_dir", "data/trading_state")
	viper.SetDefault("keep_backups", 10)
	viper.SetEnvPrefix("statectl")
	viper.AutomaticEnv()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "statectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: statectl <command>

commands:
  show       текущая позиция и сводка состояния
  history    последние сделки журнала (STATECTL_LIMIT, по умолчанию 10)
  backup     принудительный бэкап файла состояния
  clear      очистить состояние (с бэкапом)

env:
  STATECTL_DATA_DIR   каталог состояния (по умолчанию data/trading_state)
  STATECTL_LIMIT      сколько сделок показывать в history`)
}

func openStore() (*statestore.Store, error) {
	st, err := statestore.New(config.StoreConfig{
		DataDir:     viper.GetString("data_dir"),
		KeepBackups: viper.GetInt("keep_backups"),
		SaveRetries: 1,
		SaveBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open state dir")
	}
	return st, nil
}

func run(cmd string, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	switch cmd {
	case "show":
		return show(st)
	case "history":
		return history(st)
	case "backup":
		return backup(st)
	case "clear":
		return clear(st)
	default:
		usage()
		return errors.Errorf("unknown command %q", cmd)
	}
}

func show(st *statestore.Store) error {
	for k, v := range st.Summary() {
		fmt.Printf("%-16s %v\n", k, v)
	}

	state := st.Load()
	if state.Position == nil {
		fmt.Println("\nпозиции нет")
		return nil
	}
	p := state.Position
	fmt.Printf("\nпозиция: %s %s %.6f @ %.4f (открыта %s)\n",
		p.Symbol, p.Side, p.Amount, p.EntryPrice, p.OpenedAt.Format(time.RFC3339))
	if p.StopOrderID != "" {
		fmt.Printf("стоп:    %s @ %.4f\n", p.StopOrderID, p.LastStopPrice)
	} else {
		fmt.Println("стоп:    ОТСУТСТВУЕТ — позиция без защиты")
	}
	for id, lvl := range p.TakeProfitOrders {
		fmt.Printf("тейк %d:  %s @ %.4f (доля %.0f%%)\n", lvl.Level, id, lvl.PriceTarget, lvl.Ratio*100)
	}
	return nil
}

func history(st *statestore.Store) error {
	limit := viper.GetInt("limit")
	if limit <= 0 {
		limit = 10
	}
	trades := st.RecentTrades(limit)
	if len(trades) == 0 {
		fmt.Println("журнал пуст")
		return nil
	}
	for _, tr := range trades {
		fmt.Printf("%s  %-5s %-5s %10.6f @ %10.4f  pnl=%+8.2f  %s\n",
			tr.Timestamp.Format("2006-01-02 15:04:05"),
			tr.Type, tr.Side, tr.Amount, tr.Price, tr.PnL, tr.Reason)
	}
	return nil
}

func backup(st *statestore.Store) error {
	if err := st.Backup(); err != nil {
		return errors.Wrap(err, "backup")
	}
	fmt.Println("бэкап снят")
	return nil
}

func clear(st *statestore.Store) error {
	if err := st.Clear(); err != nil {
		return errors.Wrap(err, "clear")
	}
	fmt.Println("состояние очищено (бэкап сохранён)")
	return nil
}
