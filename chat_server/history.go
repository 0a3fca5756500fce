package main

import (
	"context"
	"fmt"

	"chathub/config"
	"chathub/db"
	"chathub/history"
)

// openHistory connects the backend selected by HISTORY_BACKEND.
func openHistory(ctx context.Context, cfg config.Config) (history.Store, error) {
	switch cfg.HistoryBackend {
	case config.BackendSQLite:
		chatDB, err := db.InitSQLite(cfg.ChatDBFile)
		if err != nil {
			return nil, err
		}
		return history.NewSQLiteStore(chatDB), nil
	case config.BackendRedis:
		return history.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisHistoryKey, cfg.HistoryRetain)
	case config.BackendBadger:
		return history.OpenBadgerStore(cfg.BadgerDir)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}
