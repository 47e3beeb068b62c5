package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"academy/internal/config"
	"academy/internal/notify"
	"academy/internal/store"
)

// Worker consumes notification messages published by the check-in path.
// Delivery to parents (Kakao Alimtalk, SMS) is a stub: events are logged with
// everything a sender needs.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if cfg.Env != "production" && cfg.Env != "prod" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)

	var q notify.Queue
	if cfg.QueueBackend == "memory" {
		q = notify.NewInMemory(64)
	} else {
		q = notify.NewRedisQueue(redisClient.Client, "academy:notifications")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != notify.TypeAttendanceRecorded {
			logger.Warn("unknown message type", zap.String("type", msg.Type))
			continue
		}

		var evt notify.AttendanceEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			logger.Warn("decode attendance event", zap.Error(err))
			continue
		}

		logger.Info("attendance notification",
			zap.Int64("student_id", evt.StudentID),
			zap.String("student_name", evt.StudentName),
			zap.Int64("lesson_id", evt.LessonID),
			zap.String("lesson", evt.LessonTitle),
			zap.String("status", evt.Status),
			zap.Int("late_minutes", evt.LateMinutes),
			zap.Time("checked_at", evt.CheckedAt),
		)
	}

	logger.Info("worker stopped")
}
