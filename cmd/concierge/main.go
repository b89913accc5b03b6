package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/safety-concierge/internal/api"
	"github.com/mr1hm/safety-concierge/internal/clock"
	"github.com/mr1hm/safety-concierge/internal/config"
	"github.com/mr1hm/safety-concierge/internal/emergency"
	"github.com/mr1hm/safety-concierge/internal/history"
	"github.com/mr1hm/safety-concierge/internal/logging"
	"github.com/mr1hm/safety-concierge/internal/metrics"
	"github.com/mr1hm/safety-concierge/internal/models"
	"github.com/mr1hm/safety-concierge/internal/reminder"
	"github.com/mr1hm/safety-concierge/internal/repository"
	"github.com/mr1hm/safety-concierge/internal/stream"
	"github.com/mr1hm/safety-concierge/internal/trigger"
	"github.com/mr1hm/safety-concierge/internal/voice"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.History.DBPath)
	if err != nil {
		logging.Fatalf("Failed to initialize history store: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real()

	recorder := history.NewRecorder(db, cfg.History.BufferSize)
	recorder.Start(ctx)

	broadcaster := stream.NewBroadcaster()
	m := metrics.New()

	machine := emergency.New(emergency.Options{
		Clock: clk,
		Location: emergency.StaticLocation{
			Latitude:  cfg.User.Latitude,
			Longitude: cfg.User.Longitude,
			Address:   cfg.User.Address,
		},
		UserID:              cfg.User.ID,
		VerificationTimeout: cfg.Emergency.VerificationTimeout,
		EscalationTimeout:   cfg.Emergency.EscalationTimeout,
		ResolveRevertDelay:  cfg.Emergency.ResolveRevertDelay,
		InactivityTimeout:   cfg.Emergency.InactivityTimeout,
		OnStatusChange: func(s models.EmergencyStatus) {
			slog.Info("emergency status changed", "status", s)
		},
		OnEscalate: func() {
			slog.Warn("escalating to emergency contacts")
		},
	})
	machine.Observe(recorder.Record)
	machine.Observe(m.Observe)
	machine.Observe(broadcaster.Broadcast)

	detector := voice.NewDetector(clk, slog.Default(), cfg.Voice.Keywords)
	detector.Attach()
	trigger.BindVoice(detector, machine, cfg.Voice.SpeechMinLength)

	reminders := reminder.NewScheduler(clk, cfg.Reminders.PollInterval, reminder.DefaultReminders(clk.Now()))
	reminders.OnActivity = trigger.ActivityHandler(machine)
	reminders.OnDue = func(r models.Reminder) {
		slog.Info("reminder due", "id", r.ID, "type", r.Type, "title", r.Title)
	}
	reminders.Start(ctx)

	button := trigger.NewHoldButton(clk, trigger.DefaultHoldDuration, trigger.Manual(machine))

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(api.Deps{
		Machine:     machine,
		Recorder:    recorder,
		Store:       db,
		Detector:    detector,
		Reminders:   reminders,
		Button:      button,
		Broadcaster: broadcaster,
		Metrics:     m.Handler(),
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	machine.Close()
	recorder.Stop() // flush history before the context goes away
	cancel()
	reminders.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
