package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-admin-service/internal/factory"
	"course-admin-service/internal/handler"
	"course-admin-service/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	// Create the bootstrap admin before accepting traffic.
	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := f.EnsureAdminUser(bootstrapCtx); err != nil {
		cancel()
		util.Fatal("Failed to ensure admin user", util.ErrorField(err))
	}
	cancel()

	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server)
}

// setupRouter wires the handlers onto the Chi router.
func setupRouter(f *factory.Factory) http.Handler {
	authService := f.AuthService()

	handlers := &handler.Handlers{
		Auth:   handler.NewAuthHandler(authService, util.Get()),
		User:   handler.NewUserHandler(authService, util.Get()),
		Course: handler.NewCourseHandler(f.CourseService(), util.Get()),
		Chat:   handler.NewChatHandler(f.ChatService(), util.Get()),
		Report: handler.NewReportHandler(f.ReportService(), util.Get()),
	}
	return handler.NewRouter(handlers, authService, util.Get())
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}
	f.Close()
}
