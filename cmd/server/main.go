package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/smartdocs/smart-docs/internal/application/dispatcher"
	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/application/service"
	"github.com/smartdocs/smart-docs/internal/application/workflow"
	"github.com/smartdocs/smart-docs/internal/config"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	"github.com/smartdocs/smart-docs/internal/infrastructure/notification"
	"github.com/smartdocs/smart-docs/internal/infrastructure/persistence/repository"
	"github.com/smartdocs/smart-docs/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/smartdocs/smart-docs/internal/interfaces/http"
	"github.com/smartdocs/smart-docs/pkg/database"
	"github.com/smartdocs/smart-docs/pkg/utils"
)

// sugaredLogger adapts *zap.SugaredLogger's Infow/Errorw methods to the
// Info/Error signatures expected by the application Logger interfaces.
type sugaredLogger struct {
	*zap.SugaredLogger
}

func (l sugaredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

func (l sugaredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

func main() {
	// Load .env if present, before the config layer reads the environment
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting document workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	txManager := sqlite.NewDB(db.DB, logger)
	definitionRepo := repository.NewDefinitionRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	stepRepo := repository.NewStepInstanceRepository(db.DB, logger)
	documentRepo := repository.NewDocumentRepository(db.DB, logger)
	userRepo := repository.NewUserRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	sugar := sugaredLogger{logger.Sugar()}

	// Event dispatcher with the notification/audit emitter subscribed
	eventDispatcher := dispatcher.NewDispatcher(dispatcher.WithLogger(sugar))
	defer eventDispatcher.Close()

	emitter := notification.NewEmitter(notificationRepo, auditRepo, documentRepo, logger)
	emitter.Register(eventDispatcher)

	// Workflow engine and application services
	engine := workflow.NewEngine(
		definitionRepo,
		instanceRepo,
		stepRepo,
		documentRepo,
		userRepo,
		txManager,
		sugar,
		workflow.WithDispatcher(eventDispatcher),
	)

	documentService := service.NewDocumentService(documentRepo, engine, sugar)
	definitionService := service.NewDefinitionService(definitionRepo, txManager, sugar)
	activityService := service.NewActivityService(auditRepo, notificationRepo, sugar)

	// HTTP server
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, engine, documentService, definitionService, activityService, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Workflow.OverdueScanInterval > 0 {
		go runOverdueScan(ctx, engine, notificationRepo, cfg.Workflow.OverdueScanInterval, logger)
	}

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// runOverdueScan periodically queues reminder notifications for step instances
// past their due time.
func runOverdueScan(
	ctx context.Context,
	engine workflow.Engine,
	notificationRepo port.NotificationRepository,
	interval time.Duration,
	logger *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			steps, err := engine.ListOverdueSteps(ctx)
			if err != nil {
				logger.Error("Overdue scan failed", zap.Error(err))
				continue
			}
			for _, step := range steps {
				if step.AssignedTo == nil {
					continue
				}
				n := &entity.Notification{
					UserID:    *step.AssignedTo,
					EventType: "step.overdue",
					Subject:   "Workflow step overdue",
					Body:      fmt.Sprintf("Step instance %d is past its due time", step.ID),
					Status:    entity.NotificationStatusPending,
					CreatedAt: time.Now(),
				}
				if err := notificationRepo.Create(ctx, n); err != nil {
					logger.Error("Failed to queue overdue reminder",
						zap.Int64("step_instance_id", step.ID),
						zap.Error(err))
				}
			}
			if len(steps) > 0 {
				logger.Info("Overdue scan completed", zap.Int("overdue_steps", len(steps)))
			}
		}
	}
}
