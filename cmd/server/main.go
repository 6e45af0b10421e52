package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/application/service"
	"github.com/finovahq/expense-claims/internal/config"
	"github.com/finovahq/expense-claims/internal/infrastructure/export"
	"github.com/finovahq/expense-claims/internal/infrastructure/external/mail"
	"github.com/finovahq/expense-claims/internal/infrastructure/external/openai"
	"github.com/finovahq/expense-claims/internal/infrastructure/external/whatsapp"
	"github.com/finovahq/expense-claims/internal/infrastructure/persistence/repository"
	"github.com/finovahq/expense-claims/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/finovahq/expense-claims/internal/interfaces/http"
	"github.com/finovahq/expense-claims/pkg/database"
	"github.com/finovahq/expense-claims/pkg/utils"
)

func main() {
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

	logger.Info("Starting expense claims service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

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

	txManager := sqlite.NewDB(db.DB, logger)

	// Repositories
	claimRepo := repository.NewClaimRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	violationRepo := repository.NewViolationRepository(db.DB, logger)
	userRepo := repository.NewUserRepository(db.DB, logger)
	companyPolicyRepo := repository.NewCompanyPolicyRepository(db.DB, logger)
	approvalPolicyRepo := repository.NewApprovalPolicyRepository(db.DB, logger)
	budgetRepo := repository.NewBudgetRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)
	batchRepo := repository.NewPayrollBatchRepository(db.DB, claimRepo, logger)

	// Notification side channels, enabled only when configured
	var emailSender port.EmailSender
	if cfg.SMTP.Host != "" {
		emailSender = mail.NewSender(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
	}
	var whatsappSender port.WhatsAppSender
	if cfg.Twilio.AccountSID != "" {
		whatsappSender = whatsapp.NewSender(whatsapp.Config{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		}, logger)
	}
	var receiptParser port.ReceiptParser
	if cfg.OpenAI.APIKey != "" {
		receiptParser = openai.NewReceiptParser(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.Temperature,
			logger,
		)
	}

	// Services
	serviceLogger := &zapLoggerAdapter{logger: logger}
	notificationService := service.NewNotificationService(
		notificationRepo, userRepo, emailSender, whatsappSender, serviceLogger)
	complianceService := service.NewComplianceService(companyPolicyRepo, claimRepo, serviceLogger)
	resolver := service.NewApproverResolver(userRepo)
	policyService := service.NewPolicyService(
		approvalPolicyRepo, approvalRepo, userRepo, resolver, serviceLogger)
	claimService := service.NewClaimService(
		claimRepo, approvalRepo, violationRepo, txManager,
		complianceService, policyService, notificationService, serviceLogger)
	budgetService := service.NewBudgetService(
		budgetRepo, claimRepo, userRepo, txManager, notificationService, serviceLogger)
	payrollService := service.NewPayrollService(
		batchRepo, claimRepo, txManager, export.Registry(), notificationService, serviceLogger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
	}, httpapi.Services{
		Claims:        claimService,
		Budgets:       budgetService,
		Payroll:       payrollService,
		Notifications: notificationService,
		ReceiptParser: receiptParser,
	}, serviceLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
