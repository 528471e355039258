package jobs

import (
	"fmt"
	"log"

	"FinOpsLedger/internal/logger"
	"FinOpsLedger/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	categorizationConfig := NewDefaultCategorizationConfig()

	// Override categorization config from services.yaml if provided
	if s.config != nil {
		if catSchedule, ok := s.config["categorization_schedule"].(string); ok && catSchedule != "" {
			categorizationConfig.Schedule = catSchedule
		}
		if catBatchSize, ok := s.config["categorization_batch_size"].(int); ok && catBatchSize > 0 {
			categorizationConfig.BatchSize = catBatchSize
		}
	}

	err := RunCategorizationScheduler(categorizationConfig, s.db)
	if err != nil {
		return fmt.Errorf("failed to start categorization scheduler: %v", err)
	}

	logger.GlobalLogger.LogAudit("Auto-categorization scheduler started")
	log.Println("Cron service started — Auto-Categorization Scheduler scheduled")

	return nil
}

func (s *CronService) Stop() error {
	log.Println("Cron service stopped.")
	return nil
}
