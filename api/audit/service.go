package audit

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"FinOpsLedger/api"
	"FinOpsLedger/internal/config"
	"FinOpsLedger/internal/serviceiface"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditService struct {
	config map[string]interface{}
	db     *sql.DB
	pool   *pgxpool.Pool
	logger *Logger
}

func NewAuditService(cfg map[string]interface{}, db *sql.DB, pool *pgxpool.Pool, auditLogger *Logger) serviceiface.Service {
	return &AuditService{config: cfg, db: db, pool: pool, logger: auditLogger}
}

func (s *AuditService) Name() string {
	return "audit"
}

func (s *AuditService) Start() error {
	port := config.AuditPort
	if p, ok := s.config["port"].(int); ok && p > 0 {
		port = p
	}
	go StartAuditService(s.db, s.pool, s.logger, port)
	return nil
}

func (s *AuditService) Stop() error {
	return nil
}

// StartAuditService serves period lifecycle actions and the compliance trail
// on its own port behind the gateway.
func StartAuditService(db *sql.DB, pool *pgxpool.Pool, auditLogger *Logger, port int) {
	r := mux.NewRouter()

	r.HandleFunc("/audit/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Audit Service is active"))
	}).Methods("GET")

	protected := r.NewRoute().Subrouter()
	protected.Use(api.CompanyContextMiddleware(db))
	protected.Handle("/audit/periods/action", PeriodActionHandler(pool, auditLogger)).Methods("POST")
	protected.Handle("/audit/periods", ListPeriodsHandler(pool)).Methods("GET")
	protected.Handle("/audit/log", ListAuditLogHandler(pool)).Methods("GET")

	addr := fmt.Sprintf(":%d", port)
	log.Println("Audit Service started on", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Audit Service failed: %v", err)
	}
}
