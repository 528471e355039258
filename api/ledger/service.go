package ledger

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

type LedgerService struct {
	config map[string]interface{}
	db     *sql.DB
	pool   *pgxpool.Pool
	audit  AuditRecorder
}

func NewLedgerService(cfg map[string]interface{}, db *sql.DB, pool *pgxpool.Pool, audit AuditRecorder) serviceiface.Service {
	return &LedgerService{config: cfg, db: db, pool: pool, audit: audit}
}

func (s *LedgerService) Name() string {
	return "ledger"
}

func (s *LedgerService) Start() error {
	go StartLedgerService(s.db, s.pool, s.audit, servicePort(s.config, config.LedgerPort))
	return nil
}

func (s *LedgerService) Stop() error {
	return nil
}

func servicePort(cfg map[string]interface{}, fallback int) int {
	if cfg != nil {
		if p, ok := cfg["port"].(int); ok && p > 0 {
			return p
		}
	}
	return fallback
}

// StartLedgerService serves statement ingestion, transaction listing, the
// mutation gate and rule management on its own port behind the gateway.
func StartLedgerService(db *sql.DB, pool *pgxpool.Pool, audit AuditRecorder, port int) {
	r := mux.NewRouter()

	r.HandleFunc("/ledger/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Ledger Service is active"))
	}).Methods("GET")

	protected := r.NewRoute().Subrouter()
	protected.Use(api.CompanyContextMiddleware(db))
	protected.Handle("/ledger/statements/import", ImportStatementHandler(pool, audit)).Methods("POST")
	protected.Handle("/ledger/statements/upload", ImportFileHandler(pool, audit)).Methods("POST")
	protected.Handle("/ledger/transactions", ListTransactionsHandler(pool)).Methods("GET")
	protected.Handle("/ledger/transactions/mutable", MutableHandler(pool)).Methods("POST")
	protected.Handle("/ledger/rules/create", CreateRuleHandler(pool, audit)).Methods("POST")
	protected.Handle("/ledger/rules/delete", DeleteRuleHandler(pool, audit)).Methods("POST")
	protected.Handle("/ledger/rules", ListRulesHandler(pool)).Methods("GET")

	addr := fmt.Sprintf(":%d", port)
	log.Println("Ledger Service started on", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Ledger Service failed: %v", err)
	}
}
