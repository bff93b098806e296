package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/crmhub/ruleflow/internal/collab"
	internal_http "github.com/crmhub/ruleflow/internal/http"
	"github.com/crmhub/ruleflow/internal/log"
	internal_storage "github.com/crmhub/ruleflow/internal/storage"
	"github.com/crmhub/ruleflow/pkg/engine"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (falls back to DB_* env vars)")

	listCmd := &cobra.Command{
		Use:   "rules",
		Short: "List all workflow rules",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := engine.NewRuleService(store, log.GetLogger())
			listRules(svc)
		},
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle [id] [true|false]",
		Short: "Activate or deactivate a rule",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: second argument must be true or false\n")
				os.Exit(1)
			}
			store := initStore(cmd)
			defer store.Close()
			svc := engine.NewRuleService(store, log.GetLogger())
			if err := svc.ToggleRule(args[0], active); err != nil {
				log.GetLogger().Errorf("Failed to toggle rule: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to toggle rule: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Set rule %s active=%v\n", args[0], active)
		},
	}

	logsCmd := &cobra.Command{
		Use:   "logs [rule-id]",
		Short: "Show execution logs, optionally for one rule",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := engine.NewRuleService(store, log.GetLogger())
			filter := storage.LogFilter{}
			if len(args) == 1 {
				filter.RuleID = args[0]
			}
			listLogs(svc, filter)
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one inactivity sweep (for cron collaborators)",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			dispatcher, stop := startDispatcher(store)
			defer stop()
			scanner := engine.NewScanner(store, dispatcher, log.GetLogger())
			fired, err := scanner.Scan(context.Background(), time.Now())
			if err != nil {
				log.GetLogger().Errorf("Inactivity scan failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: inactivity scan failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Inactivity scan fired %d event(s)\n", fired)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RuleFlow server and inactivity scanner",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			dispatcher, stop := startDispatcher(store)
			defer stop()
			scanner := engine.NewScanner(store, dispatcher, log.GetLogger())
			go runScannerLoop(scanner)

			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			svc := engine.NewRuleService(store, log.GetLogger())
			if err := internal_http.StartServer(port, svc, dispatcher); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}

	rootCmd.AddCommand(listCmd, toggleCmd, logsCmd, scanCmd, serveCmd)
}

// startDispatcher wires the executor with the binary's collaborators and
// starts the per-trigger workers. The returned stop func drains the queues.
func startDispatcher(store storage.Store) (*engine.Dispatcher, func()) {
	logger := log.GetLogger()
	executor := engine.NewExecutor(engine.Collaborators{
		Tasks:         collab.NewLogTaskCreator(logger),
		Notifications: collab.NewLogNotifier(logger),
		Fields:        collab.NewStoreFieldUpdater(store, logger),
	})
	dispatcher := engine.NewDispatcher(store, executor, collab.NewStoreEntityLookup(store), logger)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.GetLogger().Infof("Shutting down dispatcher")
		dispatcher.Stop()
		cancel()
		os.Exit(0)
	}()

	return dispatcher, func() {
		dispatcher.Stop()
		cancel()
	}
}

func runScannerLoop(scanner *engine.Scanner) {
	interval := time.Hour
	if raw := os.Getenv("SCAN_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.GetLogger().Errorf("Invalid SCAN_INTERVAL %q, using 1h: %v", raw, err)
		} else {
			interval = parsed
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for now := range ticker.C {
		fired, err := scanner.Scan(context.Background(), now)
		if err != nil {
			log.GetLogger().Errorf("Inactivity scan failed: %v", err)
			continue
		}
		log.GetLogger().Infof("Inactivity scan fired %d event(s)", fired)
	}
}

func listRules(svc *engine.RuleService) {
	rules, err := svc.ListRules()
	if err != nil {
		log.GetLogger().Errorf("Failed to list rules: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list rules: %v\n", err)
		os.Exit(1)
	}
	if len(rules) == 0 {
		fmt.Fprintf(os.Stdout, "No rules found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Rules:\n")
	for _, r := range rules {
		fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Trigger: %s, Action: %s, Active: %v, Created: %s\n",
			r.ID, r.Name, r.TriggerType, r.ActionType, r.IsActive, r.CreatedAt.Format(time.RFC3339))
	}
}

func listLogs(svc *engine.RuleService, filter storage.LogFilter) {
	logs, err := svc.ListExecutionLogs(filter)
	if err != nil {
		log.GetLogger().Errorf("Failed to list execution logs: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list execution logs: %v\n", err)
		os.Exit(1)
	}
	if len(logs) == 0 {
		fmt.Fprintf(os.Stdout, "No execution logs found.\n")
		return
	}
	for _, l := range logs {
		line := fmt.Sprintf("- [%s] rule %s: %s -> %s", l.Status, l.RuleID, l.TriggerEvent, l.ActionTaken)
		if l.ErrorDetail != "" {
			line += " (" + l.ErrorDetail + ")"
		}
		fmt.Fprintln(os.Stdout, line)
	}
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	if err := godotenv.Load(); err != nil {
		log.GetLogger().Debugf("No .env file found: %v", err)
	}
	connStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	if connStr == "" {
		connStr = connStrFromEnv()
	}
	store, err := internal_storage.InitStore(connStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}

func connStrFromEnv() string {
	dbUsername := os.Getenv("DB_USERNAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		fmt.Println("Error: --db flag or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		os.Exit(1)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, dbHost, dbPort, dbName)
}
