package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/hr-copilot/api"
	"github.com/fabfab/hr-copilot/chat"
	"github.com/fabfab/hr-copilot/config"
	"github.com/fabfab/hr-copilot/database"
	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/ingestion"
	"github.com/fabfab/hr-copilot/knowledge"
	"github.com/fabfab/hr-copilot/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = serveCmd(os.Args[2:])
	case "ask":
		err = askCmd(os.Args[2:])
	case "snapshot":
		err = snapshotCmd(os.Args[2:])
	case "orgchart":
		err = orgChartCmd(os.Args[2:])
	case "clear":
		err = clearCmd(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// setup parses the shared -config flag and returns the configuration with
// its logger. Callers validate what they need.
func setup(flags *flag.FlagSet, args []string) (config.Config, *logrus.Logger, error) {
	path := flags.String("config", "", "optional YAML config file; environment variables take precedence")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, nil, err
	}

	var (
		cfg config.Config
		err error
	)
	if *path != "" {
		cfg, err = config.LoadFile(*path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func serveCmd(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", "", "listen address (defaults to HTTP_ADDR)")
	watch := flags.Bool("watch", true, "ingest new files dropped into the policies directory")
	cfg, logger, err := setup(flags, args)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, buildOptions{withLLM: true, ingest: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if *watch && cfg.PoliciesDir != "" {
		watcher, err := ingestion.NewWatcher(a.ingest, 0, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx, cfg.PoliciesDir); err != nil {
				logger.WithError(err).Warn("policy watcher stopped")
			}
		}()
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(api.Deps{
			Chat:      a.chat,
			Employees: a.records,
			Documents: a.ingest,
		}, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func askCmd(args []string) error {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask the assistant")
	employeeID := flags.String("employee", "", "employee id for personalised answers, e.g. E001")
	cfg, logger, err := setup(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, buildOptions{withLLM: true, ingest: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if strings.TrimSpace(*question) != "" {
		return ask(ctx, a.chat, chat.Request{Query: *question, EmployeeID: *employeeID})
	}

	// Interactive session keeps prior turns for follow-up questions.
	fmt.Println(a.chat.Greeting(*employeeID))
	var turns []chat.Turn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}
		resp, err := a.chat.Answer(ctx, chat.Request{Query: query, EmployeeID: *employeeID, PriorTurns: turns})
		printResponse(resp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		turns = append(turns, chat.Turn{Query: query, Answer: resp.Answer})
	}
}

func ask(ctx context.Context, svc *chat.Service, req chat.Request) error {
	resp, err := svc.Answer(ctx, req)
	printResponse(resp)
	return err
}

func printResponse(resp chat.Response) {
	for _, warning := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if resp.Answer != "" {
		fmt.Println(resp.Answer)
	}
}

func snapshotCmd(args []string) error {
	flags := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dir := flags.String("dir", "", "policies directory (defaults to POLICIES_DIR)")
	cfg, logger, err := setup(flags, args)
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.PoliciesDir = *dir
	}
	if cfg.PostgresDSN == "" && cfg.SnapshotPath == "" {
		return errors.New("set POSTGRES_DSN or SNAPSHOT_PATH to choose where the snapshot goes")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, buildOptions{ingest: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.index.Len() == 0 {
		return fmt.Errorf("no policy chunks found under %s", cfg.PoliciesDir)
	}
	snap := a.index.Snapshot()
	if err := a.snapshots.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"snapshot": snap.ID,
		"entries":  len(snap.Entries),
		"sources":  strings.Join(a.index.Sources(), ", "),
	}).Info("index snapshot saved")
	return nil
}

func orgChartCmd(args []string) error {
	flags := flag.NewFlagSet("orgchart", flag.ExitOnError)
	reportsOf := flags.String("reports", "", "after syncing, list direct reports of this employee id")
	cfg, logger, err := setup(flags, args)
	if err != nil {
		return err
	}

	records, err := employees.Load(cfg.EmployeeDataPath)
	if err != nil {
		return fmt.Errorf("load employee records: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	stats, err := knowledge.SyncOrgChart(ctx, driver, records.Records())
	if err != nil {
		return fmt.Errorf("sync org chart: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"employees":   stats.Employees,
		"departments": stats.Departments,
		"reports_to":  stats.ReportsTo,
	}).Info("org chart synced")

	if *reportsOf != "" {
		ids, err := knowledge.DirectReports(ctx, driver, *reportsOf)
		if err != nil {
			return err
		}
		for _, id := range ids {
			record, err := records.Get(id)
			if err != nil {
				fmt.Println(id)
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", record.ID, record.Name, record.Role)
		}
	}
	return nil
}

func clearCmd(args []string) error {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	cfg, logger, err := setup(flags, args)
	if err != nil {
		return err
	}

	if !*confirmed {
		fmt.Print("This will delete the saved index snapshot and the org chart graph. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read confirmation: %w", err)
			}
			logger.Info("clear aborted")
			return nil
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Info("clear aborted")
			return nil
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var errs []error
	if cfg.SnapshotPath != "" {
		if err := os.Remove(cfg.SnapshotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove snapshot file: %w", err))
		} else {
			logger.WithField("path", cfg.SnapshotPath).Info("snapshot file removed")
		}
	}

	if cfg.PostgresDSN != "" {
		if err := clearPostgres(ctx, cfg.PostgresDSN); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("postgres snapshot tables dropped")
		}
	}

	if cfg.Neo4jURI != "" {
		if err := clearNeo4j(ctx, cfg); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("neo4j org chart cleared")
		}
	}

	return errors.Join(errs...)
}

func clearPostgres(ctx context.Context, dsn string) error {
	pool, err := database.NewPostgresPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	return database.DropSnapshotSchema(ctx, pool)
}

func clearNeo4j(ctx context.Context, cfg config.Config) error {
	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)
	return knowledge.Purge(ctx, driver)
}

func printUsage() {
	fmt.Println("Usage: hr-copilot <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve     Run the HTTP API (loads employees, ingests policies, watches for new files)")
	fmt.Println("  ask       Ask a question once with --question, or start an interactive session")
	fmt.Println("  snapshot  Build the policy index and save it to PostgreSQL or SNAPSHOT_PATH")
	fmt.Println("  orgchart  Mirror the employee table into Neo4j")
	fmt.Println("  clear     Remove saved snapshots and the org chart graph")
	fmt.Println("All commands accept --config <file.yaml>.")
}
