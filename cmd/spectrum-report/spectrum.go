package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scint-data/spectrum.report/internal/api"
	"github.com/scint-data/spectrum.report/internal/commfil"
	"github.com/scint-data/spectrum.report/internal/config"
	"github.com/scint-data/spectrum.report/internal/db"
	"github.com/scint-data/spectrum.report/internal/export"
	"github.com/scint-data/spectrum.report/internal/serialmux"
	"github.com/scint-data/spectrum.report/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON config file")
	listen        = flag.String("listen", "", "Listen address (overrides config)")
	port          = flag.String("port", "", "Serial port to use (overrides config)")
	dbFile        = flag.String("db", "", "SQLite database path (overrides config)")
	mockSerial    = flag.Bool("mock-serial", false, "Replay a synthetic instrument instead of opening a port")
	disableSerial = flag.Bool("disable-serial", false, "Run the server without any serial device")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("spectrum-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := loadConfig()

	// `spectrum-report migrate <action>` manages the schema and exits.
	if flag.Arg(0) == "migrate" {
		runMigrate(flag.Args()[1:], cfg)
		return
	}

	var m serialmux.SerialMuxInterface
	switch {
	case *disableSerial:
		m = serialmux.NewDisabledSerialMux()
	case *mockSerial:
		m = serialmux.NewMockSerialMux()
	default:
		portPath := cfg.GetSerialPort()
		if *port != "" {
			portPath = *port
		}
		opts := serialmux.PortOptions{
			BaudRate:    cfg.GetBaudRate(),
			ReadTimeout: cfg.GetReadTimeout(),
		}
		var err error
		m, err = serialmux.NewRealSerialMux(portPath, opts)
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", portPath, err)
		}
	}
	defer m.Close()

	if err := m.Initialize(); err != nil {
		log.Fatalf("failed to initialize device: %v", err)
	}

	dbPath := cfg.GetDBFile()
	if *dbFile != "" {
		dbPath = *dbFile
	}
	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	autosaver, err := export.NewAutosaver(cfg.GetAutosaveDir())
	if err != nil {
		log.Fatalf("Failed to prepare autosave directory: %v", err)
	}
	autosaver.WritePlots = cfg.GetWritePlots()

	sess := commfil.NewSession(database, autosaver)
	defer func() {
		// flush any run still in progress before the process exits
		if err := sess.Close(); err != nil {
			log.Printf("error flushing interpreter session: %v", err)
		}
	}()

	// Create a wait group for the HTTP server, serial monitor, and event handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial port messages and feed them to the interpreter
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serialmux.Pump(ctx, m, sess); err != nil && err != context.Canceled {
			log.Printf("event pump error: %v", err)
		}
		log.Print("pump routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		addr := cfg.GetListenAddr()
		if *listen != "" {
			addr = *listen
		}

		mux := api.NewServer(m, database, sess, cfg.GetRateUnit()).ServeMux()

		// mount the admin debugging routes (accessible only over loopback or Tailscale)
		m.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func loadConfig() *config.Config {
	if *configPath == "" {
		return config.Empty()
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	return cfg
}

// runMigrate dispatches the migrate subcommand actions.
func runMigrate(args []string, cfg *config.Config) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	dbPath := cfg.GetDBFile()
	if *dbFile != "" {
		dbPath = *dbFile
	}
	migrationsDir := cfg.GetMigrationsDir()

	database, err := db.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(migrationsDir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied successfully")
		logMigrateVersion(database, migrationsDir)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migrationsDir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration rolled back successfully")
		logMigrateVersion(database, migrationsDir)

	case "status":
		version, dirty, err := database.MigrateVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)
		if dirty {
			fmt.Println("WARNING: a migration failed mid-execution; fix the schema and run 'migrate force <version>'")
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: spectrum-report migrate force <version_number>")
		}
		var forceVersion int
		if _, err := fmt.Sscanf(args[1], "%d", &forceVersion); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(migrationsDir, forceVersion); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Migration version forced to %d", forceVersion)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", args[0])
		printMigrateHelp()
		os.Exit(1)
	}
}

func logMigrateVersion(database *db.DB, migrationsDir string) {
	v, dirty, err := database.MigrateVersion(migrationsDir)
	if err != nil {
		log.Printf("Failed to read migration version: %v", err)
		return
	}
	log.Printf("Current version: %d (dirty: %v)", v, dirty)
}

func printMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: spectrum-report migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
}
