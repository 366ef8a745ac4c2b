package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/storesapi/internal/app"
	"github.com/erazemk/storesapi/internal/config"
	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/logging"
	"github.com/erazemk/storesapi/internal/model"
	"github.com/erazemk/storesapi/internal/notify"
	"github.com/erazemk/storesapi/internal/observability"
	"github.com/erazemk/storesapi/internal/store"
)

const usage = `Usage: storesctl <command> [flags]

Commands:
  migrate        create or upgrade the database schema
  create-admin   create an admin account with a generated password
  worker         run the email worker until interrupted
  purge-tokens   delete expired rows from the SQL revocation table

Common flags:
  -e, -env <path>   env file to load (default: .env if present)
  -d, -db <dsn>     database path or URL (default: $DATABASE_URL)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "migrate":
		err = cmdMigrate(os.Args[2:])
	case "create-admin":
		err = cmdCreateAdmin(os.Args[2:])
	case "worker":
		err = cmdWorker(os.Args[2:])
	case "purge-tokens":
		err = cmdPurgeTokens(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags registers the flags every subcommand accepts.
type commonFlags struct {
	envFile string
	dbURL   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.envFile, "env", "", "env file to load")
	fs.StringVar(&c.envFile, "e", "", "env file to load")
	fs.StringVar(&c.dbURL, "db", "", "database path or URL")
	fs.StringVar(&c.dbURL, "d", "", "database path or URL")
}

func (c *commonFlags) load() (*config.Config, error) {
	var files []string
	if c.envFile != "" {
		files = append(files, c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if c.dbURL != "" {
		cfg.DatabaseURL = c.dbURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openMigrated(cfg *config.Config) (*db.DB, error) {
	database, err := app.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database, nil
}

func cmdMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	database, err := openMigrated(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Schema up to date (%s).\n", database.Dialect)
	return nil
}

func cmdCreateAdmin(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	username := fs.String("username", "admin", "admin username")
	email := fs.String("email", "admin@localhost", "admin email")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	database, err := openMigrated(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := store.HashPassword(password)
	if err != nil {
		return err
	}

	user, err := store.CreateUser(context.Background(), database, *username, *email, hash, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	fmt.Println("Admin account created:")
	fmt.Printf("  ID:       %d\n", user.ID)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	return nil
}

func cmdWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	logPath := fs.String("log", "", "log file path")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("the standalone worker needs REDIS_URL; without it emails are delivered by the server process")
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}

	closeLog, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, "worker"); err != nil {
		slog.Error("failed to initialize sentry", "error", err)
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := app.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	worker, err := app.NewWorker(cfg, notify.NewRedisQueue(rdb, cfg.EmailQueue))
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}

func cmdPurgeTokens(args []string) error {
	fs := flag.NewFlagSet("purge-tokens", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	database, err := openMigrated(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := store.PurgeRevokedTokens(context.Background(), database, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired revocations.\n", n)
	return nil
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
