package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/dietorders/internal/config"
	"github.com/ehr/dietorders/internal/domain/mealorder"
	"github.com/ehr/dietorders/internal/platform/db"
	"github.com/ehr/dietorders/internal/platform/metrics"
	"github.com/ehr/dietorders/internal/platform/notification"
	"github.com/ehr/dietorders/internal/platform/scheduling"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "diet-orders",
		Short:         "Daily patient diet order management",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(schedulerCmd())
	rootCmd.AddCommand(rolloverCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(mealCmd())
	rootCmd.AddCommand(menuCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	loc     *time.Location
	pool    *pgxpool.Pool
	orders  *mealorder.Manager
	notices *notification.NotificationManager
	metrics *metrics.Metrics
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Msg("connected to database")

	repo := mealorder.NewOrderRepoPG(pool, loc)
	orders := mealorder.NewManager(repo, logger, mealorder.Options{
		RetentionDays: cfg.RetentionDays,
		Now:           func() time.Time { return time.Now().In(loc) },
	})

	senders := map[notification.Channel]notification.Sender{
		notification.ChannelLog: notification.NewLogSender(logger),
	}
	if cfg.NotifyOutbox != "" {
		senders[notification.ChannelOutbox] = notification.NewOutboxSender(cfg.NotifyOutbox)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		loc:     loc,
		pool:    pool,
		orders:  orders,
		notices: notification.NewNotificationManager(notification.NewTemplateEngine(), senders),
		metrics: metrics.New(),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func (a *app) today() time.Time {
	return mealorder.Day(time.Now().In(a.loc))
}

func (a *app) scheduler() *mealorder.AutoOrderScheduler {
	s := mealorder.NewAutoOrderScheduler(a.orders, a.logger)
	s.SetNotifier(newSummaryNotifier(a.notices))
	s.SetRecorder(newRolloverMetrics(a.metrics, a.cfg.MetricsTextfile, a.logger))
	return s
}

// withApp runs fn with a wired app and a context bounded by COMMAND_TIMEOUT.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CommandTimeout)
	defer cancel()
	return fn(ctx, a)
}

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the daily rollover at start and every day at ROLLOVER_TIME",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			at, err := scheduling.ParseClockTime(a.cfg.RolloverTime)
			if err != nil {
				return err
			}
			skipStart, _ := cmd.Flags().GetBool("skip-initial")

			sched := a.scheduler()
			rec := newRolloverMetrics(a.metrics, a.cfg.MetricsTextfile, a.logger)
			trigger := scheduling.NewDailyTrigger(at, a.loc, a.logger)
			trigger.RunOnStart = !skipStart

			a.logger.Info().
				Str("rollover_time", at.String()).
				Str("timezone", a.loc.String()).
				Int("retention_days", a.cfg.RetentionDays).
				Msg("diet order scheduler started")

			err = trigger.Start(ctx, func(ctx context.Context, now time.Time) {
				retryNotices(ctx, a.notices, a.logger)
				if _, err := sched.RunDaily(ctx, now); err != nil {
					rec.ObserveFailure()
					a.logger.Error().Err(err).Msg("daily rollover failed")
					notifyRolloverFailure(ctx, a.notices, mealorder.Day(now), err, a.logger)
				}
			})
			a.logger.Info().Msg("diet order scheduler stopped")
			return err
		},
	}
	cmd.Flags().Bool("skip-initial", false, "Do not run a rollover immediately at start")
	return cmd
}

func rolloverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Run the daily rollover once",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			return withApp(func(ctx context.Context, a *app) error {
				day, err := parseDate(dateStr, a.loc, a.today())
				if err != nil {
					return err
				}
				sum, err := a.scheduler().RunDaily(ctx, day)
				if err != nil {
					notifyRolloverFailure(ctx, a.notices, day, err, a.logger)
					return fmt.Errorf("rollover failed: %w", err)
				}
				printSummary(cmd.OutOrStdout(), sum)
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "Rollover date (YYYY-MM-DD), default today")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Retire orders older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				today := a.today()
				n, err := a.orders.RetireExpired(ctx, today)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retired %d order(s) dated before %s.\n",
					n, a.orders.RetirementCutoff(today).Format(dateLayout))
				return nil
			})
		},
	}
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Ping the database and print pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(func(ctx context.Context, a *app) error {
				stats, err := db.Check(ctx, a.pool)
				if asJSON {
					if werr := writeJSON(cmd.OutOrStdout(), stats); werr != nil {
						return werr
					}
				} else {
					printPoolStats(cmd.OutOrStdout(), stats)
				}
				return err
			})
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	migrator := func(cmd *cobra.Command, a *app) (*db.Migrator, error) {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = a.cfg.MigrationsDir
		}
		schema, _ := cmd.Flags().GetString("schema")
		if schema == "" {
			schema = a.cfg.DBSchema
		}
		m, err := db.NewMigrator(a.pool, dir).WithSchema(schema)
		if err != nil {
			return nil, err
		}
		m.SetLogger(a.logger)
		return m, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				m, err := migrator(cmd, a)
				if err != nil {
					return err
				}
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	upCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				m, err := migrator(cmd, a)
				if err != nil {
					return err
				}
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	statusCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}
