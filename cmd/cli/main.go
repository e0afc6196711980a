package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rgs-cdss/prescriber/internal/config"
	"github.com/rgs-cdss/prescriber/internal/output"
	"github.com/rgs-cdss/prescriber/pkg/core/services"
	"github.com/rgs-cdss/prescriber/pkg/db"
	"github.com/rgs-cdss/prescriber/pkg/export"
	"github.com/rgs-cdss/prescriber/pkg/utils/logging"
)

// App holds the application dependencies
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zap.Logger
	ctx      context.Context
}

var (
	env string
	app *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prescriber",
		Short: "Prescriber CLI - Score and schedule weekly therapy protocols",
		Long:  `A CLI tool for ranking therapeutic protocols per patient and assigning them to weekdays under the weekly balance contract.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.logger != nil {
					app.logger.Sync()
				}
				if app.database != nil {
					app.database.Close()
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(scheduleAllCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(listPatientsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config and database
func initApp() error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	app.logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger.Info("Starting application", zap.String("environment", env))

	app.logger.Info("Loading configuration")
	app.cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded successfully")

	app.logger.Info("Connecting to clinical database")
	app.database, err = db.NewDB(app.ctx, app.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := app.database.RunMigrations(app.ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	app.logger.Info("Database initialized successfully")

	return nil
}

// Command definitions

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <patient_id>",
		Short: "Rank therapeutic protocols for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("patient_id must be a number: %w", err)
			}

			recs, err := services.ScorePatient(app.ctx, app.database, app.cfg, app.logger, patientID)
			if err != nil {
				return err
			}

			return output.PrintRecommendations(os.Stdout, patientID, recs)
		},
	}
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <patient_id>",
		Short: "Assign weekdays to a patient's recommended protocols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("patient_id must be a number: %w", err)
			}
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			weekStart := services.NextMonday(time.Now())
			result, err := services.SchedulePatient(
				app.ctx, app.database, app.database, app.cfg, app.logger,
				patientID, weekStart, dryRun,
			)
			if err != nil {
				return err
			}

			if err := output.PrintSchedule(os.Stdout, result); err != nil {
				return err
			}

			if dryRun {
				fmt.Println("\nDry run - nothing persisted.")
			} else {
				fmt.Printf("\nPrescriptions persisted for week starting %s.\n",
					weekStart.Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Run without saving prescriptions")
	return cmd
}

func scheduleAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduleAll",
		Short: "Score and schedule every active patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			weekStart := services.NextMonday(time.Now())
			results, err := services.ScheduleAllPatients(
				app.ctx, app.database, app.database, app.cfg, app.logger,
				weekStart, dryRun,
			)
			if err != nil {
				return err
			}

			balanced := 0
			for _, result := range results {
				if result.Balanced {
					balanced++
				}
			}

			fmt.Printf("\nScheduled %d patients for week starting %s (%d balanced).\n",
				len(results), weekStart.Format("2006-01-02"), balanced)

			for _, result := range results {
				if !result.Balanced {
					fmt.Printf("\nPatient %d violated the balance contract:\n", result.PatientID)
					for _, v := range result.Violations {
						fmt.Printf("  - %s\n", v.Description)
					}
				}
			}

			if dryRun {
				fmt.Println("\nDry run - nothing persisted.")
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Run without saving prescriptions")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <output_path>",
		Short: "Export persisted prescriptions to a Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputPath := args[0]

			prescriptions, err := app.database.GetPrescriptions(app.ctx)
			if err != nil {
				return err
			}

			if err := export.WritePrescriptionsParquet(prescriptions, outputPath); err != nil {
				return err
			}

			fmt.Printf("Wrote %d prescriptions to %s\n", len(prescriptions), outputPath)
			return nil
		},
	}
}

func listPatientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listPatients",
		Short: "List all active patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, err := app.database.ListPatients(app.ctx)
			if err != nil {
				return fmt.Errorf("failed to list patients: %w", err)
			}

			fmt.Printf("\nFound %d active patients:\n\n", len(patients))
			for _, id := range patients {
				fmt.Printf("- %d\n", id)
			}
			return nil
		},
	}
}
