package main

import (
	"fmt"
	"io"
	"os"

	"sonaged-backend/internal/config"
	"sonaged-backend/internal/database"
	"sonaged-backend/internal/logger"
	"sonaged-backend/internal/models"
	"sonaged-backend/internal/services"
	"sonaged-backend/internal/snapshot"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func withService(fn func(c *cli.Context, reports *services.ReportService) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadForTools()
		if err != nil {
			return err
		}
		logger.Setup(cfg)

		snapshotPath := cfg.SnapshotPath
		if c.IsSet("snapshot") {
			snapshotPath = c.String("snapshot")
		}

		db, err := database.Connect(c.Context, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(c.Context, db); err != nil {
			return err
		}

		reports := services.NewReportService(database.NewReportRepository(db), snapshot.NewFile(snapshotPath), nil)
		return fn(c, reports)
	}
}

var snapshotFlag = &cli.StringFlag{
	Name:  "snapshot",
	Usage: "Snapshot `FILE` to rewrite (default: SNAPSHOT_FILE)",
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the reports schema",
		Action: withService(func(c *cli.Context, _ *services.ReportService) error {
			log.Info().Msg("✅ Database migrations completed")
			return nil
		}),
	}
}

func importCSVCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-csv",
		Usage: "Import reports from the legacy spreadsheet export",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Legacy CSV `FILE` (Date/Heure, Utilisateur, Type, Message, Latitude, Longitude)",
				Required: true,
			},
			snapshotFlag,
		},
		Action: withService(func(c *cli.Context, reports *services.ReportService) error {
			rows, err := readLegacyFile(c.String("file"))
			if err != nil {
				return err
			}

			n, err := reports.ImportReports(c.Context, rows)
			if err != nil {
				return err
			}
			log.Info().Int("imported", n).Int("rows", len(rows)).Msg("✅ Import finished")
			return nil
		}),
	}
}

func readLegacyFile(path string) ([]models.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, rowErrs, err := services.ReadLegacyCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range rowErrs {
		log.Warn().Err(e).Msg("⚠️ Skipping row")
	}
	return rows, nil
}

func exportCSVCommand() *cli.Command {
	return &cli.Command{
		Name:  "export-csv",
		Usage: "Export reports as CSV, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write to `FILE` instead of stdout",
			},
			&cli.TimestampFlag{
				Name:   "from",
				Usage:  "Only reports on or after this day (YYYY-MM-DD)",
				Layout: "2006-01-02",
			},
			&cli.TimestampFlag{
				Name:   "to",
				Usage:  "Only reports before this day (YYYY-MM-DD)",
				Layout: "2006-01-02",
			},
		},
		Action: withService(func(c *cli.Context, reports *services.ReportService) error {
			var out io.Writer = os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}

			from, to := c.Timestamp("from"), c.Timestamp("to")
			if from == nil && to == nil {
				return reports.ExportCSV(c.Context, out)
			}

			lower, upper := exportRange(from, to)
			rows, err := reports.ReportsBetween(c.Context, lower, upper)
			if err != nil {
				return err
			}
			return services.WriteReportsCSV(out, rows)
		}),
	}
}

func rebuildSnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild-snapshot",
		Usage: "Rewrite the JSON snapshot from the database",
		Flags: []cli.Flag{snapshotFlag},
		Action: withService(func(c *cli.Context, reports *services.ReportService) error {
			n, err := reports.RefreshSnapshot(c.Context)
			if err != nil {
				return err
			}
			log.Info().Int("reports", n).Msg("✅ Snapshot rebuilt")
			return nil
		}),
	}
}
