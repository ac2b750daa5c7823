package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"fururank/cmd/reports"
	"fururank/cmd/scheduler"
	"fururank/cmd/tracker"
	"fururank/src/analytics"
	"fururank/src/database"
	"fururank/src/repository"
	"fururank/src/utils"
)

var Version string

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "fururank"
	app.Usage = "Track stock picks posted on Twitter and rank the people posting them"
	app.Version = Version
	app.Before = func(_ *cli.Context) error {
		SetupLogger()
		return nil
	}

	app.Commands = []cli.Command{
		addCMD,
		discoverCMD,
		refreshCMD,
		priceCMD,
		scoreCMD,
		updateCMD,
		rebuildCMD,
		scheduleCMD,
		leaderboardCMD,
		bestTradesCMD,
		goldenPortfolioCMD,
		tickerScoresCMD,
		portfolioCMD,
		exportTradesCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	addCMD = cli.Command{
		Name:      "add",
		Usage:     "start tracking furus by handle",
		Action:    trackerAction("add", func(ctx context.Context, t *tracker.Tracker, c *cli.Context) error { return t.Add(ctx, c.Args(), c.String("file")) }),
		ArgsUsage: "[HANDLE...]",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "file, f", Usage: "YAML file with a handles list"},
		},
		Description: `Look up each handle, fetch its tweet history, then price and score the new positions`,
	}
	discoverCMD = cli.Command{
		Name:        "discover",
		Usage:       "find new furus tweeting about tickers",
		Action:      trackerAction("discover", func(ctx context.Context, t *tracker.Tracker, c *cli.Context) error { return t.Discover(ctx, c.Args()) }),
		ArgsUsage:   "SYMBOL...",
		Description: `Search recent cash-tag tweets and track the authors that pass validation`,
	}
	refreshCMD = cli.Command{
		Name:   "refresh",
		Usage:  "fetch new tweets and update raw positions",
		Action: trackerAction("refresh", func(ctx context.Context, t *tracker.Tracker, _ *cli.Context) error { return t.Refresh(ctx) }),
	}
	priceCMD = cli.Command{
		Name:   "price",
		Usage:  "fill missing entry and close prices",
		Action: trackerAction("price", func(ctx context.Context, t *tracker.Tracker, _ *cli.Context) error { return t.Price(ctx) }),
	}
	scoreCMD = cli.Command{
		Name:   "score",
		Usage:  "recompute furu statistics",
		Action: trackerAction("score", func(ctx context.Context, t *tracker.Tracker, _ *cli.Context) error { return t.Score(ctx) }),
	}
	updateCMD = cli.Command{
		Name:   "update",
		Usage:  "run refresh, price and score",
		Action: trackerAction("update", func(ctx context.Context, t *tracker.Tracker, _ *cli.Context) error { return t.Update(ctx) }),
	}
	rebuildCMD = cli.Command{
		Name:        "rebuild",
		Usage:       "replay stored tweets into fresh positions",
		Action:      trackerAction("rebuild", func(ctx context.Context, t *tracker.Tracker, c *cli.Context) error { return t.Rebuild(ctx, c.Args()) }),
		ArgsUsage:   "HANDLE...",
		Description: `Delete the positions of each furu and rebuild them from its archived tweets`,
	}
	scheduleCMD = cli.Command{
		Name:        "schedule",
		Usage:       "run update on the UPDATE_CRON schedule",
		Action:      scheduleAction,
		Description: `Blocks until SIGINT or SIGTERM`,
	}
	leaderboardCMD = cli.Command{
		Name:   "leaderboard",
		Usage:  "print the ranked furus",
		Action: reportsAction("leaderboard", func(ctx context.Context, r *reports.Reports, c *cli.Context) error { return r.Leaderboard(ctx, c.Bool("lines")) }),
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "lines", Usage: "print one share line per furu"},
		},
	}
	bestTradesCMD = cli.Command{
		Name:   "best-trades",
		Usage:  "print the best closed trades",
		Action: reportsAction("best-trades", func(ctx context.Context, r *reports.Reports, c *cli.Context) error { return r.BestTrades(ctx, c.Int("limit")) }),
		Flags: []cli.Flag{
			cli.IntFlag{Name: "limit", Value: analytics.DefaultBestTradesLimit, Usage: "trades to load"},
		},
	}
	goldenPortfolioCMD = cli.Command{
		Name:   "golden-portfolio",
		Usage:  "print the symbols held by the best furus",
		Action: reportsAction("golden-portfolio", func(ctx context.Context, r *reports.Reports, _ *cli.Context) error { return r.GoldenPortfolio(ctx) }),
		Flags:  []cli.Flag{asOfFlag},
	}
	tickerScoresCMD = cli.Command{
		Name:      "ticker-scores",
		Usage:     "print golden scores for symbols",
		Action:    reportsAction("ticker-scores", func(ctx context.Context, r *reports.Reports, c *cli.Context) error { return r.TickerScores(ctx, c.Args()) }),
		ArgsUsage: "SYMBOL...",
		Flags:     []cli.Flag{asOfFlag},
	}
	portfolioCMD = cli.Command{
		Name:      "portfolio",
		Usage:     "print open positions of furus, or of everyone",
		Action:    reportsAction("portfolio", func(ctx context.Context, r *reports.Reports, c *cli.Context) error { return r.Portfolio(ctx, c.Args()) }),
		ArgsUsage: "[HANDLE...]",
		Flags:     []cli.Flag{asOfFlag},
	}
	exportTradesCMD = cli.Command{
		Name:   "export-trades",
		Usage:  "write closed trades to a parquet file",
		Action: reportsAction("export-trades", func(ctx context.Context, r *reports.Reports, c *cli.Context) error { return r.ExportTrades(ctx, c.String("out")) }),
		Flags: []cli.Flag{
			cli.StringFlag{Name: "out, o", Value: "trades.parquet", Usage: "output file"},
		},
	}
)

var asOfFlag = cli.StringFlag{Name: "as-of", Usage: "score days against this YYYY-MM-DD instead of today"}

// SetupLogger applies LOG_LEVEL and LOG_FORMAT.
func SetupLogger() {
	cfg := database.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// asOfClock returns time.Now, or a clock frozen at the given day.
func asOfClock(raw string) (func() time.Time, error) {
	if raw == "" {
		return time.Now, nil
	}
	asOf, err := utils.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --as-of: %w", err)
	}
	return func() time.Time { return asOf }, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func trackerAction(name string, run func(context.Context, *tracker.Tracker, *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		logrus.Infof("Starting %s CMD", name)
		if err := database.InitMainDB(); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}

		ctx, cancel := signalContext()
		defer cancel()

		t := &tracker.Tracker{
			Log: logrus.WithField("cmd", name),
			DB:  database.MainDB,
		}
		if err := run(ctx, t, c); err != nil {
			logrus.WithError(err).Errorf("Running %s cmd", name)
			return err
		}
		return nil
	}
}

func reportsAction(name string, run func(context.Context, *reports.Reports, *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := database.InitMainDB(); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}
		if err := database.InitReadOnlyDB(); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to read-only database")
		}

		repo := repository.NewReportRepository()
		clock, err := asOfClock(c.String("as-of"))
		if err != nil {
			return err
		}
		reporter := analytics.NewReporter(repo).WithClock(clock)

		ctx, cancel := signalContext()
		defer cancel()

		r := &reports.Reports{
			Log:      logrus.WithField("cmd", name),
			Out:      os.Stdout,
			Reporter: reporter,
			Trades:   repo,
		}
		if err := run(ctx, r, c); err != nil {
			logrus.WithError(err).Errorf("Running %s cmd", name)
			return err
		}
		return nil
	}
}

func scheduleAction(_ *cli.Context) error {
	logrus.Info("Starting schedule CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, cancel := signalContext()
	defer cancel()

	t := &tracker.Tracker{
		Log: logrus.WithField("cmd", "update"),
		DB:  database.MainDB,
	}
	s := &scheduler.Scheduler{
		Log: logrus.WithField("cmd", "schedule"),
		Job: t.Update,
	}
	return s.Start(ctx)
}
