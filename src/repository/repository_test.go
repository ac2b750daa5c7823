package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"fururank/src/database"
	"fururank/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func TestFuruSaveAggregate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewFuruRepositoryWithDB(db)

	furu := &model.Furu{Handle: "@TraderJoe"}
	require.NoError(t, repo.Create(ctx, furu))
	require.Equal(t, "TraderJoe", furu.Handle)
	require.Equal(t, model.StatusActive, furu.Status)

	valid := &model.Position{Symbol: "AAPL", DateEntered: day("2021-03-01"), DateLastMentioned: day("2021-03-03")}
	invalid := &model.Position{Symbol: "MSFT", DateEntered: day("2021-03-10"), DateClosed: ptr(day("2021-03-01")), DateLastMentioned: day("2021-03-10")}
	furu.AddPosition(valid)
	furu.AddPosition(invalid)
	furu.AddFailure(day("2021-03-05"), model.FailureSourceTwitter)
	furu.Tweets = []model.Tweet{
		{ExternalID: "1", PostedAt: day("2021-03-01"), Text: "$AAPL"},
		{ExternalID: "2", PostedAt: day("2021-03-03"), Text: "$AAPL again"},
	}

	require.NoError(t, repo.SaveAggregate(ctx, furu))

	loaded, err := repo.LoadAggregate(ctx, furu.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Positions, 1)
	require.Equal(t, "AAPL", loaded.Positions[0].Symbol)
	require.Len(t, loaded.Failures, 1)

	// a duplicate tweet is ignored
	loaded.Tweets = []model.Tweet{{ExternalID: "2", PostedAt: day("2021-03-03"), Text: "dup"}}
	loaded.RemovePosition(loaded.Positions[0])
	require.NoError(t, repo.SaveAggregate(ctx, loaded))

	again, err := repo.LoadAggregate(ctx, furu.ID)
	require.NoError(t, err)
	require.Empty(t, again.Positions)

	tweets, err := repo.TweetsSince(ctx, furu.ID, day("2021-01-01"))
	require.NoError(t, err)
	require.Len(t, tweets, 2)
	require.Equal(t, "$AAPL", tweets[0].Text)

	newest, err := repo.NewestTweetDate(ctx, furu.ID)
	require.NoError(t, err)
	require.True(t, newest.Equal(day("2021-03-03")))
}

func TestFuruLookups(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewFuruRepositoryWithDB(db)

	missing, err := repo.FindByHandle(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.Create(ctx, &model.Furu{Handle: "Alpha"}))
	require.NoError(t, repo.Create(ctx, &model.Furu{Handle: "beta", Status: model.StatusError}))

	found, err := repo.FindByHandle(ctx, "@alpha")
	require.NoError(t, err)
	require.Equal(t, "Alpha", found.Handle)

	newest, err := repo.NewestTweetDate(ctx, found.ID)
	require.NoError(t, err)
	require.Nil(t, newest)

	active, err := repo.ListByStatus(ctx, model.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	handles, err := repo.Handles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, handles)

	byHandle, err := repo.FindByHandles(ctx, []string{"BETA", "ghost"})
	require.NoError(t, err)
	require.Len(t, byHandle, 1)

	require.NoError(t, repo.UpdateStatus(ctx, byHandle[0].ID, model.StatusActive))
	active, err = repo.ListByStatus(ctx, model.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 2)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestFuruSaveStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewFuruRepositoryWithDB(db)

	furu := &model.Furu{Handle: "gamma"}
	require.NoError(t, repo.Create(ctx, furu))

	furu.Accuracy = ptr(0.75)
	furu.TotalTradesMeasured = ptr(4)
	require.NoError(t, repo.SaveStats(ctx, furu))

	loaded, err := repo.FindByHandle(ctx, "gamma")
	require.NoError(t, err)
	require.InDelta(t, 0.75, *loaded.Accuracy, 1e-9)
	require.Equal(t, 4, *loaded.TotalTradesMeasured)
	require.Nil(t, loaded.PerformanceScore)
}

func TestPositionPricePending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	furus := NewFuruRepositoryWithDB(db)
	positions := NewPositionRepositoryWithDB(db)

	furu := &model.Furu{Handle: "delta"}
	require.NoError(t, furus.Create(ctx, furu))

	today := day("2021-06-20")
	rows := []*model.Position{
		{Symbol: "AAA", DateEntered: day("2021-06-01"), DateLastMentioned: day("2021-06-01")},
		{Symbol: "BBB", DateEntered: day("2021-06-20"), DateLastMentioned: day("2021-06-20")},
		{Symbol: "CCC", DateEntered: day("2021-03-01"), DateClosed: ptr(day("2021-04-12")), DateLastMentioned: day("2021-04-09"), PriceEntered: ptr(10.0)},
		{Symbol: "DDD", DateEntered: day("2021-03-01"), DateClosed: ptr(day("2021-04-12")), DateLastMentioned: day("2021-04-09"), PriceEntered: ptr(10.0), PriceClosed: ptr(11.0)},
	}
	for _, p := range rows {
		p.FuruID = furu.ID
	}
	saved, err := positions.SaveAll(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 4, saved)

	pending, err := positions.PricePending(ctx, today)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "AAA", pending[0].Symbol)
	require.Equal(t, "CCC", pending[1].Symbol)

	require.NoError(t, positions.DeleteByIDs(ctx, []uint{pending[0].ID}))
	left, err := positions.ListByFuru(ctx, furu.ID)
	require.NoError(t, err)
	require.Len(t, left, 3)
}

func TestTickerSaveAggregate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTickerRepositoryWithDB(db)

	missing, err := repo.FindBySymbol(ctx, "XYZ")
	require.NoError(t, err)
	require.Nil(t, missing)

	ticker := &model.Ticker{Symbol: "XYZ", Status: model.StatusActive}
	ticker.Bars = []model.PriceBar{
		{Date: day("2021-03-02"), Open: decimal.NewNullDecimal(decimal.NewFromInt(10)), Close: decimal.NewNullDecimal(decimal.NewFromInt(12))},
		{Date: day("2021-03-01"), Open: decimal.NewNullDecimal(decimal.NewFromInt(9)), Close: decimal.NewNullDecimal(decimal.NewFromInt(9))},
	}
	ticker.AddFailure(day("2021-02-01"), model.FailureSourcePrices)
	require.NoError(t, repo.SaveAggregate(ctx, ticker))

	loaded, err := repo.FindBySymbol(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, loaded.Bars, 2)
	require.True(t, loaded.Bars[0].Date.Equal(day("2021-03-01")))
	require.Len(t, loaded.Failures, 1)

	// re-inserting a stored date is a no-op
	loaded.Bars = append(loaded.Bars, model.PriceBar{Date: day("2021-03-02"), Open: decimal.NewNullDecimal(decimal.NewFromInt(99)), Close: decimal.NewNullDecimal(decimal.NewFromInt(99))})
	require.NoError(t, repo.SaveAggregate(ctx, loaded))

	byMap, err := repo.FindBySymbols(ctx, []string{"XYZ", "NOPE"})
	require.NoError(t, err)
	require.Len(t, byMap, 1)
	require.Len(t, byMap["XYZ"].Bars, 2)
	require.True(t, byMap["XYZ"].Bars[1].Open.Decimal.Equal(decimal.NewFromInt(10)))

	require.NoError(t, repo.UpdateStatus(ctx, loaded.ID, model.StatusCancelled))
	cancelled, err := repo.SymbolsByStatus(ctx, model.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, []string{"XYZ"}, cancelled)
}

func seedReportData(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	furus := NewFuruRepositoryWithDB(db)

	good := &model.Furu{Handle: "good", Stats: model.Stats{
		Accuracy: ptr(0.9), PerformanceScore: ptr(0.5), TotalTradesMeasured: ptr(40),
		AverageHoldingPeriodDays: ptr(20.0), AverageProfit: ptr(0.9),
	}}
	weak := &model.Furu{Handle: "weak", Stats: model.Stats{
		Accuracy: ptr(0.5), PerformanceScore: ptr(0.1), TotalTradesMeasured: ptr(40),
		AverageHoldingPeriodDays: ptr(20.0),
	}}
	require.NoError(t, furus.Create(ctx, good))
	require.NoError(t, furus.Create(ctx, weak))

	tickerID := uint(1)
	good.AddPosition(&model.Position{Symbol: "AAA", TickerID: &tickerID, DateEntered: day("2021-06-01"), DateLastMentioned: day("2021-06-10"), PriceEntered: ptr(5.0)})
	good.AddPosition(&model.Position{Symbol: "BBB", TickerID: &tickerID, DateEntered: day("2021-01-04"), DateClosed: ptr(day("2021-02-01")), DateLastMentioned: day("2021-01-29"), PriceEntered: ptr(10.0), PriceClosed: ptr(30.0)})
	weak.AddPosition(&model.Position{Symbol: "AAA", TickerID: &tickerID, DateEntered: day("2021-06-02"), DateLastMentioned: day("2021-06-02"), PriceEntered: ptr(5.0)})
	weak.AddPosition(&model.Position{Symbol: "CCC", TickerID: &tickerID, DateEntered: day("2021-01-04"), DateClosed: ptr(day("2021-03-01")), DateLastMentioned: day("2021-02-25"), PriceEntered: ptr(10.0), PriceClosed: ptr(15.0)})
	weak.AddPosition(&model.Position{Symbol: "RAW", DateEntered: day("2021-06-03"), DateLastMentioned: day("2021-06-03")})
	require.NoError(t, furus.SaveAggregate(ctx, good))
	require.NoError(t, furus.SaveAggregate(ctx, weak))
}

func TestReportQueries(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedReportData(t, db)
	repo := NewReportRepositoryWithDB(db)

	filter := LeaderboardFilter{MinAccuracy: 0.55, MinPerformance: 0.3, MinTrades: 30, MinHoldingDays: 12}

	board, err := repo.Leaderboard(ctx, filter)
	require.NoError(t, err)
	require.Len(t, board, 1)
	require.Equal(t, "good", board[0].Handle)

	best, err := repo.BestTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, best, 2)
	require.Equal(t, "BBB", best[0].Symbol)
	require.InDelta(t, 2.0, best[0].Return(), 1e-9)
	require.True(t, best[0].DateClosed.Equal(day("2021-02-01")))

	closed, err := repo.ClosedTrades(ctx)
	require.NoError(t, err)
	require.Equal(t, "BBB", closed[0].Symbol)

	golden, err := repo.GoldenCandidates(ctx, filter)
	require.NoError(t, err)
	require.Len(t, golden, 1)
	require.Equal(t, "AAA", golden[0].Symbol)
	require.Equal(t, "good", golden[0].Handle)
	require.InDelta(t, 0.9, *golden[0].AverageProfit, 1e-9)

	crowd, err := repo.OpenSymbolCrowd(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"AAA": 2}, crowd)

	open, err := repo.OpenPositions(ctx, []string{"@WEAK"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "AAA", open[0].Symbol)

	all, err := repo.OpenPositions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	count, err := repo.CountFurus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestExceptionRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewExceptionRepository().WithDB(db)

	require.NoError(t, repo.Create(ctx, &model.Exception{Service: "tracker", Module: "refresh", Method: "Refresh", RunID: "run-1", ItemKey: "@star", Message: "boom", Level: "error"}))
	require.NoError(t, repo.Create(ctx, &model.Exception{Service: "tracker", Module: "price", Method: "Price", RunID: "run-2", ItemKey: "$AAPL", Message: "no bars", Level: "error"}))

	recent, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "no bars", recent[0].Message)

	byRun, err := repo.ByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	require.Equal(t, "@star", byRun[0].ItemKey)
}

func TestTickerSymbolsByStatusQuery(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTickerRepositoryWithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "symbol" FROM "tickers" WHERE status = $1 ORDER BY symbol ASC`)).
		WithArgs("CANC").
		WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("OTCX").AddRow("ZZZ"))

	symbols, err := repo.SymbolsByStatus(context.Background(), model.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, []string{"OTCX", "ZZZ"}, symbols)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFuruCountQuery(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewFuruRepositoryWithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "furus"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
