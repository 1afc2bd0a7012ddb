package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"agrimarket/internal/analyzer"
	"agrimarket/internal/batch"
	"agrimarket/internal/config"
	"agrimarket/internal/currency"
	"agrimarket/internal/source"
	"agrimarket/internal/web"
	"agrimarket/pkg/model"
)

var (
	cfgFile     string
	format      string
	verbose     bool
	sourceKind  string
	sourcePath  string
	crop        string
	state       string
	subRegion   string
	country     string
	harvestDate string
	canStore    bool
	storageCost float64
	workers     int
	port        int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agrimarket",
		Short: "Crop market price analytics: trends, seasonality, forecasts and sell-or-store advice",
		Long: `Agrimarket analyses historical crop prices for a location and recommends
whether to sell at harvest or store for a better price.

Examples:
  agrimarket analyze --crop maize --state Kaduna --harvest 2024-10-01 --storage-cost 15
  agrimarket batch --source postgres --workers 8
  agrimarket serve --port 8080
  agrimarket currency Kenya 1500 bag`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show detailed output")
	rootCmd.PersistentFlags().StringVar(&sourceKind, "source", "", "observation source: csv, postgres (default from config)")
	rootCmd.PersistentFlags().StringVar(&sourcePath, "file", "", "CSV file with price observations")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse one crop at one location",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&crop, "crop", "", "crop to analyse (required)")
	analyzeCmd.Flags().StringVar(&state, "state", "", "state or region (required)")
	analyzeCmd.Flags().StringVar(&subRegion, "sub-region", "", "optional sub-region")
	analyzeCmd.MarkFlagRequired("crop")
	analyzeCmd.MarkFlagRequired("state")
	addEconomicsFlags(analyzeCmd)

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Analyse every crop/location series in the source",
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers (default from config)")
	addEconomicsFlags(batchCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis JSON API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")

	currencyCmd := &cobra.Command{
		Use:   "currency <country> [price] [unit]",
		Short: "Show the display currency for a country",
		Args:  cobra.RangeArgs(1, 3),
		RunE:  runCurrency,
	}

	rootCmd.AddCommand(analyzeCmd, batchCmd, serveCmd, currencyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addEconomicsFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&country, "country", "", "country used for currency display (default from config)")
	cmd.Flags().StringVar(&harvestDate, "harvest", "", "target harvest/sale date YYYY-MM-DD (default: config horizon from today)")
	cmd.Flags().BoolVar(&canStore, "can-store", true, "whether storage is available")
	cmd.Flags().Float64Var(&storageCost, "storage-cost", 0, "storage cost per month")
}

// loadConfig loads the config file and applies CLI overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if sourceKind != "" {
		cfg.Source.Kind = sourceKind
	}
	if sourcePath != "" {
		cfg.Source.Path = sourcePath
	}
	if flag := cmd.Flags().Lookup("can-store"); flag != nil && flag.Changed {
		cfg.Analysis.CanStore = canStore
	}
	if flag := cmd.Flags().Lookup("storage-cost"); flag != nil && flag.Changed {
		cfg.Analysis.StorageCostPerMonth = storageCost
	}
	if country != "" {
		cfg.Analysis.DefaultCountry = country
	}
	if workers > 0 {
		cfg.Batch.Workers = workers
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openSource builds the configured observation source. The returned
// cleanup func must be called when done.
func openSource(ctx context.Context, cfg *config.Config) (source.Source, func(), error) {
	var src source.Source
	cleanup := func() {}

	switch cfg.Source.Kind {
	case "postgres":
		pg, err := source.NewPostgresSource(ctx, cfg.Source.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		src = pg
		cleanup = func() { pg.Close() }
	default:
		src = source.NewCSVSource(cfg.Source.Path)
	}

	if cfg.Source.Cache {
		src = source.NewCachingSource(src)
	}
	if verbose {
		log.Printf("[SOURCE] Using %s source", src.Name())
	}
	return src, cleanup, nil
}

func newAnalyzer(cfg *config.Config) *analyzer.Analyzer {
	return analyzer.NewAnalyzer(analyzer.Config{
		DefaultCountry: cfg.Analysis.DefaultCountry,
		DefaultUnit:    cfg.Analysis.DefaultUnit,
		HistoryLimit:   cfg.Analysis.HistoryLimit,
	})
}

func resolveHarvest(cfg *config.Config) (time.Time, error) {
	if harvestDate == "" {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		return today.AddDate(0, 0, cfg.Analysis.HarvestHorizonDays), nil
	}
	t, err := time.Parse(source.DateLayout, harvestDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --harvest %q, expected YYYY-MM-DD: %w", harvestDate, err)
	}
	return t, nil
}

// signalContext cancels on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted. Stopping...")
		cancel()
	}()

	return ctx, cancel
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	harvest, err := resolveHarvest(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	src, cleanup, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	prices, err := src.Observations(ctx, source.Query{Crop: crop, State: state, SubRegion: subRegion})
	if err != nil {
		return fmt.Errorf("loading observations: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Loaded %d observations for %s in %s\n", len(prices), crop, state)
		printRejections(src)
	}

	analysis := newAnalyzer(cfg).Analyze(analyzer.Request{
		Crop: crop,
		Location: model.Location{
			Country:   cfg.Analysis.DefaultCountry,
			State:     state,
			SubRegion: subRegion,
		},
		Prices:              prices,
		HarvestDate:         harvest,
		CanStore:            cfg.Analysis.CanStore,
		StorageCostPerMonth: cfg.Analysis.StorageCostPerMonth,
	})

	if format == "json" {
		return outputJSON(analysis)
	}
	return outputAnalysis(analysis)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	harvest, err := resolveHarvest(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	src, cleanup, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	series, err := src.Series(ctx)
	if err != nil {
		return fmt.Errorf("listing series: %w", err)
	}
	if len(series) == 0 {
		return fmt.Errorf("no price series found in %s source", src.Name())
	}

	fmt.Printf("Analysing %d series with %d workers...\n\n", len(series), cfg.Batch.Workers)

	runner := batch.NewRunner(src, newAnalyzer(cfg), cfg.Batch.Workers, cfg.Batch.Timeout)

	bar := progressbar.NewOptions(len(series),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Analysing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	runner.SetProgressCallback(func(done, total int) {
		bar.Set(done)
	})

	report, err := runner.Run(ctx, series, batch.Options{
		HarvestDate:         harvest,
		CanStore:            cfg.Analysis.CanStore,
		StorageCostPerMonth: cfg.Analysis.StorageCostPerMonth,
		Country:             cfg.Analysis.DefaultCountry,
	})
	bar.Finish()
	fmt.Println()
	printRejections(src)
	if err != nil {
		log.Printf("[BATCH] Run %s stopped early: %v", report.RunID, err)
	}

	if format == "json" {
		return outputJSON(report)
	}
	return outputBatch(report, cfg.Analysis.DefaultCountry)
}

// printRejections reports rows the source skipped on its last load.
// It writes to stderr so JSON output stays clean.
func printRejections(src source.Source) {
	r, ok := src.(source.StatsReporter)
	if !ok {
		return
	}
	stats := r.LastLoad()
	if len(stats.Rejected) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "Skipped %d invalid rows (%d loaded)\n", len(stats.Rejected), stats.Loaded)
	if verbose {
		for _, rej := range stats.Rejected {
			fmt.Fprintf(os.Stderr, "  %v\n", rej)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	src, cleanup, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	server := web.NewServer(cfg, newAnalyzer(cfg), src)

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[SERVER] Shutdown error: %v", err)
		}
	}()

	if err := server.Start(cfg.Server.Port); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func runCurrency(cmd *cobra.Command, args []string) error {
	c := currency.GetCurrency(args[0])

	if len(args) == 1 {
		fmt.Printf("%s: %s (%s)\n", args[0], c.Symbol, c.Code)
		return nil
	}

	price, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[1], err)
	}
	unit := "kg"
	if len(args) == 3 {
		unit = args[2]
	}
	fmt.Println(currency.FormatPrice(price, args[0], unit))
	return nil
}

func outputAnalysis(a *model.MarketAnalysis) error {
	loc := a.Location.State
	if a.Location.SubRegion != "" {
		loc = a.Location.SubRegion + ", " + loc
	}
	fmt.Printf("Market analysis: %s in %s\n\n", a.Crop, loc)

	if a.CurrentPrice == nil {
		fmt.Println("No price observations found.")
	} else {
		fmt.Printf("  Latest price: %s (%s, %s)\n",
			currency.FormatPrice(a.CurrentPrice.Price, a.Location.Country, a.CurrentPrice.Unit),
			a.CurrentPrice.Date.Format(source.DateLayout), a.CurrentPrice.Source)
	}
	fmt.Printf("  Trend: %s %+.2f%% (%s) | Volatility: %s\n",
		a.Trend.Direction, a.Trend.PercentChange, a.Trend.Period, a.Trend.Volatility)

	f := a.Forecast
	fmt.Printf("  Forecast for %s: %s [%s - %s]\n",
		f.ForecastDate.Format(source.DateLayout),
		currency.FormatPrice(f.ExpectedPrice, f.Location.Country, f.Unit),
		currency.FormatAmount(f.ConfidenceInterval.Low),
		currency.FormatAmount(f.ConfidenceInterval.High))
	fmt.Printf("  Confidence: %d%% (%s data) | %s\n", f.Confidence, f.DataQuality, f.Reasoning)

	fmt.Println("\n--- Seasonal Pattern ---")
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Month", "Avg Price", "Index", "Movement"}),
	)
	for _, p := range a.SeasonalPattern {
		avg, idx := "-", "-"
		if p.AveragePrice > 0 {
			avg = currency.FormatAmount(p.AveragePrice)
			idx = fmt.Sprintf("%.0f", p.PriceIndex)
		}
		table.Append([]string{p.MonthName, avg, idx, string(p.TypicalMovement)})
	}
	table.Render()

	if verbose && len(a.HistoricalPrices) > 0 {
		fmt.Println("\n--- Recent Prices ---")
		history := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Date", "Price", "Unit", "Market", "Source", "Confidence"}),
		)
		for _, o := range a.HistoricalPrices {
			history.Append([]string{
				o.Date.Format(source.DateLayout),
				currency.FormatAmount(o.Price),
				o.Unit,
				o.Market,
				o.Source,
				string(o.Confidence),
			})
		}
		history.Render()
	}

	fmt.Printf("\n>> %s\n   %s\n", strings.ToUpper(string(a.RecommendationCode)), a.Recommendation)
	return nil
}

func outputBatch(report *batch.Report, country string) error {
	if report.Analyzed == 0 && report.Failed == 0 {
		fmt.Println("No series analysed.")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Crop", "Location", "Latest", "Trend", "Expected", "Conf", "Advice"}),
	)

	counts := make(map[model.RecommendationCode]int)
	for _, r := range report.Results {
		loc := r.Series.State
		if r.Series.SubRegion != "" {
			loc = r.Series.SubRegion + ", " + loc
		}
		if r.Analysis == nil {
			table.Append([]string{r.Series.Crop, loc, "-", "-", "-", "-", "error: " + r.Error})
			continue
		}

		a := r.Analysis
		counts[a.RecommendationCode]++
		latest := "-"
		if a.CurrentPrice != nil {
			latest = currency.GetCurrency(country).Symbol + currency.FormatAmount(a.CurrentPrice.Price)
		}
		table.Append([]string{
			r.Series.Crop,
			loc,
			latest,
			fmt.Sprintf("%s %+.1f%%", a.Trend.Direction, a.Trend.PercentChange),
			currency.GetCurrency(country).Symbol + currency.FormatAmount(a.Forecast.ExpectedPrice),
			fmt.Sprintf("%d%%", a.Forecast.Confidence),
			string(a.RecommendationCode),
		})
	}
	table.Render()

	fmt.Printf("\nRun %s: %d analysed, %d failed in %s\n",
		report.RunID, report.Analyzed, report.Failed, report.Duration.Round(time.Millisecond))
	fmt.Printf("Sell now: %d | Store short: %d | Store medium: %d\n",
		counts[model.SellNow], counts[model.StoreShort], counts[model.StoreMedium])
	return nil
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
