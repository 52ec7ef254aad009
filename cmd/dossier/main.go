package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	cfgPkg "github.com/xhad/dossier/pkg/config"
	"github.com/xhad/dossier/pkg/dossier"
	"github.com/xhad/dossier/pkg/logging"
)

type options struct {
	configPath string
	inn        string
	outputDir  string
	logLevel   string
	quiet      bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.inn, "inn", "", "Company INN (10 digits)")
	flag.StringVar(&opts.outputDir, "output", "", "Output directory (overrides config)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.quiet, "quiet", false, "Do not print the report")
	flag.Parse()

	if opts.inn == "" && flag.NArg() > 0 {
		opts.inn = flag.Arg(0)
	}
	return opts
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(opts options) error {
	if opts.inn == "" {
		return fmt.Errorf("usage: dossier [-config file] -inn <INN>")
	}

	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		cfg.Paths.OutputDir = opts.outputDir
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Yellow("config: %s", e.Error())
		}
		return fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := dossier.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	color.Blue("\nBuilding dossier for INN %s\n", opts.inn)
	spinner := getSpinner("starting...")
	result, payload := svc.RunWithStatus(ctx, opts.inn, func(status string) {
		spinner.Describe(color.CyanString(status))
	})
	spinner.Finish()
	fmt.Print("\n")

	if payload != nil {
		return payload
	}

	for _, w := range result.Warnings {
		color.Yellow("! %s", w)
	}
	printArtifact("Company summary", result.CompanySummary)
	printArtifact("Executive summary", result.ExecutiveSummary)
	printArtifact("Fused summary", result.FusedSummary)
	printArtifact("With financials", result.FusedFinancials)
	printArtifact("Market digest", result.MarketSummary)
	printArtifact("Final report", result.FinalReport)
	if result.RunID != "" {
		color.Cyan("Run id: %s", result.RunID)
	}

	if !opts.quiet {
		fmt.Println()
		fmt.Println(result.Report)
	}
	color.Green("\n✓ Report: %s\n", result.ReportPath)
	return nil
}

func printArtifact(label, path string) {
	if path == "" {
		color.New(color.Faint).Printf("  %-18s —\n", label)
		return
	}
	color.New(color.FgGreen).Printf("  %-18s %s\n", label, path)
}
