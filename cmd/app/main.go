package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/gtsreg/internal"
	"github.com/starford/gtsreg/internal/models"
	pkgconfig "github.com/starford/gtsreg/pkg/config"
)

var version = "dev"

// errProblems makes check exit non-zero without logging.
var errProblems = errors.New("validation problems found")

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dir := cmd.Args().First(); dir != "" {
		cfg.Workspace.Path = dir
	}
	cfg.Workspace.Watch = false

	// Logs go to stderr so the report stays readable.
	diags, err := internal.Check(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	if report(os.Stdout, diags) > 0 {
		return errProblems
	}
	return nil
}

// report prints diagnostics as path:line:col lines and returns the number
// of errors.
func report(w io.Writer, diags map[string][]models.Diagnostic) int {
	bold := color.New(color.Bold).SprintFunc()
	count := 0
	for _, p := range slices.Sorted(maps.Keys(diags)) {
		for _, d := range diags[p] {
			sev := color.YellowString("warning")
			if d.Severity == models.SeverityError {
				sev = color.RedString("error")
				count++
			}
			line := fmt.Sprintf("%s:%d:%d: %s: %s", bold(p), d.Range.Start.Line+1, d.Range.Start.Character+1, sev, d.Message)
			if d.Keyword != "" {
				line += color.HiBlackString(" [%s]", d.Keyword)
			}
			fmt.Fprintln(w, line)
		}
	}
	if count == 0 {
		fmt.Fprintln(w, color.GreenString("no problems found"))
	} else {
		fmt.Fprintln(w, color.RedString("%d problem(s) in %d file(s)", count, len(diags)))
	}
	return count
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func main() {
	cmd := &cli.Command{
		Name:    "gtsreg",
		Usage:   "Registry and validator for GTS entity documents",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API and file watcher",
				Action: serve,
			},
			{
				Name:      "check",
				Usage:     "Validate the workspace once and report located errors",
				ArgsUsage: "[workspace-dir]",
				Action:    check,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, errProblems) {
			os.Exit(1)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
