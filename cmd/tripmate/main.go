package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/daeho/tripmate/internal/agent"
	"github.com/daeho/tripmate/internal/gateway"
	"github.com/daeho/tripmate/internal/governance"
	"github.com/daeho/tripmate/internal/graph"
	"github.com/daeho/tripmate/internal/observability"
	"github.com/daeho/tripmate/internal/planner"
	"github.com/daeho/tripmate/internal/store"
	"github.com/daeho/tripmate/internal/tools"
	"github.com/daeho/tripmate/internal/tour"
	"github.com/daeho/tripmate/pkg/config"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "tripmate",
		Short: "Multi-agent Korean travel itinerary planner",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newPlanCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything the commands need.
type app struct {
	planner *planner.Planner
	agent   *agent.GraphAgent
	cfg     *config.Config
	closers []func() error
}

func (a *app) close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			log.Printf("Warning: close failed: %v", err)
		}
	}
}

func buildApp() (*app, error) {
	cfg := config.LoadConfig(cfgPath)
	logger := observability.NewLogger()

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	var llm llms.Model
	var err error
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not supported", pName)
	}
	if err != nil {
		return nil, err
	}

	table := tour.DefaultTable()
	if cfg.Tour.RegionsPath != "" {
		table, err = tour.LoadTable(cfg.Tour.RegionsPath)
		if err != nil {
			return nil, fmt.Errorf("load regions: %w", err)
		}
	}
	places := tour.NewClient(cfg.Tour.APIKey, cfg.Tour.BaseURL, table)
	if cfg.Tour.APIKey == "" {
		log.Println("Warning: tour API key not set, place lookups will return empty results")
	}

	a := &app{cfg: cfg}

	var checkpointer graph.Checkpointer[planner.State]
	switch cfg.Memory.Type {
	case "sqlite":
		saver, err := store.NewSQLiteSaver[planner.State](cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		a.closers = append(a.closers, saver.Close)
		checkpointer = saver
	default:
		checkpointer = graph.NewMemorySaver[planner.State]()
	}

	registry := tools.NewRegistry()
	tools.RegisterTourTools(registry, places, table)

	gov := governance.NewDefaultPolicyEngine()
	for _, name := range cfg.Governance.DeniedTools {
		gov.DenyTool(name)
	}
	for _, pattern := range cfg.Governance.DeniedPatterns {
		if err := gov.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("bad governance pattern %q: %w", pattern, err)
		}
	}

	a.planner = planner.New(llm, places, table, checkpointer, logger)
	a.agent = agent.NewGraphAgent(llm, registry, table, gov, logger)
	return a, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP planning server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			mux := http.NewServeMux()
			gateway.New(a.planner, a.agent).RegisterHTTPHandlers(mux)

			srv := &http.Server{
				Addr:         a.cfg.Server.Addr,
				Handler:      mux,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 5 * time.Minute, // planning runs many LLM calls
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Listening on %s", a.cfg.Server.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newPlanCmd() *cobra.Command {
	var (
		destination string
		startDate   string
		endDate     string
		budget      int
		travelers   int
		preferences []string
		useGraph    bool
		theme       string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan one trip and print the itinerary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var out any
			if useGraph {
				result, err := a.agent.GenerateSchedule(ctx, "", agent.Request{
					Destination: destination,
					StartDate:   startDate,
					EndDate:     endDate,
					Budget:      budget,
					Theme:       theme,
				})
				if err != nil {
					return err
				}
				out = result
			} else {
				out = a.planner.Plan(ctx, planner.Requirements{
					Destination: destination,
					StartDate:   startDate,
					EndDate:     endDate,
					Budget:      budget,
					Travelers:   travelers,
					Preferences: preferences,
				}, "")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&destination, "destination", "", "destination area, e.g. 제주도")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&budget, "budget", 1000000, "total budget in KRW")
	cmd.Flags().IntVar(&travelers, "travelers", 1, "number of travelers")
	cmd.Flags().StringSliceVar(&preferences, "preferences", nil, "travel preferences, e.g. healing,food")
	cmd.Flags().BoolVar(&useGraph, "graph", false, "use the tool-calling research agent instead of the staged pipeline")
	cmd.Flags().StringVar(&theme, "theme", "HEALING", "trip theme for the research agent")
	cmd.MarkFlagRequired("destination")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")

	return cmd
}
