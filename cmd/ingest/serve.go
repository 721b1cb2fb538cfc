package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carvelab/ingest/internal/api"
	"github.com/carvelab/ingest/internal/dispatch"
	"github.com/carvelab/ingest/internal/orchestrator"
	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status/control API and the scheduled-job dispatcher",
	Long: `Start the HTTP API for job monitoring and control, plus a background
poller that launches scheduled jobs when their start time passes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		store, err := openStorage(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, err := buildOrchestrator(ctx, cfg, store)
		if err != nil {
			fatalf("%v", err)
		}

		ctrl := &serverController{orch: orch, store: store, runCtx: ctx}
		handler := api.NewHandler(api.Deps{Store: store, Controller: ctrl})

		srv := &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		poller, err := dispatch.NewPollingDispatcher(store, dispatch.DispatcherFunc(func(_ context.Context, jobID string) error {
			fmt.Printf("Starting scheduled job %s\n", jobID)
			go func() {
				if err := orch.Run(ctx, jobID); err != nil && ctx.Err() == nil {
					fmt.Printf("Warning: scheduled job %s failed: %v\n", jobID, err)
				}
			}()
			return nil
		}), dispatch.DefaultPollInterval)
		if err != nil {
			fatalf("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Listening on %s\n", green("✓"), cfg.API.Addr)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			err := poller.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			fatalf("server error: %v", err)
		}
		fmt.Println("Shut down")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serverController adapts the orchestrator for the API. Resume moves the job
// back to processing synchronously so conflicts surface in the response,
// then runs it in the background.
type serverController struct {
	orch   *orchestrator.Orchestrator
	store  storage.Storage
	runCtx context.Context
}

func (c *serverController) Pause(ctx context.Context, jobID string) error {
	return c.orch.Pause(ctx, jobID)
}

func (c *serverController) Cancel(ctx context.Context, jobID string) error {
	return c.orch.Cancel(ctx, jobID)
}

func (c *serverController) Resume(ctx context.Context, jobID string) error {
	if err := c.store.TransitionJob(ctx, jobID, types.JobPaused, types.JobProcessing); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		// A job left processing by a crashed run resumes without a
		// transition; anything else is a real conflict.
		job, gerr := c.store.GetJob(ctx, jobID)
		if gerr != nil {
			return gerr
		}
		if job.Status != types.JobProcessing {
			return err
		}
	}
	go func() {
		if err := c.orch.Run(c.runCtx, jobID); err != nil && c.runCtx.Err() == nil {
			fmt.Printf("Warning: resumed job %s failed: %v\n", jobID, err)
		}
	}()
	return nil
}
