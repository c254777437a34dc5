package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chorecal/internal/config"
	"chorecal/internal/ics"
	appLog "chorecal/internal/log"
	"chorecal/internal/web"
)

func serveCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with periodic remote sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				conf.Listen = listen
			}
			return runServe(conf)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(conf *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, conf)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sync.Hydrate(); err != nil {
		appLog.Error("snapshot hydrate incomplete", err, "path", conf.SnapshotPath)
	}
	if err := a.sync.PullAndMerge(ctx); err != nil {
		appLog.Warn("initial pull failed; serving local state", "err", err.Error())
	}

	// The worker outlives ctx so that shutdown can flush queued writes.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	a.sync.Start(workerCtx)

	if _, err := a.sync.Schedule(ctx, conf.RefreshCron); err != nil {
		return err
	}

	srv := web.NewServer(conf, a.store, a.sync)
	runErr := srv.Run(ctx)
	cancel()

	a.flush()
	appLog.Info("chorecal exiting")
	return runErr
}

func syncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull from the remote store once and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, conf)
			if err != nil {
				return err
			}
			defer a.Close()

			return runSync(ctx, a, cmd.OutOrStdout())
		},
	}
}

// runSync pulls once, pushes any occurrences the upcoming view generated and
// writes a summary to out.
func runSync(ctx context.Context, a *app, out io.Writer) error {
	if err := a.sync.PullAndMerge(ctx); err != nil {
		return err
	}

	// Listing upcoming tasks may generate occurrences; push them too.
	a.sync.Start(ctx)
	upcoming := len(a.store.UpcomingTasks(a.cfg.HorizonDays))
	a.flush()

	st := a.sync.Status()
	fmt.Fprintf(out, "account:  %s\n", a.cfg.AccountID)
	fmt.Fprintf(out, "tasks:    %d\n", a.store.Len())
	fmt.Fprintf(out, "persons:  %d\n", len(a.store.Persons()))
	fmt.Fprintf(out, "upcoming: %d in the next %d days\n", upcoming, a.cfg.HorizonDays)
	fmt.Fprintf(out, "pulled:   %s\n", st.LastPullAt.Format(time.RFC3339))
	if st.Pending > 0 {
		fmt.Fprintf(out, "unsynced: %d write(s)\n", st.Pending)
	}
	if st.LastError != nil {
		fmt.Fprintf(out, "warning:  %v\n", st.LastError)
	}
	return nil
}

func exportCmd(flags *rootFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Pull from the remote store and write an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, conf)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sync.PullAndMerge(ctx); err != nil {
				return err
			}
			body, err := ics.Export(a.store.Tasks(), time.Now())
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return err
			}
			appLog.Info("calendar exported", "path", output, "tasks", a.store.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func importCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Add the tasks of an iCalendar file and push them to the remote store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, conf)
			if err != nil {
				return err
			}
			defer a.Close()

			fields, err := ics.Import(body, a.store.Location())
			if err != nil {
				return err
			}

			a.sync.Start(ctx)
			for _, f := range fields {
				a.store.AddTask(f)
			}
			a.flush()

			if err := a.sync.LastSyncError(); err != nil {
				return fmt.Errorf("import pushed with errors: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d task(s)\n", len(fields))
			return nil
		},
	}
}
