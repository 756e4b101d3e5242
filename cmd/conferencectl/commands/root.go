package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"conference-central/internal/config"
	"conference-central/internal/domain"
	"conference-central/internal/storage"
)

var (
	debug  bool
	driver string
)

// Execute runs the conferencectl command tree.
func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "conferencectl",
		Short:         "Operate a Conference Central deployment",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.ConfigureLogging(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&driver, "driver", "", "override STORE_DRIVER")

	root.AddCommand(initStorageCmd(), refreshAnnouncementCmd(), detectFeaturedSpeakerCmd(), readModelCmd())
	return root
}

func loadStorage() (config.Storage, error) {
	var cfg config.Storage
	if err := config.ParseEnv(&cfg); err != nil {
		return config.Storage{}, err
	}
	if driver != "" {
		cfg.Driver = driver
	}
	if err := cfg.Validate(); err != nil {
		return config.Storage{}, err
	}
	return cfg, nil
}

// openBackend opens the configured storage for the duration of fn.
func openBackend(ctx context.Context, fn func(*storage.Backend) error) error {
	cfg, err := loadStorage()
	if err != nil {
		return err
	}
	b, err := storage.Open(ctx, cfg, 0)
	if err != nil {
		return err
	}
	return errors.Join(fn(b), b.Close())
}

func initStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create the Azure table and task queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStorage()
			if err != nil {
				return err
			}
			if cfg.Driver != config.DriverTables {
				fmt.Fprintf(cmd.OutOrStdout(), "driver %s needs no initialization\n", cfg.Driver)
				return nil
			}
			if err := storage.InitAzure(cmd.Context(), cfg.ConnectionString, cfg.Table, cfg.TaskQueue); err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "storage init complete")
			return nil
		},
	}
}

func refreshAnnouncementCmd() *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "refresh-announcement",
		Short: "Republish the nearly-sold-out announcement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return openBackend(cmd.Context(), func(b *storage.Backend) error {
				if enqueue {
					if b.Local {
						return errors.New("--enqueue needs a shared queue (STORE_DRIVER=tables)")
					}
					if err := b.Queue.EnqueueTask(cmd.Context(), domain.Task{Name: domain.TaskSetAnnouncement}); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "queued set_announcement")
					return nil
				}
				msg, err := domain.NewAnnouncementRefresher(b.Store, b.Cache).Refresh(cmd.Context())
				if err != nil {
					return err
				}
				if msg == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "no conference is nearly sold out")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the refresh for the task worker instead of running it")
	return cmd
}

func detectFeaturedSpeakerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-featured-speaker <conference-key> <speaker>",
		Short: "Re-evaluate the featured speaker of a conference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParseConferenceKey(args[0])
			if err != nil {
				return err
			}
			return openBackend(cmd.Context(), func(b *storage.Backend) error {
				featured, err := domain.NewFeaturedSpeakerDetector(b.Store, b.Cache).Detect(cmd.Context(), key, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "featured: %t\n", featured)
				return nil
			})
		},
	}
}

func readModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-model",
		Short: "Print the published announcement and featured speaker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return openBackend(cmd.Context(), func(b *storage.Backend) error {
				rm := domain.NewReadModel(b.Cache)
				announcement, err := rm.Announcement(cmd.Context())
				if err != nil {
					return err
				}
				featured, err := rm.FeaturedSpeaker(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "announcement: %s\nfeatured speaker: %s\n", announcement, featured)
				return nil
			})
		},
	}
}
