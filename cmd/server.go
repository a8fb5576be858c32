package cmd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crz068/pytorch-legacy/cache"
)

func newCacheServerCommand(_ context.Context, input *Input) *cobra.Command {
	var addr string
	var pruneOlderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cache-server",
		Short: "Serve the local compiler cache store to other build hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input.verbose {
				log.SetLevel(log.DebugLevel)
			}

			store, err := cache.Open(input.CacheDir())
			if err != nil {
				return err
			}
			defer store.Close()

			if pruneOlderThan > 0 {
				pruned, err := store.Prune(pruneOlderThan)
				if err != nil {
					return err
				}
				log.Infof("pruned %d stale cache entries", pruned)
			}

			if input.cacheServerSecret == "" {
				log.Warning("serving without authentication, pass --cache-server-token to require one")
			}
			return cache.Serve(addr, store, input.cacheServerSecret)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "address to listen on")
	cmd.Flags().DurationVar(&pruneOlderThan, "prune-older-than", 0, "drop cache entries older than this before serving")
	return cmd
}
