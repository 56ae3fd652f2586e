package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stract/internal/api"
	"stract/internal/errors"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local response cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired cache entries",
	RunE:  runCachePurge,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Remove cached entries (all, autosuggest or webgraph)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cache == nil {
		return errors.New(errors.CacheFailed, "response cache is disabled", nil)
	}
	n, err := a.cache.Purge(ctx)
	if err != nil {
		return errors.New(errors.CacheFailed, "purge failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries\n", n)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cache == nil {
		return errors.New(errors.CacheFailed, "response cache is disabled", nil)
	}

	namespaces := []string{api.NamespaceAutosuggest, api.NamespaceWebgraph}
	if len(args) == 1 && args[0] != "all" {
		switch args[0] {
		case api.NamespaceAutosuggest, api.NamespaceWebgraph:
			namespaces = args[:1]
		default:
			return fmt.Errorf("unknown cache namespace %q", args[0])
		}
	}
	for _, ns := range namespaces {
		if err := a.cache.Clear(ctx, ns); err != nil {
			return errors.New(errors.CacheFailed, "clear failed", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %v\n", namespaces)
	return nil
}
