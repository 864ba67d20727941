// Command easydep-client drives one or more easydep-agent instances.
// It is a thin fan-out layer: open N connections, merge N streams,
// aggregate per-host errors (spec.md §6, §9).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"easydep/internal/client"
)

var configPath string
var selectors []string

func main() {
	root := &cobra.Command{
		Use:   "easydep-client",
		Short: "fan-out driver for easydep-agent fleets",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "easydep-client.toml", "path to the client TOML configuration")
	root.PersistentFlags().StringSliceVar(&selectors, "server", nil, "server selector: a bare id, or t:<tag> (repeatable; default: all servers)")

	root.AddCommand(
		startCmd(),
		publishCmd(),
		deleteCmd(),
		rollbackCmd(),
		statusCmd(),
		serversCmd(),
		addServerCmd(),
		removeServerCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSelectedServers() ([]client.Server, error) {
	cfg, err := client.Load(configPath)
	if err != nil {
		return nil, err
	}
	return client.Select(cfg.Servers, selectors), nil
}

func runStream(method, path string, body any) {
	servers, err := loadSelectedServers()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	results := client.FanOut(context.Background(), servers, method, path, body, func(srv client.Server, line string) {
		fmt.Printf("[%s] %s\n", srv.ID, line)
	})

	if err := client.AggregateError(results); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

func startCmd() *cobra.Command {
	var profile string
	var releaseID uint64
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a deployment from a GitHub release",
		Run: func(cmd *cobra.Command, args []string) {
			runStream("POST", "/api/deployments/start", map[string]any{
				"profile":    profile,
				"release_id": releaseID,
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "deployment profile id")
	cmd.Flags().Uint64Var(&releaseID, "release-id", 0, "GitHub release id")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("release-id")
	return cmd
}

func publishCmd() *cobra.Command {
	var releaseID uint64
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "publish a prepared deployment",
		Run: func(cmd *cobra.Command, args []string) {
			runStream("POST", fmt.Sprintf("/api/deployments/%d/publish", releaseID), nil)
		},
	}
	cmd.Flags().Uint64Var(&releaseID, "release-id", 0, "GitHub release id")
	_ = cmd.MarkFlagRequired("release-id")
	return cmd
}

func deleteCmd() *cobra.Command {
	var releaseID uint64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "delete an unpublished deployment",
		Run: func(cmd *cobra.Command, args []string) {
			runStream("POST", fmt.Sprintf("/api/deployments/%d/delete", releaseID), nil)
		},
	}
	cmd.Flags().Uint64Var(&releaseID, "release-id", 0, "GitHub release id")
	_ = cmd.MarkFlagRequired("release-id")
	return cmd
}

func rollbackCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "roll back a profile to its previous release",
		Run: func(cmd *cobra.Command, args []string) {
			runStream("POST", "/api/rollback", map[string]any{"profile": profile})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "deployment profile id")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func statusCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "query agent status, or a profile's last deployment",
		Run: func(cmd *cobra.Command, args []string) {
			servers, err := loadSelectedServers()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			path := "/api/status"
			if profile != "" {
				path = fmt.Sprintf("/api/profiles/%s/status", profile)
			}

			results := client.FanOut(context.Background(), servers, "GET", path, nil, func(srv client.Server, line string) {
				var v map[string]any
				if json.Unmarshal([]byte(line), &v) == nil {
					fmt.Printf("[%s] %v\n", srv.ID, v)
				} else {
					fmt.Printf("[%s] %s\n", srv.ID, line)
				}
			})
			if err := client.AggregateError(results); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "deployment profile id (omit for host-wide status)")
	return cmd
}

func serversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "list the servers registered in the client configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := client.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			for _, s := range cfg.Servers {
				if len(s.Tags) == 0 {
					fmt.Printf("--| %s: ip: %s\n", s.ID, s.Address)
				} else {
					fmt.Printf("--| %s: ip: %s, tags: %s\n", s.ID, s.Address, strings.Join(s.Tags, ", "))
				}
			}
		},
	}
}

func addServerCmd() *cobra.Command {
	var id, address string
	var tags []string
	cmd := &cobra.Command{
		Use:   "add-server",
		Short: "register a new server into the client configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := client.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			cfg, err = client.AddServer(cfg, id, address, tags)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := client.Save(configPath, cfg); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println("added server into configuration")
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "server id")
	cmd.Flags().StringVar(&address, "address", "", "agent address")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "server tag (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func removeServerCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "remove-server",
		Short: "unregister a server from the client configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := client.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			cfg, err = client.RemoveServer(cfg, id)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := client.Save(configPath, cfg); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println("removed server from configuration")
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "server id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
