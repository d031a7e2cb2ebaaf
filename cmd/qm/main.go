package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"questmill/internal/catalog"
	"questmill/internal/db"
	"questmill/internal/domain"
	"questmill/internal/engine"
	"questmill/internal/migrate"
	"questmill/internal/repo"
	"questmill/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "qm",
	Short: "Questmill CLI",
	Long: `Questmill tracks wardrobe missions: multi-step challenges completed by
acting elsewhere in the product (logging items, sharing a profile,
keeping a daily streak). Domain events flow in, evaluators recompute
progress, and the lifecycle controller moves each mission through
hidden -> locked -> available -> in_progress -> claimable -> completed
or cooldown. Claiming converts completed progress into rewards.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("QUESTMILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("profile", "p", "local-user", "profile identifier")
	rootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret (serve/token)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	_ = viper.BindPFlag("jwt-secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
}

func registerCommands() {
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Manage profiles"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				id := viper.GetString("profile")
				if err := r.EnsureProfile(ctx, id, id, now); err != nil {
					return err
				}
				p, err := r.GetProfile(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rewards",
		Short: "List granted rewards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				grants, err := r.ListRewardGrants(ctx, viper.GetString("profile"))
				if err != nil {
					return err
				}
				return printJSON(grants)
			})
		},
	})
	return cmd
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mission", Short: "Inspect and act on missions"}
	cmd.AddCommand(missionListCmd())
	cmd.AddCommand(missionShowCmd())
	cmd.AddCommand(missionStartCmd())
	cmd.AddCommand(missionClaimCmd())
	return cmd
}

func missionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List missions for the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.MissionsFor(ctx, viper.GetString("profile"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"CODE", "TITLE", "STATUS", "STREAK", "ATTEMPTS", "NEXT ELIGIBLE"})
				for _, v := range views {
					next := ""
					if v.State.NextEligibleAt != nil {
						next = *v.State.NextEligibleAt
					}
					tw.AppendRow(table.Row{v.Definition.Code, v.Definition.Title, v.State.Status,
						v.State.StreakCounter, v.State.Attempts, next})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show one mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.MissionFor(ctx, viper.GetString("profile"), args[0])
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}
}

func missionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <code>",
		Short: "Start an available mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state, err := e.Start(ctx, viper.GetString("profile"), args[0])
				if err != nil {
					return err
				}
				return printJSON(state)
			})
		},
	}
}

func missionClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <code>",
		Short: "Claim a completed mission's rewards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state, grants, err := e.Claim(ctx, viper.GetString("profile"), args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"mission": state, "rewards": grants})
			})
		},
	}
}

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Emit domain events"}
	emit := &cobra.Command{
		Use:   "emit <type>",
		Short: "Feed one domain event through the dispatcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			fieldCount, _ := cmd.Flags().GetInt("field-count")
			critical, _ := cmd.Flags().GetBool("critical")
			hash, _ := cmd.Flags().GetString("hash")
			at, _ := cmd.Flags().GetString("at")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.ProcessEvent(ctx, domain.DomainEvent{
					Type:       args[0],
					ProfileID:  viper.GetString("profile"),
					OccurredAt: at,
					Payload: domain.EventPayload{
						Source:                 "cli",
						Category:               category,
						CreatedAt:              at,
						FieldCount:             fieldCount,
						CriticalFieldCompleted: critical,
						UniqueHash:             hash,
					},
				})
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	emit.Flags().String("category", "", "item category")
	emit.Flags().Int("field-count", 0, "number of filled fields")
	emit.Flags().Bool("critical", false, "critical field completed")
	emit.Flags().String("hash", "", "unique event hash")
	emit.Flags().String("at", "", "event timestamp (RFC3339, defaults to now)")
	cmd.AddCommand(emit)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Inspect the mission catalog"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cat)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default catalog to questmill.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := catalog.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(catalog.GenerateDefault()), 0o644)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := catalog.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("catalog ok")
			return nil
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Mission audit trail"}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent progress events for the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			mission, _ := cmd.Flags().GetString("mission")
			limit, _ := cmd.Flags().GetInt("limit")
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListProgressEvents(ctx, viper.GetString("profile"), mission, limit)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	tail.Flags().String("mission", "", "filter by mission code")
	tail.Flags().Int("limit", 20, "max events")
	cmd.AddCommand(tail)
	return cmd
}

// seedCmd materializes demo read-model rows so the coverage, count and
// projection evaluators have something to look at locally.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed demo data for the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				profileID := viper.GetString("profile")
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.EnsureProfile(ctx, profileID, profileID, now); err != nil {
					return err
				}
				for _, cat := range []string{"tops", "bottoms", "shoes"} {
					if err := r.InsertGarment(ctx, domain.Garment{
						ID: uuid.New().String(), ProfileID: profileID, Category: cat, CreatedAt: now,
					}); err != nil {
						return err
					}
				}
				sizeID := uuid.New().String()
				if err := r.InsertSizeLabel(ctx, domain.SizeLabel{
					ID: sizeID, ProfileID: profileID, Category: "footwear", Label: "42",
				}); err != nil {
					return err
				}
				for i := 0; i < 3; i++ {
					if err := r.InsertWishlistItem(ctx, domain.WishlistItem{
						ID: uuid.New().String(), ProfileID: profileID,
						Title: fmt.Sprintf("wish %d", i+1), SizeLabelID: &sizeID, CreatedAt: now,
					}); err != nil {
						return err
					}
				}
				if err := r.UpsertProgression(ctx, domain.ProfileProgression{
					ProfileID: profileID, CurrentStreak: 3, LongestStreak: 9, FreezeCount: 1, UpdatedAt: now,
				}); err != nil {
					return err
				}
				fmt.Println("seeded demo data for", profileID)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("--jwt-secret (or QUESTMILL_JWT_SECRET) required")
			}
			service, _ := cmd.Flags().GetBool("service")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			scope := server.ScopeProfile
			subject := viper.GetString("profile")
			if service {
				scope = server.ScopeService
				subject = ""
			}
			token, err := server.MintToken(secret, subject, scope, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Bool("service", false, "mint a service-scope token for event ingest")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Questmill HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("--jwt-secret (or QUESTMILL_JWT_SECRET) required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				handler, err := server.New(server.Config{
					Engine: e,
					Auth:   server.AuthConfig{JWTSecret: secret},
				})
				if err != nil {
					return err
				}
				fmt.Println("listening on", addr)
				return http.ListenAndServe(addr, handler)
			})
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cat, err := catalog.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cat))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
