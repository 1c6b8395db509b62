package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/config"
	"teamdesk/internal/db"
	"teamdesk/internal/identity"
	"teamdesk/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "teamdesk CLI",
	Long: `teamdesk assigns and tracks team tasks under a role hierarchy.
- Roles rank super_admin > admin > developer > staff > trial_staff; each role
  may hand out only the roles below it.
- Tasks belong to a milestone and are assigned to users or to a whole role.
- Views: "mine" is what is assigned to you, "subordinates" is what is
  assigned to people ranked below you.
- Local commands act as the user given with --as <uid> (see 'td identity uid').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/teamdesk.yml)")
	rootCmd.PersistentFlags().String("as", "", "uid of the acting user")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	for _, name := range []string{"workspace", "config", "as", "json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var email string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create teamdesk.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if _, err := config.FromYAML([]byte(config.GenerateDefault(email))); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(email)), 0o644); err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Printf("Initialized %s\n", path)
			if email != "" {
				fmt.Printf("Super admin uid for %s: %s (sign up with this email to claim it)\n", email, identity.UIDForEmail(email))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "super-admin-email", "", "email of the super admin account")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func identityCmd() *cobra.Command {
	id := &cobra.Command{Use: "identity", Short: "Identity helpers"}
	id.AddCommand(&cobra.Command{
		Use:   "uid <email>",
		Short: "Print the uid an email address signs in as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(identity.UIDForEmail(args[0]))
			return nil
		},
	})
	return id
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every mutation appends an event: user, team, milestone, task, comment and api key changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				evts, err := rt.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor")
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, formatMillis(e.TS), e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		JWTSecret:  viper.GetString("jwt-secret"),
	})
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// actingUID returns the --as uid; mutations refuse to run without one.
func actingUID() (string, error) {
	uid := strings.TrimSpace(viper.GetString("as"))
	if uid == "" {
		return "", errors.New("--as <uid> is required (or set TEAMDESK_AS)")
	}
	return uid, nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrValue(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func optionalMillis(p *int64) string {
	if p == nil {
		return ""
	}
	return formatMillis(*p)
}

// parseTime accepts RFC 3339 or a bare date and returns epoch millis.
func parseTime(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q (use RFC 3339 or YYYY-MM-DD)", s)
}
