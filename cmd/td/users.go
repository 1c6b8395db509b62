package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/repo"
)

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userSignupCmd())
	u.AddCommand(userCreateCmd())
	u.AddCommand(userListCmd())
	u.AddCommand(userRoleCmd())
	u.AddCommand(userStatusCmd())
	return u
}

func userSignupCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account (trial staff, or super admin for the configured email)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.SignUp(ctx, email, password, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Signed up %s as %s (uid %s)\n", s.User.Email, s.User.Role, s.User.UID)
				fmt.Printf("Token: %s\n", s.Token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userCreateCmd() *cobra.Command {
	var opts engine.ManagedUserOptions
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with a role you may assign",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			opts.ActorID = actor
			opts.Role = domain.Role(role)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				u, err := rt.Engine.CreateManagedUser(ctx, opts)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleTrialStaff), "role")
	cmd.Flags().StringVar(&opts.TeamID, "team", "", "team id (multi-team mode)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	var role, status, team string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				f := repo.UserFilters{
					Role:   domain.Role(role),
					Status: domain.UserStatus(status),
					TeamID: team,
				}
				var (
					users []domain.User
					err   error
				)
				if actor := viper.GetString("as"); actor != "" {
					users, err = rt.Engine.ListUsersFor(ctx, actor, f)
				} else {
					users, err = rt.Engine.ListUsers(ctx, f)
				}
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&team, "team", "", "team filter")
	return cmd
}

func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <uid> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, ok := domain.ParseRole(args[1])
				if !ok {
					return fmt.Errorf("unknown role %q", args[1])
				}
				u, err := rt.Engine.SetUserRole(ctx, actor, args[0], role)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
}

func userStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <uid> <active|banned|timeout>",
		Short: "Ban, time out or reactivate a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				u, err := rt.Engine.SetUserStatus(ctx, actor, args[0], domain.UserStatus(args[1]))
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable("UID", "Name", "Email", "Role", "Status", "Team")
	for _, u := range users {
		team := ""
		if u.TeamID != nil {
			team = *u.TeamID
		}
		tw.AppendRow(table.Row{u.UID, u.DisplayName, u.Email, u.Role, u.Status, team})
	}
	tw.Render()
	return nil
}

func teamCmd() *cobra.Command {
	t := &cobra.Command{Use: "team", Short: "Manage teams (multi-team mode)"}
	t.AddCommand(teamCreateCmd())
	t.AddCommand(teamListCmd())
	t.AddCommand(teamAddMemberCmd())
	return t
}

func teamCreateCmd() *cobra.Command {
	var name, admin string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.CreateTeam(ctx, actor, name, admin)
				if err != nil {
					return err
				}
				return printTeams([]domain.Team{t})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	cmd.Flags().StringVar(&admin, "admin", "", "uid of the team admin")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				teams, err := rt.Engine.ListTeams(ctx)
				if err != nil {
					return err
				}
				return printTeams(teams)
			})
		},
	}
}

func teamAddMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-member <team-id> <uid>",
		Short: "Move a user into a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.AddTeamMember(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printTeams([]domain.Team{t})
			})
		},
	}
}

func printTeams(teams []domain.Team) error {
	if viper.GetBool("json") {
		return printJSON(teams)
	}
	tw := newTable("ID", "Name", "Members", "Created")
	for _, t := range teams {
		tw.AppendRow(table.Row{t.ID, t.Name, strings.Join(t.Members, ", "), formatMillis(t.CreatedAt)})
	}
	tw.Render()
	return nil
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key, secret, err := rt.Engine.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"apiKey": key, "key": secret})
				}
				fmt.Printf("API key %s created. Store it now, it is not shown again:\n%s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")
	k.AddCommand(create)
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Engine.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Owner", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UID, k.Name, formatMillis(k.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.DeleteAPIKey(ctx, actor, args[0])
			})
		},
	})
	return k
}
