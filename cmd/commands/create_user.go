package commands

import (
	"fmt"
	"strings"

	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/db"
	"github.com/Automobile-System/backend-sub001/internal/auth/dto"
	"github.com/Automobile-System/backend-sub001/internal/auth/repository/postgres"
	"github.com/Automobile-System/backend-sub001/internal/auth/service"
	"github.com/Automobile-System/backend-sub001/internal/logging"
	"github.com/Automobile-System/backend-sub001/internal/validation"
	"github.com/spf13/cobra"
)

type createUserOptions struct {
	email     string
	password  string
	firstName string
	lastName  string
	roles     []string
}

func newCreateUserCommand() *cobra.Command {
	var opts createUserOptions

	cmd := &cobra.Command{
		Use:   "create-user",
		Args:  cobra.NoArgs,
		Short: "Create an account, typically the first ADMIN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.LogLevel, cfg.IsProduction())

			input := dto.RegisterInput{
				Email:     opts.email,
				Password:  opts.password,
				FirstName: opts.firstName,
				LastName:  opts.lastName,
			}
			if err := validation.Struct(input); err != nil {
				return err
			}

			pool, err := db.NewPostgresPool(cmd.Context(), cfg.DBURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewPostgresRepository(pool)
			tokens := service.NewTokenService(service.NewTokenConfig(cfg))
			svc := service.NewAuthService(repo, tokens, cfg, service.WithLogger(logger))

			user, err := svc.Register(cmd.Context(), input)
			if err != nil {
				return err
			}
			if len(opts.roles) > 0 {
				if _, err := svc.UpdateUserRoles(cmd.Context(), user.ID, opts.roles); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with roles %s\n", user.Email, user.ID, strings.Join(rolesOrDefault(opts.roles), ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "account password")
	cmd.Flags().StringVar(&opts.firstName, "first-name", "Admin", "first name")
	cmd.Flags().StringVar(&opts.lastName, "last-name", "User", "last name")
	cmd.Flags().StringSliceVar(&opts.roles, "roles", nil, "comma separated roles, e.g. ADMIN or MANAGER,STAFF")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func rolesOrDefault(roles []string) []string {
	if len(roles) == 0 {
		return []string{"CUSTOMER"}
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, strings.ToUpper(strings.TrimSpace(r)))
	}
	return out
}
