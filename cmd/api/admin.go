package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flames/api/internal/authpw"
	"flames/api/internal/store"
)

func grantAdminCommand() *cobra.Command {
	var req authpw.GrantRequest
	cmd := &cobra.Command{
		Use:   "grant-admin",
		Short: "Create or update a dashboard administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := authpw.NewService(store.NewPostgresStore(db)).Grant(ctx, req)
			if err != nil {
				return err
			}
			logger.Info("admin granted", zap.String("id", user.ID), zap.String("email", user.Email))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "administrator email")
	cmd.Flags().StringVar(&req.Password, "password", "", "administrator password, at least 8 characters")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
