package main

import (
	"errors"
	"fmt"
	"pixgate/internal"
	"pixgate/models"
	"pixgate/security"
	"pixgate/utility"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard and api users",
	}
	cmd.AddCommand(a.userAddCmd())
	return cmd
}

func (a *app) userAddCmd() *cobra.Command {
	var user models.User
	var role, password string
	cmd := &cobra.Command{
		Use:   "add [email]",
		Short: "Create a user; merchant users must name their merchant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			user.Email = strings.ToLower(strings.TrimSpace(args[0]))
			user.Role = models.Role(role)
			switch user.Role {
			case models.RoleAdmin:
			case models.RoleMerchant, models.RoleDeveloper:
				if user.MerchantId == "" {
					return utility.Errf("role %s requires --merchant", user.Role)
				}
				if _, err := a.db.GetMerchant(user.MerchantId); err != nil {
					return fmt.Errorf("merchant %s: %w", user.MerchantId, err)
				}
			default:
				return utility.Errf("unknown role %q", role)
			}
			if _, err := a.db.GetUserByEmail(user.Email); err == nil {
				return utility.Errf("user %s already exists", user.Email)
			} else if !errors.Is(err, internal.ErrNotFound) {
				return err
			}

			generated := password == ""
			if generated {
				secret, err := security.RandomSecret(8)
				if err != nil {
					return err
				}
				password = secret
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			now := a.now()
			user.Id = utility.NewUUID()
			user.Password = hash
			user.Active = true
			user.CreatedAt = now
			user.UpdatedAt = now
			if err = a.db.AddUser(&user); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "user %s added with id %s\n", user.Email, user.Id)
			if generated {
				fmt.Fprintf(a.out, "password: %s\n", password)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&user.Name, "name", "n", "", "full name")
	flags.StringVarP(&user.MerchantId, "merchant", "m", "", "merchant id")
	flags.StringVarP(&role, "role", "r", string(models.RoleMerchant), "admin, merchant or developer")
	flags.StringVarP(&password, "password", "p", "", "initial password; generated when empty")
	return cmd
}

func (a *app) apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage merchant api keys",
	}
	cmd.AddCommand(a.apiKeyCreateCmd())
	return cmd
}

func (a *app) apiKeyCreateCmd() *cobra.Command {
	var name string
	var validFor time.Duration
	var permissions []string
	cmd := &cobra.Command{
		Use:   "create [merchant-id]",
		Short: "Issue an api key; the key is printed once and only its hash is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			merchant, err := a.db.GetMerchant(args[0])
			if err != nil {
				return fmt.Errorf("merchant %s: %w", args[0], err)
			}
			plain, hash, prefix, err := security.NewApiKey()
			if err != nil {
				return err
			}
			now := a.now()
			key := &models.ApiKey{
				Id:          utility.NewUUID(),
				MerchantId:  merchant.Id,
				Name:        name,
				Hash:        hash,
				Prefix:      prefix,
				Permissions: permissions,
				Active:      true,
				CreatedAt:   now,
			}
			if validFor > 0 {
				expiresAt := now.Add(validFor)
				key.ExpiresAt = &expiresAt
			}
			if err = a.db.AddApiKey(key); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "api key %s created for %s\n", key.Id, merchant.Name)
			fmt.Fprintf(a.out, "key: %s\n", plain)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&name, "name", "n", "default", "label of the key")
	flags.DurationVar(&validFor, "valid-for", 0, "expiry after issue, 0 never expires")
	flags.StringSliceVar(&permissions, "permission", nil, "permissions granted to the key")
	return cmd
}
