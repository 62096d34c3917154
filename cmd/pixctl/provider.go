package main

import (
	"fmt"
	"pixgate/models"
	"pixgate/utility"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

var ispbPattern = regexp.MustCompile(`^\d{8}$`)

func (a *app) providerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage bank providers",
	}
	cmd.AddCommand(a.providerAddCmd())
	cmd.AddCommand(a.providerListCmd())
	return cmd
}

func (a *app) providerAddCmd() *cobra.Command {
	var provider models.Provider
	var providerType string
	cmd := &cobra.Command{
		Use:   "add [code]",
		Short: "Register a bank provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			provider.Code = strings.ToLower(args[0])
			provider.Type = models.ProviderType(providerType)
			if provider.Name == "" {
				provider.Name = strings.ToUpper(provider.Code)
			}
			if provider.ISPB != "" && !ispbPattern.MatchString(provider.ISPB) {
				return utility.Errf("ispb must have 8 digits, got %q", provider.ISPB)
			}
			if _, err := a.db.GetProviderByCode(provider.Code); err == nil {
				return utility.Errf("provider %s already exists", provider.Code)
			}
			now := a.now()
			provider.Id = utility.NewUUID()
			provider.Active = true
			provider.HealthStatus = models.HealthUnknown
			provider.CreatedAt = now
			provider.UpdatedAt = now
			if err := a.db.AddProvider(&provider); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "provider %s added with id %s\n", provider.Code, provider.Id)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&provider.Name, "name", "n", "", "display name")
	flags.StringVar(&provider.ISPB, "ispb", "", "8-digit ISPB of the institution")
	flags.StringVarP(&providerType, "type", "t", string(models.ProviderTypeBank), "bank, digital_bank, cooperative, fintech or psp")
	flags.IntVarP(&provider.Priority, "priority", "p", 10, "lower values are tried first")
	flags.StringVar(&provider.Config.BaseURL, "base-url", "", "api base url")
	flags.StringVar(&provider.Config.AuthURL, "auth-url", "", "oauth token url")
	flags.IntVar(&provider.Config.Timeout, "timeout", 30, "request timeout in seconds")
	flags.IntVar(&provider.Config.MaxRetries, "max-retries", 3, "retries of transient failures")
	flags.BoolVar(&provider.Config.RequiresMTLS, "mtls", false, "provider requires a client certificate")
	return cmd
}

func (a *app) providerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bank providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			list, err := a.db.GetProviders()
			if err != nil {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "CODE\tNAME\tISPB\tPRIORITY\tACTIVE\tHEALTH\tCHECKED")
			for _, p := range list {
				checked := "never"
				if p.LastHealthAt != nil {
					checked = utility.TimeAgo(*p.LastHealthAt)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", p.Code, p.Name, p.ISPB, p.Priority, boolText(p.Active), p.HealthStatus, checked)
			}
			return w.Flush()
		},
	}
}
