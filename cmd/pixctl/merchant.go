package main

import (
	"fmt"
	"net/url"
	"os"
	"pixgate/models"
	"pixgate/utility"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) merchantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchant",
		Short: "Manage merchants and their bank accounts",
	}
	cmd.AddCommand(a.merchantAddCmd())
	cmd.AddCommand(a.merchantListCmd())
	cmd.AddCommand(a.attachProviderCmd())
	return cmd
}

func (a *app) merchantAddCmd() *cobra.Command {
	var merchant models.Merchant
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Register a merchant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			merchant.Name = strings.TrimSpace(args[0])
			if merchant.Name == "" {
				return utility.Err("merchant name is required")
			}
			if merchant.Document != "" {
				if err := validateDocument(merchant.Document); err != nil {
					return err
				}
			}
			if merchant.WebhookURL != "" {
				if target, err := url.Parse(merchant.WebhookURL); err != nil || target.Host == "" {
					return utility.Errf("webhook url %q is not an absolute address", merchant.WebhookURL)
				}
			}
			now := a.now()
			merchant.Id = utility.NewUUID()
			merchant.Active = true
			merchant.CreatedAt = now
			merchant.UpdatedAt = now
			if err := a.db.AddMerchant(&merchant); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "merchant %s added with id %s\n", merchant.Name, merchant.Id)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&merchant.Document, "document", "d", "", "CPF or CNPJ, digits only")
	flags.StringVarP(&merchant.Email, "email", "e", "", "contact e-mail")
	flags.StringVar(&merchant.Phone, "phone", "", "contact phone")
	flags.StringVar(&merchant.WebhookURL, "webhook-url", "", "default webhook address")
	flags.StringSliceVar(&merchant.IPWhitelist, "allow-ip", nil, "addresses allowed to use the merchant api keys")
	return cmd
}

// validateDocument accepts a CPF or a CNPJ by length
func validateDocument(document string) error {
	keyType := models.PixKeyTypeCPF
	if len(document) == 14 {
		keyType = models.PixKeyTypeCNPJ
	}
	if err := models.ValidatePixKey(document, keyType); err != nil {
		return utility.Errf("invalid document: %s", err)
	}
	return nil
}

func (a *app) merchantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List merchants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			list, err := a.db.GetMerchants()
			if err != nil {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tNAME\tDOCUMENT\tACTIVE\tPROVIDERS")
			for _, m := range list {
				accounts, err := a.db.GetMerchantProviders(m.Id)
				if err != nil {
					return err
				}
				codes := make([]string, 0, len(accounts))
				for _, account := range accounts {
					codes = append(codes, account.ProviderCode)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Id, m.Name, m.Document, boolText(m.Active), strings.Join(codes, ","))
			}
			return w.Flush()
		},
	}
}

type attachOptions struct {
	clientId     string
	clientSecret string
	certFile     string
	keyFile      string
	pixKeyType   string
}

func (a *app) attachProviderCmd() *cobra.Command {
	var opts attachOptions
	var account models.MerchantProvider
	cmd := &cobra.Command{
		Use:   "attach-provider [merchant-id] [provider-code]",
		Short: "Bind a merchant to a provider account; credentials are stored encrypted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			encryptor, err := a.secrets()
			if err != nil {
				return err
			}
			merchant, err := a.db.GetMerchant(args[0])
			if err != nil {
				return fmt.Errorf("merchant %s: %w", args[0], err)
			}
			provider, err := a.db.GetProviderByCode(strings.ToLower(args[1]))
			if err != nil {
				return fmt.Errorf("provider %s: %w", args[1], err)
			}
			if opts.clientId == "" || opts.clientSecret == "" {
				return utility.Err("client id and client secret are required")
			}
			if account.PixKey != "" {
				account.PixKeyType = models.PixKeyType(opts.pixKeyType)
				if err = models.ValidatePixKey(account.PixKey, account.PixKeyType); err != nil {
					return err
				}
			}

			sealed := map[*string]string{
				&account.ClientId:     opts.clientId,
				&account.ClientSecret: opts.clientSecret,
			}
			for target, file := range map[*string]string{&account.CertificateData: opts.certFile, &account.PrivateKeyData: opts.keyFile} {
				if file == "" {
					continue
				}
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				sealed[target] = string(data)
			}
			for target, value := range sealed {
				if *target, err = encryptor.Encrypt(value); err != nil {
					return err
				}
			}

			now := a.now()
			account.Id = utility.NewUUID()
			account.MerchantId = merchant.Id
			account.ProviderId = provider.Id
			account.ProviderCode = provider.Code
			account.Active = true
			account.CreatedAt = now
			account.UpdatedAt = now
			if err = a.db.AddMerchantProvider(&account); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "merchant %s attached to %s (account %s)\n", merchant.Name, provider.Code, account.Id)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.clientId, "client-id", "", "oauth client id issued by the bank")
	flags.StringVar(&opts.clientSecret, "client-secret", "", "oauth client secret issued by the bank")
	flags.StringVar(&opts.certFile, "cert-file", "", "client certificate for mTLS")
	flags.StringVar(&opts.keyFile, "key-file", "", "client certificate key for mTLS")
	flags.StringVar(&account.AccountAgency, "agency", "", "account agency")
	flags.StringVar(&account.AccountNumber, "account", "", "account number")
	flags.StringVar(&account.AccountType, "account-type", "checking", "account type")
	flags.StringVar(&account.PixKey, "pix-key", "", "pix key receiving qr code payments")
	flags.StringVar(&opts.pixKeyType, "pix-key-type", string(models.PixKeyTypeRandom), "cpf, cnpj, email, phone or random")
	return cmd
}
