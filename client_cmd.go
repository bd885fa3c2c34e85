package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/services"
	"github.com/go-authgate/wpgate/internal/store"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage registered OAuth2 clients",
	}
	cmd.AddCommand(newClientRegisterCmd(), newClientListCmd(), newClientDeleteCmd())
	return cmd
}

type registerOptions struct {
	id           string
	name         string
	secret       string
	redirectURIs []string
	public       bool
}

func newClientRegisterCmd() *cobra.Command {
	var opts registerOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a client or replace an existing registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClientService(func(clients *services.ClientService) error {
				resp, err := clients.Register(commandContext(cmd), services.RegisterClientRequest{
					ClientID:     opts.id,
					ClientSecret: opts.secret,
					Name:         opts.name,
					RedirectURIs: opts.redirectURIs,
					Public:       opts.public,
				})
				if err != nil {
					return err
				}
				printRegistration(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.id, "id", "", "client_id (generated when empty)")
	flags.StringVar(&opts.name, "name", "", "display name shown on the consent page")
	flags.StringVar(&opts.secret, "secret", "", "client secret for confidential clients (generated when empty)")
	flags.StringSliceVar(&opts.redirectURIs, "redirect-uri", nil, "allowed redirect URI (repeatable)")
	flags.BoolVar(&opts.public, "public", false, "register a public client (PKCE, no secret)")
	_ = cmd.MarkFlagRequired("redirect-uri")
	return cmd
}

func newClientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClientService(func(clients *services.ClientService) error {
				list, err := clients.ListClients()
				if err != nil {
					return err
				}
				return renderClientTable(cmd.OutOrStdout(), list)
			})
		},
	}
}

func newClientDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete CLIENT_ID",
		Short: "Delete a registered client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClientService(func(clients *services.ClientService) error {
				if _, err := clients.Lookup(commandContext(cmd), args[0]); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				if err := clients.DeleteClient(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted client %s\n", args[0])
				return nil
			})
		},
	}
}

// withClientService opens the client registry for a one-shot CLI command.
func withClientService(fn func(clients *services.ClientService) error) error {
	return withLogger(func(cfg *config.Config, log *zap.Logger) error {
		db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		return fn(services.NewClientService(db, log))
	})
}

func printRegistration(w io.Writer, resp *services.ClientResponse) {
	fmt.Fprintf(w, "client_id:     %s\n", resp.ClientID)
	fmt.Fprintf(w, "name:          %s\n", resp.Name)
	for _, uri := range resp.RedirectURIList() {
		fmt.Fprintf(w, "redirect_uri:  %s\n", uri)
	}
	if resp.ClientSecretPlain != "" {
		fmt.Fprintf(w, "client_secret: %s\n", resp.ClientSecretPlain)
		fmt.Fprintln(w, "Store the secret now; only its hash is kept.")
	} else {
		fmt.Fprintln(w, "type:          public (PKCE required)")
	}
}

func renderClientTable(w io.Writer, list []models.Client) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No clients are registered.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader([]string{"Client ID", "Name", "Type", "Redirect URIs"}),
		tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
	)
	for _, c := range list {
		kind := "confidential"
		if c.IsPublic() {
			kind = "public"
		}
		if err := table.Append([]string{
			c.ClientID,
			c.Name,
			kind,
			strings.Join(c.RedirectURIList(), "\n"),
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
