package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/invitarr/invitarr-server/internal/interaction"
)

func init() {
	rootCmd.AddCommand(
		vendorsCmd(),
		serversCmd(),
		invitationsCmd(),
		redemptionsCmd(),
		sweepCmd(),
		validateStepConfigCmd(),
	)
}

func vendorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List supported vendors and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			return call(os.Stdout, req, "GET", "/api/v1/admin/vendors")
		},
	}
}

func serversCmd() *cobra.Command {
	serversCmd := &cobra.Command{Use: "servers", Short: "Media server operations"}

	serversCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered media servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			return call(os.Stdout, req, "GET", "/api/v1/admin/servers")
		},
	})

	var name, vendor, url, credential string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a media server",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context()).
				SetBody(map[string]string{
					"name":       name,
					"type":       vendor,
					"url":        url,
					"credential": credential,
				})
			return call(os.Stdout, req, "POST", "/api/v1/admin/servers")
		},
	}
	createCmd.Flags().StringVarP(&name, "name", "n", "", "Display name (required)")
	createCmd.Flags().StringVarP(&vendor, "vendor", "v", "", "Vendor type: jellyfin or plex (required)")
	createCmd.Flags().StringVarP(&url, "url", "u", "", "Server base URL (required)")
	createCmd.Flags().StringVarP(&credential, "credential", "c", "", "API key or token (required)")
	for _, f := range []string{"name", "vendor", "url", "credential"} {
		_ = createCmd.MarkFlagRequired(f)
	}
	serversCmd.AddCommand(createCmd)

	serversCmd.AddCommand(&cobra.Command{
		Use:   "sync-libraries SERVER_ID",
		Short: "Refresh the library cache from the vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			return call(os.Stdout, req, "POST", "/api/v1/admin/servers/"+args[0]+"/libraries/sync")
		},
	})

	return serversCmd
}

func invitationsCmd() *cobra.Command {
	invitationsCmd := &cobra.Command{Use: "invitations", Short: "Invitation operations"}

	var (
		code         string
		servers      []string
		libraries    []string
		preWizard    string
		postWizard   string
		maxUses      int
		expiresIn    time.Duration
		accessFor    time.Duration
		allowDown    bool
		allowLive    bool
		allowUploads bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invitation",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"server_ids": servers,
				"permissions": map[string]bool{
					"allow_downloads":      allowDown,
					"allow_live_tv":        allowLive,
					"allow_mobile_uploads": allowUploads,
				},
			}
			if code != "" {
				body["code"] = code
			}
			if len(libraries) > 0 {
				body["library_ids"] = libraries
			}
			if preWizard != "" {
				body["pre_wizard_id"] = preWizard
			}
			if postWizard != "" {
				body["post_wizard_id"] = postWizard
			}
			if maxUses > 0 {
				body["max_uses"] = maxUses
			}
			if expiresIn > 0 {
				body["expires_at"] = time.Now().Add(expiresIn).UTC().Format(time.RFC3339)
			}
			if accessFor > 0 {
				body["access_duration_seconds"] = int64(accessFor / time.Second)
			}
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context()).SetBody(body)
			return call(os.Stdout, req, "POST", "/api/v1/admin/invitations")
		},
	}
	createCmd.Flags().StringVar(&code, "code", "", "Invitation code (generated when empty)")
	createCmd.Flags().StringSliceVarP(&servers, "server", "s", nil, "Target server ID, repeatable (required)")
	createCmd.Flags().StringSliceVar(&libraries, "library", nil, "Library ID to grant, repeatable; all when omitted")
	createCmd.Flags().StringVar(&preWizard, "pre-wizard", "", "Wizard completed before accounts are created")
	createCmd.Flags().StringVar(&postWizard, "post-wizard", "", "Wizard shown after accounts are created")
	createCmd.Flags().IntVar(&maxUses, "max-uses", 0, "Maximum redemptions; unlimited when 0")
	createCmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Invitation lifetime")
	createCmd.Flags().DurationVar(&accessFor, "access-for", 0, "Account lifetime after redemption")
	createCmd.Flags().BoolVar(&allowDown, "allow-downloads", false, "Allow downloads")
	createCmd.Flags().BoolVar(&allowLive, "allow-live-tv", false, "Allow live TV")
	createCmd.Flags().BoolVar(&allowUploads, "allow-mobile-uploads", false, "Allow camera uploads from mobile")
	_ = createCmd.MarkFlagRequired("server")
	invitationsCmd.AddCommand(createCmd)

	invitationsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			return call(os.Stdout, req, "GET", "/api/v1/admin/invitations")
		},
	})

	invitationsCmd.AddCommand(&cobra.Command{
		Use:   "check CODE",
		Short: "Check whether a code can be redeemed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, "").R().SetContext(cmd.Context())
			return call(os.Stdout, req, "GET", "/api/v1/invitations/"+args[0])
		},
	})

	invitationsCmd.AddCommand(&cobra.Command{
		Use:   "disable INVITATION_ID",
		Short: "Disable an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			return call(os.Stdout, req, "POST", "/api/v1/admin/invitations/"+args[0]+"/disable")
		},
	})

	return invitationsCmd
}

func redemptionsCmd() *cobra.Command {
	redemptionsCmd := &cobra.Command{Use: "redemptions", Short: "Redemption operations"}

	var states []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List redemptions, optionally by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			if len(states) > 0 {
				req.SetQueryParam("state", strings.Join(states, ","))
			}
			return call(os.Stdout, req, "GET", "/api/v1/admin/redemptions")
		},
	}
	listCmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state, repeatable")
	redemptionsCmd.AddCommand(listCmd)

	var password string
	retryCmd := &cobra.Command{
		Use:   "retry REDEMPTION_ID SERVER_ID",
		Short: "Retry account creation on a failed server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context()).
				SetBody(map[string]string{"password": password})
			return call(os.Stdout, req, "POST", fmt.Sprintf("/api/v1/admin/redemptions/%s/servers/%s/retry", args[0], args[1]))
		},
	}
	retryCmd.Flags().StringVarP(&password, "password", "p", "", "Password for the new account (required)")
	_ = retryCmd.MarkFlagRequired("password")
	redemptionsCmd.AddCommand(retryCmd)

	return redemptionsCmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run an expiration sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient(apiFlag, tokenFlag).R().SetContext(cmd.Context())
			return call(os.Stdout, req, "POST", "/api/v1/admin/sweep")
		},
	}
}

// validateStepConfigCmd checks a step configuration locally, without a server.
func validateStepConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-step-config TYPE CONFIG_JSON",
		Short: "Validate and canonicalize a wizard step configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			canonical, err := interaction.DefaultRegistry().CanonicalConfig(args[0], json.RawMessage(args[1]))
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, canonical)
		},
	}
}
