package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Terasay/viau-sub000/internal/catalog"
	cl "github.com/Terasay/viau-sub000/internal/cli"
	"github.com/Terasay/viau-sub000/internal/config"

	"github.com/spf13/cobra"
)

// options are resolved flag > environment > saved profile.
type options struct {
	apiBase    string
	nationID   string
	adminToken string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	opts := &options{}

	root := &cobra.Command{
		Use:          "techtree",
		Short:        "Technology research client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd, cfg)
		},
	}
	root.PersistentFlags().StringVar(&opts.apiBase, "api", cfg.APIBaseURL, "research API base URL")
	root.PersistentFlags().StringVar(&opts.nationID, "nation", cfg.NationID, "nation id")
	root.PersistentFlags().StringVar(&opts.adminToken, "admin-token", cfg.AdminToken, "admin bearer token")

	root.AddCommand(
		newCategoriesCmd(opts),
		newTechCmd(opts),
		newTreeCmd(opts),
		newPreviewCmd(opts),
		newResearchCmd(opts),
		newProgressCmd(opts),
		newNationCmd(opts),
		newCatalogCmd(),
		newProfileCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) resolve(cmd *cobra.Command, cfg config.CLIConfig) error {
	profile, err := cl.LoadProfile()
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("api") && os.Getenv("TECHTREE_API_BASE_URL") == "" && profile.APIBaseURL != "" {
		o.apiBase = profile.APIBaseURL
	}
	if !flags.Changed("nation") && cfg.NationID == "" {
		o.nationID = profile.NationID
	}
	if !flags.Changed("admin-token") && cfg.AdminToken == "" {
		o.adminToken = profile.AdminToken
	}
	return nil
}

func (o *options) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(o.apiBase), "/"), o.adminToken)
}

func (o *options) nation(args []string, idx int) (string, error) {
	if len(args) > idx && strings.TrimSpace(args[idx]) != "" {
		return strings.TrimSpace(args[idx]), nil
	}
	if o.nationID != "" {
		return o.nationID, nil
	}
	return "", errors.New("nation id required: pass --nation, set TECHTREE_NATION or run `techtree profile save`")
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newCategoriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List technology categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			rows, err := opts.client().Categories(ctx)
			if err != nil {
				return err
			}
			renderCategories(rows)
			return nil
		},
	}
}

func newTechCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tech <tech_id>",
		Short: "Show one technology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			t, err := opts.client().Technology(ctx, args[0])
			if err != nil {
				return err
			}
			renderTechnology(t)
			return nil
		},
	}
}

func newTreeCmd(opts *options) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "tree <category>",
		Short: "Show the visible technology tree of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nationID, err := opts.nation(nil, 0)
			if err != nil {
				return err
			}
			if reveal && opts.adminToken == "" {
				printWarn("--reveal needs an admin token; showing the normal view.")
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			tree, err := opts.client().Tree(ctx, nationID, args[0], reveal)
			if err != nil {
				return err
			}
			fmt.Print(formatTree(tree))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "include hidden technologies (admin)")
	return cmd
}

func newPreviewCmd(opts *options) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "preview <category> [tech_id...]",
		Short: "Show a category as if the given technologies were researched",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			tree, err := opts.client().Preview(ctx, args[0], args[1:], reveal)
			if err != nil {
				return err
			}
			fmt.Print(formatTree(tree))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "include hidden technologies (admin)")
	return cmd
}

func newResearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "research <tech_id>",
		Short: "Spend research points on a technology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nationID, err := opts.nation(nil, 0)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := opts.client().Research(ctx, nationID, args[0])
			if err != nil {
				var apiErr *cl.APIError
				if errors.As(err, &apiErr) && apiErr.Kind == "insufficient_research_points" {
					printError(fmt.Sprintf("Not enough research points: need %s, have %s.", comma(apiErr.Required), comma(apiErr.Available)))
					return err
				}
				if errors.As(err, &apiErr) && apiErr.Kind == "already_researched" {
					printWarn(fmt.Sprintf("%s is already researched.", args[0]))
					return nil
				}
				return err
			}
			renderCommit(args[0], res)
			return nil
		},
	}
}

func newProgressCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "List researched technologies in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			nationID, err := opts.nation(nil, 0)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			records, err := opts.client().Progress(ctx, nationID)
			if err != nil {
				return err
			}
			renderProgress(records)
			return nil
		},
	}
}

func newNationCmd(opts *options) *cobra.Command {
	nation := &cobra.Command{
		Use:   "nation",
		Short: "Nation commands",
	}

	var points int64
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a nation (admin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = strings.TrimSpace(args[0])
			}
			if name == "" {
				var err error
				if name, err = promptRequired("Nation name"); err != nil {
					return err
				}
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			n, err := opts.client().CreateNation(ctx, name, points)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Nation %s created.", n.Name))
			renderNation(n)
			return nil
		},
	}
	create.Flags().Int64Var(&points, "points", 0, "starting research points")

	show := &cobra.Command{
		Use:   "show [nation_id]",
		Short: "Show a nation's balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nationID, err := opts.nation(args, 0)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			n, err := opts.client().Nation(ctx, nationID)
			if err != nil {
				return err
			}
			renderNation(n)
			return nil
		},
	}

	grant := &cobra.Command{
		Use:   "grant <amount>",
		Short: "Credit research points to a nation (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer")
			}
			nationID, err := opts.nation(nil, 0)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			balance, err := opts.client().GrantPoints(ctx, nationID, amount)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Granted %s points. Balance: %s.", comma(amount), comma(balance)))
			return nil
		},
	}

	nation.AddCommand(create, show, grant)
	return nation
}

func newCatalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Offline catalog tools",
	}
	cat.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Validate a catalog file, or the built-in one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				c   *catalog.Catalog
				err error
			)
			if len(args) == 1 {
				c, err = catalog.LoadFile(args[0])
			} else {
				c, err = catalog.Default()
			}
			if err != nil {
				printError("Catalog is invalid.")
				return err
			}
			printSuccess(fmt.Sprintf("Catalog OK: %d technologies.", c.Len()))
			renderCategories(c.Summaries())
			return nil
		},
	})
	return cat
}

func newProfileCmd(opts *options) *cobra.Command {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved CLI defaults",
	}
	profile.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the current --api, --nation and --admin-token values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.SaveProfile(cl.Profile{
				APIBaseURL: opts.apiBase,
				NationID:   opts.nationID,
				AdminToken: opts.adminToken,
			}); err != nil {
				return err
			}
			path, _ := cl.ProfilePath()
			printSuccess("Profile saved to " + path)
			return nil
		},
	})
	profile.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearProfile(); err != nil {
				return err
			}
			printSuccess("Profile cleared.")
			return nil
		},
	})
	return profile
}
