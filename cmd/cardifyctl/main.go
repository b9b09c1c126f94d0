package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload" // Automatically load .env file if present
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/spf13/cobra"
)

const programName = "cardifyctl"

// app holds what the subcommands share. Connections are opened on first use
// so commands that only touch the database work without chain settings.
type app struct {
	cfg     *config.Config
	verbose bool

	db       services.DBService
	client   chain.Client
	services *server.Services
}

func (a *app) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) database() (services.DBService, error) {
	if a.db == nil {
		db, err := server.OpenDatabase(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
	}
	return a.db, nil
}

// chainServices wires the full service graph, which needs the operator client
func (a *app) chainServices(ctx context.Context) (*server.Services, error) {
	if a.services != nil {
		return a.services, nil
	}
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	if a.client == nil {
		client, err := server.DialChain(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.client = client
	}
	svc, err := server.Bootstrap(db.GetDB(), a.client, server.FactoryAddresses(a.cfg), a.cfg)
	if err != nil {
		return nil, err
	}
	a.services = svc
	return svc, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Operate a Cardify deployment: reconcile attempts, verify codes and manage credits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !a.verbose {
				log.SetOutput(io.Discard)
			}
			return a.loadConfig()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable log output")

	rootCmd.AddCommand(
		reconcileCommand(a),
		verifyCommand(a),
		creditsCommand(a),
	)
	return rootCmd
}

func main() {
	a := &app{}
	defer a.close()

	if err := newRootCommand(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		a.close()
		os.Exit(1)
	}
}
