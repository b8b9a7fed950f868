package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lockplane/initplane/internal/dbconn"
	"github.com/lockplane/initplane/internal/inventory"
	"github.com/lockplane/initplane/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run only the post-migration integrity check",
	Long: `Verify that the migration ledger and the required core tables exist,
with the same bounded retry policy a full run uses. Exits non-zero when the
check fails.`,
	RunE: runVerify,
}

var (
	verifyDB          string
	verifyEnvironment string
	verifyVerbose     bool
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyDB, "db", "", "Database connection string (overrides environment selection)")
	verifyCmd.Flags().StringVar(&verifyEnvironment, "environment", "", "Named environment from initplane.toml")
	verifyCmd.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "Enable debug logging")
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger(verifyVerbose)

	cfg, connStr, _, err := resolveTarget(verifyDB, verifyEnvironment)
	if err != nil {
		return err
	}

	db, engine, err := dbconn.Open(connStr)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	introspector, err := dbconn.NewIntrospector(engine)
	if err != nil {
		return err
	}

	oc := cfg.Orchestrator
	verifier := &verify.Verifier{
		Inventory: &inventory.Reader{
			DB:           db,
			Introspector: introspector,
			LedgerTable:  oc.LedgerTable,
			LedgerColumn: oc.LedgerColumn,
		},
		CoreTables:    oc.CoreTables,
		MinCoreTables: oc.VerifyMinCoreTables,
		MaxAttempts:   oc.VerifyMaxAttempts,
		Delay:         oc.VerifyDelay(),
		Logger:        logger,
	}

	return verifier.Verify(cmd.Context())
}
