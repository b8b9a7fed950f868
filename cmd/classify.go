package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockplane/initplane/internal/classify"
	"github.com/lockplane/initplane/internal/dbconn"
	"github.com/lockplane/initplane/internal/inventory"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a database's schema state without changing anything",
	Long: `Read the schema inventory and print the classification and the strategy a
run would select, as JSON on stdout. Strictly read-only: no remediation, no
tool invocation, no ledger changes.`,
	Example: `  # Classify the default environment
  initplane classify

  # Classify an explicit database
  initplane classify --db ./app.db`,
	RunE: runClassify,
}

var (
	classifyDB          string
	classifyEnvironment string
	classifyVerbose     bool
)

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&classifyDB, "db", "", "Database connection string (overrides environment selection)")
	classifyCmd.Flags().StringVar(&classifyEnvironment, "environment", "", "Named environment from initplane.toml")
	classifyCmd.Flags().BoolVarP(&classifyVerbose, "verbose", "v", false, "Enable debug logging")
}

// classifyOutput is the JSON document printed on stdout.
type classifyOutput struct {
	Engine            string            `json:"engine"`
	HasLedger         bool              `json:"has_ledger"`
	LedgerRevisions   []string          `json:"ledger_revisions"`
	AllTables         []string          `json:"all_tables"`
	ApplicationTables []string          `json:"application_tables"`
	CorePresent       int               `json:"core_tables_present"`
	State             classify.State    `json:"state"`
	StaleLedger       bool              `json:"stale_ledger"`
	Strategy          classify.Strategy `json:"strategy"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, connStr, _, err := resolveTarget(classifyDB, classifyEnvironment)
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
	reader := &inventory.Reader{
		DB:           db,
		Introspector: introspector,
		LedgerTable:  oc.LedgerTable,
		LedgerColumn: oc.LedgerColumn,
	}
	policy := classify.Policy{
		CoreTables:        oc.CoreTables,
		MigratedThreshold: oc.MigratedThreshold,
	}

	inv, err := reader.Read(cmd.Context())
	if err != nil {
		// Introspection failure is itself a classifiable state
		newLogger(classifyVerbose).Warn("introspection failed, classifying as unknown", "error", err)
		inv = nil
	}
	classification := classify.Classify(inv, policy)

	out := classifyOutput{
		Engine:      string(engine),
		State:       classification.State,
		StaleLedger: classification.StaleLedger,
		CorePresent: classification.CorePresent,
		Strategy:    classify.SelectStrategy(classification.State),
	}
	if inv != nil {
		out.HasLedger = inv.HasLedger
		out.LedgerRevisions = inv.LedgerRevisions
		out.AllTables = inv.AllTables
		out.ApplicationTables = inv.ApplicationTableNames()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
