package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/medbox/dispenser/config"
	"github.com/medbox/dispenser/core/model"
	corestore "github.com/medbox/dispenser/core/store"
	"github.com/medbox/dispenser/infra/logger"
	"github.com/medbox/dispenser/infra/store"
	"github.com/medbox/dispenser/pkg/export"
)

var (
	historyFormat string
	historySince  time.Duration
	historyOrigin string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Export the dispense audit trail",
	RunE:  exportHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "csv", "output format: csv or json")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only records newer than this age")
	historyCmd.Flags().StringVar(&historyOrigin, "origin", "", "filter by origin: MANUAL or SCHEDULED")
	rootCmd.AddCommand(historyCmd)
}

func exportHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.New("history-command").Errorf("store close: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := corestore.HistoryQuery{Origin: model.Origin(historyOrigin)}
	if historySince > 0 {
		q.Start = time.Now().Add(-historySince)
	}
	recs, err := db.History().Query(ctx, q)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	switch historyFormat {
	case "json":
		return export.WriteJSON(os.Stdout, recs)
	case "csv":
		return export.WriteCSV(os.Stdout, recs)
	default:
		return fmt.Errorf("unknown format %q", historyFormat)
	}
}
