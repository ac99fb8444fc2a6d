package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/medbox/dispenser/config"
	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/infra/logger"
	"github.com/medbox/dispenser/infra/store"
)

var (
	dispenseMagazine int
	dispenseAmount   int
)

// dispenseCmd enqueues an ad-hoc command. A running engine picks it up on
// the next poll of its command watch; otherwise the startup replay does.
var dispenseCmd = &cobra.Command{
	Use:   "dispense",
	Short: "Queue an immediate dispense command",
	RunE:  queueDispense,
}

func init() {
	dispenseCmd.Flags().IntVarP(&dispenseMagazine, "magazine", "m", 1, "magazine slot id")
	dispenseCmd.Flags().IntVarP(&dispenseAmount, "amount", "n", 1, "number of pills")
	rootCmd.AddCommand(dispenseCmd)
}

func queueDispense(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("dispense-command")
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logg.Errorf("store close: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mags, err := db.Magazines().List(ctx)
	if err != nil {
		return fmt.Errorf("list magazines: %w", err)
	}
	name := ""
	for _, m := range mags {
		if m.ID == dispenseMagazine {
			name = m.Name
			break
		}
	}
	if name == "" && len(mags) > 0 {
		return fmt.Errorf("unknown magazine slot %d", dispenseMagazine)
	}

	adhoc := model.AdHocCommand{
		ID:        uuid.NewString(),
		Items:     []model.PlanItem{{MagazineID: dispenseMagazine, MagazineName: name, Amount: dispenseAmount}},
		CreatedAt: time.Now(),
		Requester: "cli",
	}
	if err := db.Commands().Add(ctx, adhoc); err != nil {
		return fmt.Errorf("queue command: %w", err)
	}
	logg.Infof("queued command %s: %d pill(s) from magazine %d", adhoc.ID, dispenseAmount, dispenseMagazine)
	return nil
}
