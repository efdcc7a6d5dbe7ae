package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/restaurant-platform/courierbroker/app"
	"github.com/restaurant-platform/courierbroker/config"
	"github.com/restaurant-platform/courierbroker/core/model"
)

var selectFlags struct {
	companyID string
	branchID  string
	orderID   string
	lat       float64
	lon       float64
	value     float64
	urgent    bool
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Run one vendor selection and print the result",
	RunE:  runSelect,
}

func init() {
	selectCmd.Flags().StringVar(&selectFlags.companyID, "company", "", "company id")
	selectCmd.Flags().StringVar(&selectFlags.branchID, "branch", "", "branch id")
	selectCmd.Flags().StringVar(&selectFlags.orderID, "order", "", "order id")
	selectCmd.Flags().Float64Var(&selectFlags.lat, "lat", 0, "customer latitude")
	selectCmd.Flags().Float64Var(&selectFlags.lon, "lon", 0, "customer longitude")
	selectCmd.Flags().Float64Var(&selectFlags.value, "value", 0, "order value")
	selectCmd.Flags().BoolVar(&selectFlags.urgent, "urgent", false, "urgent delivery")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The one-shot command never opens the MQTT side.
	cfg.MQTT.Enabled = false
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err := svc.Selector.SelectOptimalVendor(ctx, model.SelectionCriteria{
		CompanyID:        selectFlags.companyID,
		BranchID:         selectFlags.branchID,
		OrderID:          selectFlags.orderID,
		CustomerLocation: model.Coordinates{Latitude: selectFlags.lat, Longitude: selectFlags.lon},
		OrderValue:       selectFlags.value,
		Urgent:           selectFlags.urgent,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
