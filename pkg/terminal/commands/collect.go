package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
)

type CollectCmd struct {
	reportID  string
	subjectID string
	phase     string
	load      AppLoader
	reporter  *export.Reporter
}

func NewCollectCmd(load AppLoader, reporter *export.Reporter) *cobra.Command {
	cc := &CollectCmd{load: load, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection phase for a subject outside the report workflow",
		RunE:  cc.run,
	}

	cmd.Flags().StringVar(&cc.reportID, "report", "", "Report the readings are tagged with (empty for a trend-only pull)")
	cmd.Flags().StringVar(&cc.subjectID, "subject", "", "Subject to collect")
	cmd.Flags().StringVar(&cc.phase, "phase", string(domain.PhasePublic), "Phase to run (public or private)")

	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func (cc *CollectCmd) run(cmd *cobra.Command, _ []string) error {
	phase := domain.Phase(cc.phase)
	if !phase.Valid() {
		return fmt.Errorf("unsupported phase %q. Supported phases: %s, %s", cc.phase, domain.PhasePublic, domain.PhasePrivate)
	}

	ctx := cmd.Context()
	a, err := cc.load(ctx)
	if err != nil {
		return err
	}

	res, err := a.Collector.Collect(ctx, cc.reportID, cc.subjectID, phase)
	if err != nil {
		return fmt.Errorf("failed to collect: %w", err)
	}
	return cc.reporter.Collect(res)
}

func NewKPIsCmd(reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "kpis",
		Short: "List the KPIs a report computes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return reporter.Registry(kpi.DefaultRegistry().Definitions())
		},
	}
}
