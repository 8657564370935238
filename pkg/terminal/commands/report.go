package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/runtime/app"
	"github.com/de-tools/market-atlas/pkg/runtime/terminal/export"
)

type SubmitCmd struct {
	ownerID     string
	ownerName   string
	ownerSite   string
	competitors []string
	start       bool
	timeout     time.Duration
	load        AppLoader
	reporter    *export.Reporter
}

func NewSubmitCmd(load AppLoader, reporter *export.Reporter) *cobra.Command {
	sc := &SubmitCmd{load: load, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a KPI report for an owner and its competitors",
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.ownerID, "owner", "", "Owner id")
	cmd.Flags().StringVar(&sc.ownerName, "name", "", "Owner display name (defaults to the site host)")
	cmd.Flags().StringVar(&sc.ownerSite, "site", "", "Owner website")
	cmd.Flags().StringArrayVar(&sc.competitors, "competitor", nil,
		"Competitor as site[,twitter[,instagram[,facebook]]]; repeatable")
	cmd.Flags().BoolVar(&sc.start, "start", false, "Start the report and wait for it to finish")
	cmd.Flags().DurationVar(&sc.timeout, "timeout", 10*time.Minute, "How long to wait with --start")

	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

// ParseCompetitor reads "site,twitter,instagram,facebook"; trailing parts are optional.
func ParseCompetitor(raw string) domain.CompetitorInput {
	fields := []domain.Field{domain.FieldWebsite, domain.FieldTwitter, domain.FieldInstagram, domain.FieldFacebook}
	creds := domain.Credentials{}
	for i, part := range strings.SplitN(raw, ",", len(fields)) {
		if v := strings.TrimSpace(part); v != "" {
			creds[fields[i]] = v
		}
	}
	return domain.CompetitorInput{Credentials: creds}
}

func (sc *SubmitCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := sc.load(ctx)
	if err != nil {
		return err
	}

	in := domain.SubmitInput{
		OwnerID:   sc.ownerID,
		OwnerName: sc.ownerName,
		OwnerSite: sc.ownerSite,
	}
	for _, c := range sc.competitors {
		in.Competitors = append(in.Competitors, ParseCompetitor(c))
	}

	id, err := a.Engine.Submit(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to submit report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted report %s\n", id)

	if !sc.start {
		return nil
	}
	if err := a.Engine.Start(ctx, id); err != nil {
		return fmt.Errorf("failed to start report: %w", err)
	}
	return waitAndPrint(cmd, a, id, sc.timeout, sc.reporter)
}

func NewStartCmd(load AppLoader, reporter *export.Reporter) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "start <report>",
		Short: "Start a queued report and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			if err := a.Engine.Start(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to start report: %w", err)
			}
			return waitAndPrint(cmd, a, args[0], timeout, reporter)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait for the report")
	return cmd
}

func NewStatusCmd(load AppLoader, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "status <report>",
		Short: "Show a report's status, artifact and insight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			r, err := a.Engine.Report(ctx, args[0])
			if err != nil {
				return err
			}
			return reporter.Report(r)
		},
	}
}

func NewTableCmd(load AppLoader, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "table <report>",
		Short: "Print a report's KPI table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			table, err := a.Engine.Table(ctx, args[0])
			if err != nil {
				return err
			}
			return reporter.Table(table)
		},
	}
}

func waitAndPrint(cmd *cobra.Command, a *app.App, id string, timeout time.Duration, reporter *export.Reporter) error {
	ctx := cmd.Context()
	status, err := runUntilTerminal(ctx, a, id, timeout)
	if err != nil {
		return err
	}

	r, err := a.Engine.Report(ctx, id)
	if err != nil {
		return err
	}
	if err := reporter.Report(r); err != nil {
		return err
	}
	if status != domain.ReportStatusReady {
		return fmt.Errorf("report %s finished with status %s", id, status)
	}

	table, err := a.Engine.Table(ctx, id)
	if err != nil {
		return err
	}
	return reporter.Table(table)
}
