package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db    *sqlx.DB
	svc   *readiness.Service
	conf  *core.Config
	out   io.Writer
	table bool // tables for humans, JSON otherwise
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                  - run a goose command (up, down, status, version, redo, reset, up-to, down-to, ...)")
	fmt.Fprintln(cli.out, "  seed -tenant TENANT                     - create the default readiness criteria of a tenant")
	fmt.Fprintln(cli.out, "  criteria -tenant TENANT [-active]       - list the readiness criteria of a tenant")
	fmt.Fprintln(cli.out, "  evaluate -tenant TENANT [-cell CELL]    - evaluate one cell or all the cells of a tenant")
	fmt.Fprintln(cli.out, "  dashboard -tenant TENANT [-supervisor SUPERVISOR] [-leader LEADER] - print the readiness dashboard")
	fmt.Fprintln(cli.out, "  alerts -tenant TENANT [-limit N]        - print the readiness alerts")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	seedTenant := seedCmd.String("tenant", "", "The tenant (church) id.")

	criteriaCmd := flag.NewFlagSet("criteria", flag.ExitOnError)
	criteriaTenant := criteriaCmd.String("tenant", "", "The tenant (church) id.")
	criteriaActive := criteriaCmd.Bool("active", false, "Only list active criteria.")

	evaluateCmd := flag.NewFlagSet("evaluate", flag.ExitOnError)
	evaluateTenant := evaluateCmd.String("tenant", "", "The tenant (church) id.")
	evaluateCell := evaluateCmd.String("cell", "", "The cell to evaluate. All the tenant's cells if empty.")

	dashboardCmd := flag.NewFlagSet("dashboard", flag.ExitOnError)
	dashboardTenant := dashboardCmd.String("tenant", "", "The tenant (church) id.")
	dashboardSupervisor := dashboardCmd.String("supervisor", "", "Only include the cells of this supervisor.")
	dashboardLeader := dashboardCmd.String("leader", "", "Only include the cells of this leader.")

	alertsCmd := flag.NewFlagSet("alerts", flag.ExitOnError)
	alertsTenant := alertsCmd.String("tenant", "", "The tenant (church) id.")
	alertsLimit := alertsCmd.Int("limit", cli.conf.Readiness.DefaultAlertLimit, "Maximum number of alerts, 0 for all.")

	// parse parses a tenant scoped command
	parse := func(cmd *flag.FlagSet, tenant *string) error {
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tenant == "" {
			cmd.Usage()
			return errHelp
		}
		return nil
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seed":
		if err := parse(seedCmd, seedTenant); err != nil {
			return err
		}
		return cli.seed(*seedTenant)
	case "criteria":
		if err := parse(criteriaCmd, criteriaTenant); err != nil {
			return err
		}
		return cli.criteria(*criteriaTenant, *criteriaActive)
	case "evaluate":
		if err := parse(evaluateCmd, evaluateTenant); err != nil {
			return err
		}
		return cli.evaluate(*evaluateTenant, *evaluateCell)
	case "dashboard":
		if err := parse(dashboardCmd, dashboardTenant); err != nil {
			return err
		}
		return cli.dashboard(*dashboardTenant, readiness.CellScope{SupervisorID: *dashboardSupervisor, LeaderID: *dashboardLeader})
	case "alerts":
		if err := parse(alertsCmd, alertsTenant); err != nil {
			return err
		}
		return cli.alerts(*alertsTenant, *alertsLimit)
	default:
		cli.printUsage()
		return errHelp
	}
}
