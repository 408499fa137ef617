// Command familydir-admin runs directory maintenance against DynamoDB:
// seeding the root member, editing members, auditing the tables, checking
// the change token chain and redriving dead-lettered unbinds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kapral67/FamilyDirectory-sub001/config"
	"github.com/Kapral67/FamilyDirectory-sub001/internal/app"
	"github.com/Kapral67/FamilyDirectory-sub001/internal/logging"
)

const usage = `usage: familydir-admin <command> [flags]

commands:
  root          create the root member
  spouse        add a spouse to a native member (-of)
  descendant    add a descendant to a member's family (-of)
  update        replace a member's attributes (-id)
  delete        delete a member (-id)
  list          print every member
  audit         check the directory for violated relationship rules
  verify-chain  check the change token chain
  redrive       retry dead-lettered identity unbinds
  bind          bind an identity subject to a member (-sub, -member)
`

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config: load failed", "error", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("app: init failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, application, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.Error(os.Args[1]+": failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, command string, args []string, out io.Writer) error {
	switch command {
	case "root":
		return runRoot(ctx, a, args, out)
	case "spouse":
		return runSpouse(ctx, a, args, out)
	case "descendant":
		return runDescendant(ctx, a, args, out)
	case "update":
		return runUpdate(ctx, a, args, out)
	case "delete":
		return runDelete(ctx, a, args, out)
	case "list":
		return runList(ctx, a, out)
	case "audit":
		return runAudit(ctx, a, out)
	case "verify-chain":
		return runVerifyChain(ctx, a, out)
	case "redrive":
		return runRedrive(ctx, a, out)
	case "bind":
		return runBind(ctx, a, args, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}
