package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/internal/app"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

func runRoot(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("root", flag.ContinueOnError)
	af := bindAttributeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := engine.NewCreateRoot(af.attributes())
	if err != nil {
		return err
	}
	return execute(ctx, a, req, out)
}

func runSpouse(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("spouse", flag.ContinueOnError)
	of := uuidFlag(fs, "of", "native member to add a spouse for")
	af := bindAttributeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := engine.NewCreateSpouse(*of, af.attributes())
	if err != nil {
		return err
	}
	return execute(ctx, a, req, out)
}

func runDescendant(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("descendant", flag.ContinueOnError)
	of := uuidFlag(fs, "of", "member whose family gains the descendant")
	af := bindAttributeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := engine.NewCreateDescendant(*of, af.attributes())
	if err != nil {
		return err
	}
	return execute(ctx, a, req, out)
}

func runUpdate(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	id := uuidFlag(fs, "id", "member to update")
	af := bindAttributeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := engine.NewUpdateMember(*id, af.attributes())
	if err != nil {
		return err
	}
	return execute(ctx, a, req, out)
}

func runDelete(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := uuidFlag(fs, "id", "member to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := engine.NewDeleteMember(*id)
	if err != nil {
		return err
	}
	if _, err := a.Engine.Execute(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", *id)
	return nil
}

func execute(ctx context.Context, a *app.App, req engine.Request, out io.Writer) error {
	m, err := a.Engine.Execute(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s (family %s, version %d)\n", req.Op(), m.ID, m.FamilyID, m.Version)
	return nil
}

func runList(ctx context.Context, a *app.App, out io.Writer) error {
	d, err := a.Engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeMembers(out, d.Members())
}

func writeMembers(out io.Writer, members []store.Member) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFAMILY\tNAME\tBIRTHDAY\tEMAIL")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.FamilyID, m.FullName(), m.Birthday, m.Email)
	}
	return tw.Flush()
}

func runAudit(ctx context.Context, a *app.App, out io.Writer) error {
	d, err := a.Engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	violations := d.Audit()
	for _, v := range violations {
		fmt.Fprintln(out, v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d violations in %d members", len(violations), d.Len())
	}
	fmt.Fprintf(out, "directory ok: %d members\n", d.Len())
	return nil
}

func runVerifyChain(ctx context.Context, a *app.App, out io.Writer) error {
	r, err := a.Chain.Verify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, r)
	if !r.OK() {
		return errors.New("change token chain is damaged")
	}
	return nil
}

func runRedrive(ctx context.Context, a *app.App, out io.Writer) error {
	n, err := a.Janitor.Redrive(ctx)
	fmt.Fprintf(out, "redriven %d\n", n)
	return err
}

func runBind(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bind", flag.ContinueOnError)
	sub := fs.String("sub", "", "identity subject")
	member := uuidFlag(fs, "member", "member to bind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.Store.GetMember(ctx, *member); err != nil {
		return fmt.Errorf("member %s: %w", *member, err)
	}
	if err := a.Bindings.Bind(ctx, *sub, *member); err != nil {
		return err
	}
	fmt.Fprintf(out, "bound %q to %s\n", *sub, *member)
	return nil
}

func uuidFlag(fs *flag.FlagSet, name, usage string) *uuid.UUID {
	id := new(uuid.UUID)
	fs.Func(name, usage, func(s string) error {
		parsed, err := uuid.Parse(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	})
	return id
}
