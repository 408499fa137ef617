package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/Kapral67/FamilyDirectory-sub001/engine"
)

// phoneFlag collects repeated -phone KIND=NUMBER values.
type phoneFlag map[string]string

func (p phoneFlag) String() string {
	parts := make([]string, 0, len(p))
	for kind, number := range p {
		parts = append(parts, kind+"="+number)
	}
	return strings.Join(parts, ",")
}

func (p phoneFlag) Set(s string) error {
	kind, number, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(kind) == "" || strings.TrimSpace(number) == "" {
		return fmt.Errorf("phone %q: want KIND=NUMBER", s)
	}
	p[kind] = number
	return nil
}

// linesFlag collects repeated -address values in order.
type linesFlag []string

func (l *linesFlag) String() string {
	return strings.Join(*l, "; ")
}

func (l *linesFlag) Set(s string) error {
	*l = append(*l, s)
	return nil
}

type attributeFlags struct {
	first, middle, last, suffix string
	birthday, deathday, email   string
	phones                      phoneFlag
	address                     linesFlag
}

func bindAttributeFlags(fs *flag.FlagSet) *attributeFlags {
	af := &attributeFlags{phones: phoneFlag{}}
	fs.StringVar(&af.first, "first", "", "first name")
	fs.StringVar(&af.middle, "middle", "", "middle name")
	fs.StringVar(&af.last, "last", "", "last name")
	fs.StringVar(&af.suffix, "suffix", "", "name suffix")
	fs.StringVar(&af.birthday, "birthday", "", "birthday, YYYY-MM-DD")
	fs.StringVar(&af.deathday, "deathday", "", "deathday, YYYY-MM-DD")
	fs.StringVar(&af.email, "email", "", "email address")
	fs.Var(af.phones, "phone", "phone as KIND=NUMBER, repeatable")
	fs.Var(&af.address, "address", "address line, repeatable")
	return af
}

func (af *attributeFlags) attributes() engine.Attributes {
	a := engine.Attributes{
		FirstName:  af.first,
		MiddleName: af.middle,
		LastName:   af.last,
		Suffix:     af.suffix,
		Birthday:   af.birthday,
		Deathday:   af.deathday,
		Email:      af.email,
		Address:    af.address,
	}
	if len(af.phones) > 0 {
		a.Phones = af.phones
	}
	return a
}
