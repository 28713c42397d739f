package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type globalOpts struct {
	secret string
	issuer string
	scheme string
	output string
	stdin  io.Reader
}

func main() {
	if err := newRootCmd(os.Stdin).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	ui := newUI()
	opts := &globalOpts{
		secret: getenv("LAMBDAAUTH_SECRET", ""),
		issuer: getenv("LAMBDAAUTH_ISSUER", ""),
		scheme: getenv("LAMBDAAUTH_SCHEME", "Watashiwasta"),
		output: "text",
		stdin:  stdin,
	}

	root := &cobra.Command{
		Use:   "lambdaauth",
		Short: "lambdaauth CLI",
		Long:  "Issue, verify and inspect lambdaauth tokens.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&opts.secret, "secret", opts.secret, "HMAC secret (or LAMBDAAUTH_SECRET)")
	root.PersistentFlags().StringVar(&opts.issuer, "issuer", opts.issuer, "Token issuer (iss claim)")
	root.PersistentFlags().StringVar(&opts.scheme, "scheme", opts.scheme, "Authorization scheme")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", opts.output, "Output format: text|json|yaml")

	root.AddCommand(tokenCmd(ui, opts), headerCmd(opts))
	return root
}

func helpTemplate(ui *ui) string {
	title := ui.title("lambdaauth")
	return fmt.Sprintf(`%s: token tooling for lambdaauth

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Examples:
  lambdaauth token issue --subject 0b5c1b8e-3c1f-4f44-9a4e-0d5f8b8e2a11 --ttl 15m
  lambdaauth token verify <token>
  lambdaauth token inspect <token> -o yaml
  lambdaauth header <token>

`, title)
}

// resolveSecret returns the flag/env secret or prompts for one.
func (o *globalOpts) resolveSecret(w io.Writer) (string, error) {
	if s := strings.TrimSpace(o.secret); s != "" {
		return s, nil
	}
	s, err := promptSecret(w, o.stdin, "Secret")
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if s == "" {
		return "", fmt.Errorf("secret is required (--secret or LAMBDAAUTH_SECRET)")
	}
	return s, nil
}

func promptSecret(w io.Writer, in io.Reader, label string) (string, error) {
	fmt.Fprintf(w, "%s: ", label)
	b, err := readPassword(in)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readPassword(in io.Reader) ([]byte, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return term.ReadPassword(int(f.Fd()))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return []byte(strings.TrimSpace(line)), err
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
