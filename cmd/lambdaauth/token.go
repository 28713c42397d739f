package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth/hmac"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func tokenCmd(ui *ui, opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, verify and inspect tokens",
	}
	cmd.AddCommand(issueCmd(ui, opts), verifyCmd(ui, opts), inspectCmd(ui, opts))
	return cmd
}

func issueCmd(ui *ui, opts *globalOpts) *cobra.Command {
	var (
		subject      string
		tokenType    string
		identityPath string
		ttl          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tt, err := auth.ParseTokenType(tokenType)
			if err != nil {
				return err
			}
			claims := auth.Claims{Subject: subject, TokenType: tt}
			if identityPath == "-" && strings.TrimSpace(opts.secret) == "" {
				return errors.New("--identity-json - needs --secret or LAMBDAAUTH_SECRET; stdin cannot supply both")
			}
			if identityPath != "" {
				id, err := readIdentity(opts.stdin, identityPath)
				if err != nil {
					return err
				}
				claims.Identity = id
			}
			if claims.Subject == "" && claims.Identity == nil {
				return errors.New("--subject or --identity-json is required")
			}
			if ttl < 0 {
				return errors.New("--ttl must be positive")
			}
			if ttl > 0 {
				now := time.Now()
				claims.IssuedAt = now
				claims.ExpiresAt = now.Add(ttl)
			}

			codec, err := newCodec(cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			token, err := codec.IssueWithClaims(claims)
			if err != nil {
				return err
			}
			if opts.output == "text" {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			return render(cmd.OutOrStdout(), opts.output, map[string]any{"token": token, "type": string(tt)})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (defaults to the identity id)")
	cmd.Flags().StringVar(&tokenType, "type", string(auth.AccessToken), "Token type: AccessToken|RefreshToken")
	cmd.Flags().StringVar(&identityPath, "identity-json", "", "File with the identity to embed (- for stdin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime, defaults to the token type TTL")
	return cmd
}

func verifyCmd(ui *ui, opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := newCodec(cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			claims, err := codec.Verify(stripScheme(args[0], opts.scheme))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.err(string(auth.KindOf(err))), err)
				return err
			}
			if opts.output == "text" {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, ui.ok("valid"))
				printField(w, ui, "subject", claims.Subject)
				printField(w, ui, "type", string(claims.TokenType))
				printField(w, ui, "issued", claims.IssuedAt.UTC().Format(time.RFC3339))
				printField(w, ui, "expires", claims.ExpiresAt.UTC().Format(time.RFC3339))
				if claims.Identity != nil {
					printField(w, ui, "identity", claims.Identity.DisplayName()+" <"+claims.Identity.Email+">")
				}
				return nil
			}
			return render(cmd.OutOrStdout(), opts.output, claimsView(claims))
		},
	}
}

func inspectCmd(ui *ui, opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a token without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims := jwt.MapClaims{}
			tok, _, err := jwt.NewParser().ParseUnverified(stripScheme(args[0], opts.scheme), claims)
			if err != nil {
				return fmt.Errorf("decode token: %w", err)
			}
			out := map[string]any{"header": tok.Header, "claims": map[string]any(claims)}
			if opts.output != "text" {
				return render(cmd.OutOrStdout(), opts.output, out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, ui.title("header"))
			printMap(w, ui, tok.Header)
			fmt.Fprintln(w, ui.title("claims"))
			printMap(w, ui, claims)
			fmt.Fprintln(w, ui.dim("signature not verified"))
			return nil
		},
	}
}

func headerCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "header <token>",
		Short: "Print the Authorization header value for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", opts.scheme, strings.TrimSpace(args[0]))
			return nil
		},
	}
}

func claimsView(c *auth.Claims) map[string]any {
	v := map[string]any{
		"jti":        c.ID,
		"sub":        c.Subject,
		"token_type": string(c.TokenType),
		"iat":        c.IssuedAt.Unix(),
		"exp":        c.ExpiresAt.Unix(),
	}
	if c.Identity != nil {
		v["identity"] = c.Identity
	}
	return v
}

func newCodec(prompt io.Writer, opts *globalOpts) (*hmac.Codec, error) {
	secret, err := opts.resolveSecret(prompt)
	if err != nil {
		return nil, err
	}
	return hmac.New(hmac.Config{Secret: []byte(secret), Issuer: opts.issuer})
}

func readIdentity(stdin io.Reader, path string) (*auth.Identity, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var id auth.Identity
	if err := json.Unmarshal(b, &id); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	return &id, nil
}

// stripScheme accepts either a bare token or a full header value.
func stripScheme(v, scheme string) string {
	v = strings.TrimSpace(v)
	return strings.TrimPrefix(v, scheme+" ")
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// round trip through json so yaml keys follow the json tags
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printField(w io.Writer, ui *ui, k, v string) {
	fmt.Fprintf(w, "  %-9s %s\n", ui.info(k), v)
}

func printMap(w io.Writer, ui *ui, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printField(w, ui, k, fmt.Sprint(m[k]))
	}
}
