package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"draft-polisher/internal/clientstate"
	"draft-polisher/internal/compose"
	"draft-polisher/internal/config"
	"draft-polisher/internal/integrations/gateway"
	"draft-polisher/internal/logging"
)

type draftFlags struct {
	file           string
	host           string
	subject        string
	noSubject      bool
	recipientName  string
	recipientEmail string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "-", "File holding the editor markup (- for stdin)")
	cmd.Flags().StringVar(&f.host, "host", "gmail", "Mail client whose editor produced the markup (gmail or outlook)")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Current subject line")
	cmd.Flags().BoolVar(&f.noSubject, "no-subject", false, "The compose window has no subject field")
	cmd.Flags().StringVar(&f.recipientName, "recipient-name", "", "Display name of the first recipient")
	cmd.Flags().StringVar(&f.recipientEmail, "recipient-email", "", "Address of the first recipient")
}

func (f *draftFlags) document(in io.Reader) (*compose.Document, error) {
	host, err := compose.HostByName(f.host)
	if err != nil {
		return nil, err
	}
	var r io.Reader = in
	if f.file != "-" {
		file, err := os.Open(f.file)
		if err != nil {
			return nil, fmt.Errorf("open draft: %w", err)
		}
		defer file.Close()
		r = file
	}
	markup, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}

	opts := []compose.DocumentOption{compose.WithRecipient(f.recipientName, f.recipientEmail)}
	if !f.noSubject {
		opts = append(opts, compose.WithSubject(f.subject))
	}
	return compose.NewDocument(host.Hostname(), string(markup), opts...), nil
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "polish",
		Short: "Rewrites e-mail drafts while keeping the quoted thread intact",
		Long: `polish sends the newly written part of a draft to the rewrite gate and
puts the polished text back above the untouched reply or forward chain.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (environment variables override it)")

	root.AddCommand(newImproveCmd(&configFile))
	root.AddCommand(newDetectCmd())
	return root
}

func newImproveCmd(configFile *string) *cobra.Command {
	var (
		df        draftFlags
		plainText bool
	)
	cmd := &cobra.Command{
		Use:   "improve",
		Short: "Rewrite a draft through the gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			log := logging.NewText(cmd.ErrOrStderr(), cfg.LogLevel)

			doc, err := df.document(cmd.InOrStdin())
			if err != nil {
				return err
			}

			statePath := cfg.StatePath
			if statePath == "" {
				statePath, err = defaultStatePath()
				if err != nil {
					return err
				}
			}
			state, err := clientstate.Open(statePath)
			if err != nil {
				return err
			}
			defer state.Close()

			gate, err := gateway.NewClient(cfg.GatewayURL)
			if err != nil {
				return err
			}
			improver, err := compose.NewImprover(gate, state, log)
			if err != nil {
				return err
			}

			if _, err := improver.Improve(cmd.Context(), doc); err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			if subject := doc.Subject(); subject != "" {
				fmt.Fprintf(out, "Subject: %s\n\n", subject)
			}
			if plainText {
				fmt.Fprintln(out, compose.RenderText(doc.Body()))
			} else {
				fmt.Fprintln(out, doc.Body())
			}
			return nil
		},
	}
	df.register(cmd)
	cmd.Flags().BoolVar(&plainText, "text", false, "Print the result as plain text instead of markup")
	return cmd
}

func newDetectCmd() *cobra.Command {
	var df draftFlags
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Show where the quoted thread starts, without contacting the gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := df.document(cmd.InOrStdin())
			if err != nil {
				return err
			}
			snap := doc.Snapshot()
			b := compose.Detect(snap.Markup, snap.Text)

			out := cmd.OutOrStdout()
			rule := b.Rule
			if rule == "" {
				rule = "none"
			}
			fmt.Fprintf(out, "rule: %s\n", rule)
			fmt.Fprintf(out, "recipient: %s\n", compose.FirstName(snap.RecipientName, snap.RecipientEmail))
			fmt.Fprintf(out, "new text:\n%s\n", b.NewText)
			if b.PreservedChain != "" {
				fmt.Fprintf(out, "preserved (%s, %d bytes):\n%s\n", b.Side, len(b.PreservedChain), b.PreservedChain)
			}
			return nil
		},
	}
	df.register(cmd)
	return cmd
}

// describe turns client-visible failures into the messages a user sees.
func describe(err error) error {
	var upstream *gateway.UpstreamError
	switch {
	case errors.Is(err, compose.ErrInputAbsent):
		return errors.New("no text found to improve")
	case errors.Is(err, gateway.ErrIdentityDenied):
		return errors.New("session rejected, please try again")
	case errors.Is(err, gateway.ErrQuotaExceeded):
		return errors.New("daily request limit reached, please try again tomorrow")
	case errors.As(err, &upstream):
		return fmt.Errorf("failed to improve text: %w", err)
	}
	return err
}

func defaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	dir = filepath.Join(dir, "draft-polisher")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return filepath.Join(dir, "state.db"), nil
}
