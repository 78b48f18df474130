package main

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"visitorkiosk/internal/attendclient"
	"visitorkiosk/internal/config"
	"visitorkiosk/internal/form"
	"visitorkiosk/internal/kiosk"
	"visitorkiosk/internal/logging"
)

type globalOptions struct {
	serviceURL  string
	documentURL string
	timeout     time.Duration
	logLevel    string
}

func newRootCmd() *cobra.Command {
	defaults := config.Load()
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "kioskctl",
		Short:         "Check number cards and submit visitor attendance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.serviceURL, "service-url", defaults.AttendanceServiceURL, "attendance service base URL")
	root.PersistentFlags().StringVar(&opts.documentURL, "document-base-url", "", "base URL of generated documents (defaults to --service-url)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaults.UpstreamTimeout, "upstream request timeout, 0 for none")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newCheckCmd(opts), newSubmitCmd(opts))
	return root
}

// newSession builds a one-off session whose effects are printed to out.
func (o *globalOptions) newSession(out io.Writer, errOut io.Writer) *kiosk.Session {
	docURL := o.documentURL
	if docURL == "" {
		docURL = o.serviceURL
	}
	return kiosk.NewSession(uuid.NewString(), kiosk.Config{
		Client:          attendclient.New(o.serviceURL, o.timeout),
		DocumentBaseURL: docURL,
		Logger:          logging.New(errOut, o.logLevel, "text").With("component", "kioskctl"),
	}, &terminalSink{out: out})
}

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var numberCard string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a number card is already in use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := opts.newSession(cmd.OutOrStdout(), cmd.ErrOrStderr())
			defer s.Close()
			if err := s.SetField(form.FieldNumberCard, numberCard); err != nil {
				return err
			}
			res, err := s.CheckNumberCard(cmd.Context())
			if err != nil {
				return err
			}
			if res.InUse() {
				return fmt.Errorf("number card %s is in use", numberCard)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&numberCard, "number-card", "", "visitor number card")
	return cmd
}

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		text          = map[form.Field]*string{}
		choices       = map[form.Field]*string{}
		signaturePath string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a visitor attendance record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := opts.newSession(cmd.OutOrStdout(), cmd.ErrOrStderr())
			defer s.Close()

			for field, v := range text {
				if err := s.SetField(field, *v); err != nil {
					return err
				}
			}
			for field, v := range choices {
				if *v == "" {
					continue
				}
				if err := s.Select(field, *v); err != nil {
					return err
				}
			}
			if signaturePath != "" {
				if err := sign(s, signaturePath); err != nil {
					return err
				}
			}

			receipt, err := s.Submit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "document:", receipt.DocumentURL)
			return nil
		},
	}

	f := cmd.Flags()
	text[form.FieldFullName] = f.String("full-name", "", "visitor full name")
	text[form.FieldNumberCard] = f.String("number-card", "", "visitor number card")
	text[form.FieldAddress] = f.String("address", "", "visitor address")
	text[form.FieldMeetWith] = f.String("meet-with", "", "person being visited")
	choices[form.FieldPurpose] = f.String("purpose", "", "interview, tamu-undangan or send-barang")
	choices[form.FieldGender] = f.String("gender", "", "male or female")
	choices[form.FieldIdentity] = f.String("identity", "", "ktp or sim")
	f.StringVar(&signaturePath, "signature", "", "PNG file with the visitor signature")
	return cmd
}

func sign(s *kiosk.Session, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return s.Sign(img)
}

type terminalSink struct {
	out io.Writer
}

func (t *terminalSink) Toast(level kiosk.Level, message string) {
	fmt.Fprintf(t.out, "[%s] %s\n", level, message)
}

func (t *terminalSink) Open(url string) {
	fmt.Fprintln(t.out, "open:", url)
}

func (t *terminalSink) Changed(form.Field) {}
