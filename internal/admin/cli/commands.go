// Package cli implements hostelctl, the operator command line for account
// and payment administration.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/services"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var Version = "dev"

type rootOptions struct {
	configFile string
	envFile    string
	dsn        string
}

// configArgs turns the persistent flags into server-style arguments so the
// same loader (JSON, env, flags) is used.
func (o *rootOptions) configArgs() []string {
	var args []string
	if o.configFile != "" {
		args = append(args, "-c", o.configFile)
	}
	if o.envFile != "" {
		args = append(args, "-env-file", o.envFile)
	}
	if o.dsn != "" {
		args = append(args, "-d", o.dsn)
	}
	return args
}

// withBackend loads configuration, opens the backend and runs fn.
func withBackend(ctx context.Context, opts *rootOptions, open Opener, fn func(Backend) error) error {
	cfg, err := config.Load(opts.configArgs())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	b, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

// NewRootCmd builds the hostelctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "hostelctl",
		Short:         "Hostel payments administration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file")
	root.PersistentFlags().StringVarP(&opts.dsn, "database-dsn", "d", "", "database DSN (overrides config)")

	root.AddCommand(migrateCmd(opts, open))
	root.AddCommand(createAdminCmd(opts, open))
	root.AddCommand(accountCmd(opts, open))
	root.AddCommand(paymentCmd(opts, open))

	return root
}

func migrateCmd(opts *rootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), opts, open, func(b Backend) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func createAdminCmd(opts *rootOptions, open Opener) *cobra.Command {
	var (
		req  services.RegisterRequest
		role string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an active administrator or manager account",
		Long: `Create a staff account that can verify and reject payments.

The password is prompted for twice and never taken from flags.

Examples:
  hostelctl create-admin --username warden --email warden@hostel.example --first-name Grace --last-name Wanjiru
  hostelctl create-admin --username bursar --email bursar@hostel.example --role admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())

			if req.FirstName == "" {
				v, err := GetSimpleText(in, "First name", out)
				if err != nil {
					return err
				}
				req.FirstName = v
			}
			if req.LastName == "" {
				v, err := GetSimpleText(in, "Last name", out)
				if err != nil {
					return err
				}
				req.LastName = v
			}

			pw, err := GetPassword(out, "Password: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)
			confirm, err := GetPassword(out, "Repeat password: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(confirm)
			req.Password = string(pw)
			req.ConfirmPassword = string(confirm)

			return withBackend(cmd.Context(), opts, open, func(b Backend) error {
				acc, err := b.CreateStaff(cmd.Context(), req, models.Role(role))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "created %s %s (%s)\n", acc.Role, acc.UserName, acc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.UserName, "username", "", "login name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&role, "role", string(models.RoleManager), "manager or admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func accountCmd(opts *rootOptions, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	cmd.AddCommand(setActiveCmd(opts, open, "reactivate", true))
	cmd.AddCommand(setActiveCmd(opts, open, "deactivate", false))
	return cmd
}

func setActiveCmd(opts *rootOptions, open Opener, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [account-id]",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), opts, open, func(b Backend) error {
				acc, err := b.SetActive(cmd.Context(), args[0], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", acc.UserName, acc.Active)
				return nil
			})
		},
	}
}

func paymentCmd(opts *rootOptions, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Create and review payments",
	}
	cmd.AddCommand(paymentCreateCmd(opts, open))
	cmd.AddCommand(paymentVerifyCmd(opts, open))
	cmd.AddCommand(paymentRejectCmd(opts, open))
	return cmd
}

func paymentCreateCmd(opts *rootOptions, open Opener) *cobra.Command {
	var (
		req services.CreatePaymentRequest
		typ string
		due string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a pending payment for a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Type = models.PaymentType(typ)
			if due != "" {
				d, err := time.Parse(dateLayout, due)
				if err != nil {
					return common.NewValidationError("due", "expected YYYY-MM-DD")
				}
				req.DueDate = &d
			}

			return withBackend(cmd.Context(), opts, open, func(b Backend) error {
				p, err := b.CreatePayment(cmd.Context(), req)
				if err != nil {
					return err
				}
				printPayment(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.AccountID, "account", "", "student account id")
	cmd.Flags().Int64Var(&req.Amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&typ, "type", string(models.TypeRent), "rent, deposit, maintenance or other")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func paymentVerifyCmd(opts *rootOptions, open Opener) *cobra.Command {
	var txID string

	cmd := &cobra.Command{
		Use:   "verify [payment-id]",
		Short: "Mark a submitted payment completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), opts, open, func(b Backend) error {
				p, err := b.VerifyPayment(cmd.Context(), args[0], txID)
				if err != nil {
					return err
				}
				printPayment(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&txID, "transaction-id", "", "transaction id (generated when empty)")
	return cmd
}

func paymentRejectCmd(opts *rootOptions, open Opener) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject [payment-id]",
		Short: "Send a submitted payment back to the student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return errors.New("--reason is required")
			}
			return withBackend(cmd.Context(), opts, open, func(b Backend) error {
				p, err := b.RejectPayment(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				printPayment(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the proof was not accepted")
	return cmd
}

func printPayment(w io.Writer, p *models.Payment) {
	fmt.Fprintf(w, "payment %s account=%s amount=%d status=%s", p.ID, p.AccountID, p.Amount, p.Status)
	if p.TransactionID != "" {
		fmt.Fprintf(w, " transaction_id=%s", p.TransactionID)
	}
	fmt.Fprintln(w)
}
