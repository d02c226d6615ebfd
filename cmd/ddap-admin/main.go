package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dnastack/ddap-admin/internal/application/services"
	"github.com/dnastack/ddap-admin/internal/application/startup"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/security"
	"github.com/dnastack/ddap-admin/pkg/config"
)

var rootCmd *cobra.Command

func main() {
	rootCmd = &cobra.Command{
		Use:   "ddap-admin",
		Short: "DDAP admin console backend",
		Long: `ddap-admin serves the administration API for one or more Data Access
Managers: cached configuration, realm-scoped editing, and live updates.`,
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin console API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startup.Initialize()
		},
	}

	fakeDamCmd := &cobra.Command{
		Use:   "fakedam",
		Short: "Run a local DAM emulator backed by SQLite or Turso",
		RunE:  runFakeDam,
	}
	fakeDamCmd.Flags().String("port", config.FakeDamPort, "Port to listen on")
	fakeDamCmd.Flags().String("label", "Fake DAM", "Label reported by GET /dam")
	fakeDamCmd.Flags().String("client-id", "", "Client id required on config calls (empty disables the check)")
	fakeDamCmd.Flags().String("client-secret", "", "Client secret required on config calls")

	damsCmd := &cobra.Command{
		Use:   "dams",
		Short: "List registered DAMs and whether they answer",
		RunE:  listDams,
	}
	damsCmd.Flags().String("registry", config.DamRegistryPath, "Path to the DAM registry file")
	damsCmd.Flags().Bool("json", false, "Output in JSON format")

	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash to use as ADMIN_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE:  hashPassword,
	}

	secretCmd := &cobra.Command{
		Use:   "gen-secret",
		Short: "Print a random value to use as JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			length, _ := cmd.Flags().GetInt("length")
			secret, err := security.GenerateSecret(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
	secretCmd.Flags().Int("length", 64, "Number of hex characters")

	rootCmd.AddCommand(serveCmd, fakeDamCmd, damsCmd, hashCmd, secretCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFakeDam(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetString("port")
	label, _ := cmd.Flags().GetString("label")
	clientID, _ := cmd.Flags().GetString("client-id")
	clientSecret, _ := cmd.Flags().GetString("client-secret")

	return startup.RunFakeDam(startup.FakeDamOptions{
		Port:         port,
		Label:        label,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

func listDams(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("registry")
	asJSON, _ := cmd.Flags().GetBool("json")

	registry, err := dam.LoadRegistry(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	svc := services.NewDamConfigService(registry, startup.NewTransport(nil), nil, nil, config.DefaultRealm)
	dams := svc.Dams(ctx)

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dams)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tREACHABLE\tUI")
	for _, d := range dams {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", d.ID, d.Label, d.Reachable, d.UIURL)
	}
	return w.Flush()
}

func hashPassword(cmd *cobra.Command, args []string) error {
	var password string
	switch {
	case len(args) == 1:
		password = args[0]
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	default:
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := services.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
