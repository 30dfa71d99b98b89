package main

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/cobra"

	"github.com/belkagoyda/orex-workspace/internal/gate"
	"github.com/belkagoyda/orex-workspace/internal/web/config"
	"github.com/belkagoyda/orex-workspace/internal/web/server"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Inspect and manage the access gate lists",
}

var gateListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show allow-list bindings and deny-list entries",
	RunE:  runGateList,
}

var gateBanCmd = &cobra.Command{
	Use:   "ban [ip]",
	Short: "Add an IP address to the deny-list",
	Args:  cobra.ExactArgs(1),
	RunE:  runGateBan,
}

var gateCheckCmd = &cobra.Command{
	Use:   "check [ip]",
	Short: "Show how the gate treats an IP address",
	Args:  cobra.ExactArgs(1),
	RunE:  runGateCheck,
}

var gateAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the access audit log",
	RunE:  runGateAudit,
}

var (
	gateReason      string
	gateFingerprint string
	gateTail        int
)

func init() {
	gateBanCmd.Flags().StringVar(&gateReason, "reason", "Banned by operator", "Reason recorded with the entry")
	gateCheckCmd.Flags().StringVar(&gateFingerprint, "fingerprint", "", "Also check the binding to this fingerprint")
	gateAuditCmd.Flags().IntVarP(&gateTail, "tail", "n", 50, "Number of most recent lines (0 for all)")

	gateCmd.AddCommand(gateListCmd)
	gateCmd.AddCommand(gateBanCmd)
	gateCmd.AddCommand(gateCheckCmd)
	gateCmd.AddCommand(gateAuditCmd)
}

func openGate() (*config.Config, *gate.Gate, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	store, err := server.OpenGateStore(cfg.Gate)
	if err != nil {
		return nil, nil, err
	}
	return cfg, server.NewGate(cfg, store, cliLogger()), nil
}

func runGateList(cmd *cobra.Command, args []string) error {
	_, g, err := openGate()
	if err != nil {
		return err
	}
	defer g.Store().Close()

	ctx := context.Background()
	allow, err := g.Store().AllowEntries(ctx)
	if err != nil {
		return err
	}
	deny, err := g.Store().DenyEntries(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Allow-list (%d):\n", len(allow))
	fmt.Printf("  %-40s  %-20s  %s\n", "IP", "Fingerprint", "Bound")
	for _, e := range allow {
		fmt.Printf("  %-40s  %-20s  %s\n", e.IP, gate.FingerprintPrefix(e.Fingerprint), e.Timestamp.Format(gate.TimestampLayout))
	}

	fmt.Printf("\nDeny-list (%d):\n", len(deny))
	fmt.Printf("  %-40s  %-30s  %s\n", "IP", "Reason", "Added")
	for _, e := range deny {
		fmt.Printf("  %-40s  %-30s  %s\n", e.IP, e.Reason, e.Timestamp.Format(gate.TimestampLayout))
	}
	return nil
}

func runGateBan(cmd *cobra.Command, args []string) error {
	addr, err := netip.ParseAddr(args[0])
	if err != nil {
		return fmt.Errorf("invalid IP address %q", args[0])
	}

	_, g, err := openGate()
	if err != nil {
		return err
	}
	defer g.Store().Close()

	added, err := g.Ban(context.Background(), addr.String(), gateReason)
	if err != nil {
		return err
	}
	if !added {
		fmt.Printf("%s is already on the deny-list\n", addr)
		return nil
	}
	fmt.Printf("%s added to the deny-list\n", addr)
	return nil
}

func runGateCheck(cmd *cobra.Command, args []string) error {
	ip := args[0]

	_, g, err := openGate()
	if err != nil {
		return err
	}
	defer g.Store().Close()

	ctx := context.Background()
	denied, err := g.CheckDenied(ctx, ip)
	if err != nil {
		return err
	}
	known, err := g.IsKnown(ctx, ip)
	if err != nil {
		return err
	}

	fmt.Printf("IP:        %s\n", ip)
	fmt.Printf("Denied:    %v\n", denied)
	fmt.Printf("Bound:     %v\n", known)
	if gateFingerprint != "" {
		bound, err := g.CheckBound(ctx, ip, gateFingerprint)
		if err != nil {
			return err
		}
		fmt.Printf("Matches:   %v\n", bound)
	}
	return nil
}

func runGateAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	lines, err := gate.NewAuditLog(cfg.Gate.AuditLog, cliLogger()).Tail(gateTail)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(lines) == 0 {
		fmt.Println("Audit log is empty")
		return nil
	}
	fmt.Println(strings.Join(lines, "\n"))
	return nil
}
