package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/app"
	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/output"
	"github.com/mrz1836/tether/internal/wallet"
)

// connectCmd opens a wallet session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var connectCmd = &cobra.Command{
	Use:   "connect [injected|relay|session]",
	Short: "Connect to a wallet provider",
	Long: `Connect to a wallet provider and remember the choice.

With no provider named, a previously cached session is reused. Otherwise the
only offered provider is used, or you are asked to pick one. Naming a
provider, as an argument or with --provider, always clears the cached
session and connects afresh.

The wallet may ask you to approve the connection.`,
	Example: `  tether connect
  tether connect relay
  tether --provider session connect`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"injected", "relay", "session"},
	RunE:      runConnect,
}

// disconnectCmd ends the wallet session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the active wallet session",
	Long: `End the active wallet session and forget it.

Relay pairings and session-wallet logins are also ended on the wallet side.`,
	Example: `  tether disconnect`,
	Args:    cobra.NoArgs,
	RunE:    runDisconnect,
}

// statusCmd reports the session and which actions are available.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session and available actions",
	Long: `Show whether a wallet session is active and which actions it enables.

Every action except connect needs an active session.`,
	Example: `  tether status
  tether status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// providersCmd lists wallet providers.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List wallet providers",
	Long: `List every wallet provider kind and whether it is offered.

The injected provider is offered only when a local wallet answered the
startup probe. The session provider is withheld when that wallet is itself a
session wallet.`,
	Example: `  tether providers`,
	Args:    cobra.NoArgs,
	RunE:    runProviders,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, c := range []*cobra.Command{connectCmd, disconnectCmd, statusCmd, providersCmd} {
		c.GroupID = "session"
		rootCmd.AddCommand(c)
	}
}

// sessionView is the printable form of a session.
type sessionView struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func viewSession(s *broker.Session) *sessionView {
	v := &sessionView{
		ID:          s.ID,
		Kind:        s.Kind.String(),
		ConnectedAt: s.ConnectedAt,
	}
	if accts := s.Handle.Accounts(); len(accts) > 0 {
		v.Address = accts[0].Hex()
	}
	return v
}

func (v *sessionView) fields() output.Fields {
	return output.Fields{
		{Label: "Provider", Value: v.Kind},
		{Label: "Address", Value: v.Address},
		{Label: "Session", Value: v.ID},
		{Label: "Connected", Value: v.ConnectedAt.Format(time.RFC3339)},
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}

	requested := providerName
	if len(args) == 1 {
		requested = args[0]
	}

	if s := a.Session(); s != nil {
		if requested == "" {
			v := viewSession(s)
			if !cc.Fmt.IsJSON() {
				output.Info(cmd.ErrOrStderr(), "Resumed cached %s session", s.Kind)
			}
			return cc.Fmt.Result(v, v.fields())
		}
		if err := a.Disconnect(ctx); err != nil {
			return err
		}
	}

	kind, err := chooseKind(requested, a.Providers())
	if err != nil {
		return err
	}

	if !cc.Fmt.IsJSON() {
		output.Info(cmd.ErrOrStderr(), "Connecting to %s wallet, approve the request if prompted...", kind)
	}
	s, err := a.Connect(ctx, kind)
	if err != nil {
		return err
	}

	v := viewSession(s)
	return cc.Fmt.Result(v, v.fields())
}

func runDisconnect(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	s := a.Session()
	if err := a.Disconnect(ctx); err != nil {
		return err
	}

	if cc.Fmt.IsJSON() {
		view := map[string]any{"disconnected": s != nil}
		if s != nil {
			view["kind"] = s.Kind
		}
		return cc.Fmt.Print(view)
	}
	if s == nil {
		output.Success(cmd.OutOrStdout(), "No active session; session cache cleared")
		return nil
	}
	output.Success(cmd.OutOrStdout(), "Disconnected %s session", s.Kind)
	return nil
}

type triggerView struct {
	Name    app.Trigger `json:"name"`
	Enabled bool        `json:"enabled"`
}

type statusView struct {
	Active       bool                `json:"active"`
	Session      *sessionView        `json:"session,omitempty"`
	Providers    []wallet.Kind       `json:"providers"`
	Capabilities wallet.Capabilities `json:"capabilities"`
	Triggers     []triggerView       `json:"triggers"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	a, err := cc.App(cmd.Context())
	if err != nil {
		return err
	}

	v := statusView{
		Providers:    a.Providers(),
		Capabilities: a.Capabilities(),
	}
	if s := a.Session(); s != nil {
		v.Active = true
		v.Session = viewSession(s)
	}
	for _, t := range app.Triggers() {
		v.Triggers = append(v.Triggers, triggerView{Name: t, Enabled: a.Enabled(t)})
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(v)
	}

	w := cmd.OutOrStdout()
	fields := output.Fields{{Label: "Active", Value: v.Active}}
	if v.Session != nil {
		fields = append(fields, v.Session.fields()...)
	}
	fields = append(fields, output.Field{Label: "Providers", Value: joinKinds(v.Providers)})
	if err := fields.Render(w); err != nil {
		return err
	}

	outln(w)
	table := output.NewTable("ACTION", "AVAILABLE")
	for _, t := range v.Triggers {
		table.AddRow(string(t.Name), yesNo(t.Enabled))
	}
	return table.Render(w)
}

type providerView struct {
	Kind    wallet.Kind `json:"kind"`
	Offered bool        `json:"offered"`
	Detail  string      `json:"detail,omitempty"`
}

func runProviders(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	a, err := cc.App(cmd.Context())
	if err != nil {
		return err
	}

	offered := make(map[wallet.Kind]bool)
	for _, k := range a.Providers() {
		offered[k] = true
	}
	caps := a.Capabilities()

	views := make([]providerView, 0, len(wallet.AllKinds()))
	for _, k := range wallet.AllKinds() {
		v := providerView{Kind: k, Offered: offered[k]}
		switch {
		case k == wallet.KindInjected && caps.Present:
			v.Detail = caps.ClientVersion
		case k == wallet.KindInjected:
			v.Detail = "no local wallet answered"
		case k == wallet.KindSession && caps.SessionCapable:
			v.Detail = "local wallet is a session wallet"
		case !v.Offered:
			v.Detail = "disabled in config"
		}
		views = append(views, v)
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(views)
	}

	table := output.NewTable("PROVIDER", "OFFERED", "DETAIL")
	for _, v := range views {
		table.AddRow(v.Kind.String(), yesNo(v.Offered), v.Detail)
	}
	return cc.Fmt.Print(table)
}

func joinKinds(kinds []wallet.Kind) string {
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
