package cli

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/chain"
	"github.com/mrz1836/tether/internal/output"
)

// readTimeout bounds each chain read command.
const readTimeout = 30 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var chainIDCmd = &cobra.Command{
	Use:     "chain-id",
	Short:   "Show the wallet's active chain id",
	Long:    `Read the chain id the connected wallet is currently on.`,
	Example: `  tether chain-id`,
	Args:    cobra.NoArgs,
	RunE:    runChainID,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the wallet's accounts",
	Long: `List the accounts the connected wallet exposes.

With --qr the first account is also shown as an EIP-681 payment QR code
for the active chain, when the terminal can display it.`,
	Example: `  tether accounts
  tether accounts --qr`,
	Args: cobra.NoArgs,
	RunE: runAccounts,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show a native coin balance",
	Long: `Show the native coin balance of an address on the wallet's active chain.

Without an address the session account is used. When the chain cannot be
reached, a recently cached balance is shown and marked as stale.`,
	Example: `  tether balance
  tether balance 0x742d35Cc6634C0532925a3b844Bc454e4438f44e`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBalance,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networkCmd = &cobra.Command{
	Use:     "network",
	Short:   "Describe the wallet's active network",
	Long:    `Show the name, native coin and chain id of the wallet's active network.`,
	Example: `  tether network`,
	Args:    cobra.NoArgs,
	RunE:    runNetwork,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var accountsQR bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, c := range []*cobra.Command{chainIDCmd, accountsCmd, balanceCmd, networkCmd} {
		c.GroupID = "chain"
		rootCmd.AddCommand(c)
	}
	accountsCmd.Flags().BoolVar(&accountsQR, "qr", false, "show the first account as a QR code")
}

func runChainID(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, readTimeout)
	defer cancel()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	id, err := a.ChainID(ctx)
	if err != nil {
		return err
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(map[string]string{"chainId": id.String()})
	}
	return cc.Fmt.Print(id.String())
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, readTimeout)
	defer cancel()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	accounts, err := a.Accounts(ctx)
	if err != nil {
		return err
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(map[string][]common.Address{"accounts": accounts})
	}

	w := cmd.OutOrStdout()
	for _, acct := range accounts {
		outln(w, acct.Hex())
	}

	if accountsQR && len(accounts) > 0 {
		id, err := a.ChainID(ctx)
		if err != nil {
			return err
		}
		if !output.CanRenderQR(w) {
			output.Warn(cmd.ErrOrStderr(), "QR codes need an interactive terminal")
			return nil
		}
		outln(w)
		output.RenderQR(w, output.PaymentURI(accounts[0], id))
	}
	return nil
}

type balanceView struct {
	Address  string    `json:"address"`
	ChainID  string    `json:"chainId"`
	Symbol   string    `json:"symbol"`
	Wei      string    `json:"wei"`
	Balance  string    `json:"balance"`
	Stale    bool      `json:"stale,omitempty"`
	Fetched  time.Time `json:"fetchedAt,omitzero"`
	StaleErr string    `json:"error,omitempty"`
}

func runBalance(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, readTimeout)
	defer cancel()

	var addr common.Address
	if len(args) == 1 {
		parsed, err := chain.ParseAddress(args[0])
		if err != nil {
			return err
		}
		addr = parsed
	}

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	p, err := a.Provider()
	if err != nil {
		return err
	}
	if addr == (common.Address{}) {
		if addr, err = p.Account(ctx); err != nil {
			return err
		}
	}

	v := balanceView{Address: addr.Hex()}
	decimals := chain.NativeDecimals
	wei, err := a.Balance(ctx, addr)
	if err == nil {
		id, idErr := a.ChainID(ctx)
		if idErr != nil {
			return idErr
		}
		net := chain.LookupNetwork(id)
		v.ChainID, v.Symbol, decimals = id.String(), net.Symbol, net.Decimals
	} else {
		entry, ok := p.CachedBalance(addr)
		if !ok {
			return err
		}
		wei = entry.Balance
		v.ChainID, v.Symbol, decimals = entry.ChainID, entry.Symbol, entry.Decimals
		v.Stale, v.Fetched, v.StaleErr = true, entry.UpdatedAt, err.Error()
	}
	v.Wei = wei.String()
	v.Balance = chain.FormatDecimalAmount(wei, decimals)

	fields := output.Fields{
		{Label: "Address", Value: v.Address},
		{Label: "Chain", Value: v.ChainID},
		{Label: "Balance", Value: v.Balance + " " + v.Symbol},
	}
	if v.Stale {
		fields = append(fields, output.Field{
			Label: "Stale",
			Value: "cached at " + v.Fetched.Format(time.RFC3339) + ", chain unreachable",
		})
	}
	return cc.Fmt.Result(v, fields)
}

type networkView struct {
	ChainID *big.Int `json:"chainId"`
	Name    string   `json:"name"`
	Symbol  string   `json:"symbol"`
	Testnet bool     `json:"testnet"`
}

func runNetwork(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, readTimeout)
	defer cancel()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	n, err := a.Network(ctx)
	if err != nil {
		return err
	}

	v := networkView{ChainID: n.ChainID, Name: n.Name, Symbol: n.Symbol, Testnet: n.Testnet}
	return cc.Fmt.Result(v, output.Fields{
		{Label: "Network", Value: v.Name},
		{Label: "Chain ID", Value: v.ChainID},
		{Label: "Currency", Value: v.Symbol},
		{Label: "Testnet", Value: yesNo(v.Testnet)},
	})
}
