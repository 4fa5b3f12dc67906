package cli

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/chain"
	"github.com/mrz1836/tether/internal/output"
	"github.com/mrz1836/tether/internal/txexec"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// sendCmd is the parent command for transfers.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send native coins or tokens through the wallet",
	Long: `Ask the connected wallet to sign and broadcast a transfer, then wait for it
to be mined.

Balances are checked before the wallet is asked, so a transfer the account
cannot pay for never reaches the wallet. A broadcast is never retried. If the
wait is interrupted, use 'tether receipt' with the printed hash.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sendNativeCmd = &cobra.Command{
	Use:   "native",
	Short: "Send the chain's native coin",
	Long: `Send the active chain's native coin to an address.

The amount is in whole coins, such as 0.01. With --demo, 1.234 coins go to a
freshly generated address.`,
	Example: `  tether send native --to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e --amount 0.01
  tether send native --demo`,
	Args: cobra.NoArgs,
	RunE: runSendNative,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sendTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Send an ERC-20 token",
	Long: `Send an ERC-20 token to an address. No native value is attached.

The amount is in whole tokens and is scaled by --decimals. With --demo,
5 DAI on Polygon go to a freshly generated address.`,
	Example: `  tether send token --token 0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063 --to 0x... --amount 5
  tether send token --demo`,
	Args: cobra.NoArgs,
	RunE: runSendToken,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var receiptCmd = &cobra.Command{
	Use:   "receipt <hash>",
	Short: "Look up a transaction receipt",
	Long: `Look up the receipt of a transaction through the wallet.

Use this after an interrupted or timed-out send. With --wait the command
polls until the receipt appears.`,
	Example: `  tether receipt 0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060
  tether receipt 0x5c50... --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runReceipt,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	sendTo       string
	sendAmount   string
	sendToken    string
	sendDecimals int32
	sendGasLimit uint64
	sendDemo     bool
	sendNoWait   bool
	receiptWait  bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sendCmd.GroupID = "actions"
	receiptCmd.GroupID = "actions"
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiptCmd)
	sendCmd.AddCommand(sendNativeCmd)
	sendCmd.AddCommand(sendTokenCmd)
	enrichParentLong(sendCmd)

	for _, c := range []*cobra.Command{sendNativeCmd, sendTokenCmd} {
		c.Flags().StringVar(&sendTo, "to", "", "recipient address")
		c.Flags().StringVar(&sendAmount, "amount", "", "amount in whole units, e.g. 0.5")
		c.Flags().Uint64Var(&sendGasLimit, "gas-limit", 0, "gas limit (0 estimates it)")
		c.Flags().BoolVar(&sendDemo, "demo", false, "send the demo transfer")
		c.Flags().BoolVar(&sendNoWait, "no-wait", false, "return after broadcast without waiting for the receipt")
		c.MarkFlagsMutuallyExclusive("demo", "to")
		c.MarkFlagsMutuallyExclusive("demo", "amount")
	}
	sendTokenCmd.Flags().StringVar(&sendToken, "token", "", "token contract address")
	sendTokenCmd.Flags().Int32Var(&sendDecimals, "decimals", 18, "token decimal places")
	sendTokenCmd.MarkFlagsMutuallyExclusive("demo", "token")

	receiptCmd.Flags().BoolVar(&receiptWait, "wait", false, "poll until the receipt is available")
}

// transfer is a parsed send request.
type transfer struct {
	token    common.Address
	to       common.Address
	amount   *big.Int
	gasLimit uint64
}

func runSendNative(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	var t transfer
	var err error
	if sendDemo {
		t, err = demoTransfer(common.Address{}, "1.234", chain.NativeDecimals, cc.Cfg.Transactions.DemoGasLimit)
	} else {
		t, err = parseTransfer("", sendTo, sendAmount, chain.NativeDecimals, sendGasLimit)
	}
	if err != nil {
		return err
	}

	return runTransfer(cmd, func(ctx context.Context, e *txexec.Executor) (*txexec.Pending, error) {
		return e.SubmitNative(ctx, t.to, t.amount, t.gasLimit)
	})
}

func runSendToken(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	var t transfer
	var err error
	if sendDemo {
		token, perr := chain.ParseAddress(cc.Cfg.Transactions.DemoTokenAddress)
		if perr != nil {
			return perr
		}
		t, err = demoTransfer(token, "5", 18, cc.Cfg.Transactions.DemoGasLimit)
	} else {
		if sendToken == "" {
			return tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{"token": "required"})
		}
		t, err = parseTransfer(sendToken, sendTo, sendAmount, sendDecimals, sendGasLimit)
	}
	if err != nil {
		return err
	}

	return runTransfer(cmd, func(ctx context.Context, e *txexec.Executor) (*txexec.Pending, error) {
		return e.SubmitTokenTransfer(ctx, t.token, t.to, t.amount, t.gasLimit)
	})
}

// parseTransfer validates the transfer flags. token is empty for native sends.
func parseTransfer(token, to, amount string, decimals int32, gasLimit uint64) (transfer, error) {
	var t transfer
	missing := map[string]string{}
	if to == "" {
		missing["to"] = "required"
	}
	if amount == "" {
		missing["amount"] = "required"
	}
	if len(missing) > 0 {
		return t, tethererr.WithDetails(tethererr.ErrInvalidInput, missing)
	}

	var err error
	if token != "" {
		if t.token, err = chain.ParseAddress(token); err != nil {
			return t, err
		}
	}
	if t.to, err = chain.ParseAddress(to); err != nil {
		return t, err
	}
	if t.amount, err = chain.ParseDecimalAmount(amount, decimals); err != nil {
		return t, err
	}
	t.gasLimit = gasLimit
	return t, nil
}

// demoTransfer sends amount to a newly generated address nobody holds.
func demoTransfer(token common.Address, amount string, decimals int32, gasLimit uint64) (transfer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return transfer{}, tethererr.Wrap(err, "generating demo recipient")
	}
	wei, err := chain.ParseDecimalAmount(amount, decimals)
	if err != nil {
		return transfer{}, err
	}
	return transfer{
		token:    token,
		to:       crypto.PubkeyToAddress(key.PublicKey),
		amount:   wei,
		gasLimit: gasLimit,
	}, nil
}

// runTransfer submits through the session's executor, reports the hash as
// soon as the wallet returns it and then waits for the receipt.
func runTransfer(cmd *cobra.Command, submit func(context.Context, *txexec.Executor) (*txexec.Pending, error)) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	exec, err := a.Executor()
	if err != nil {
		return err
	}

	if !cc.Fmt.IsJSON() {
		output.Info(cmd.ErrOrStderr(), "Approve the transaction in your wallet...")
	}
	pending, err := submit(ctx, exec)
	if err != nil {
		return err
	}

	if sendNoWait {
		return cc.Fmt.Result(pending, output.Fields{
			{Label: "Hash", Value: pending.Hash.Hex()},
			{Label: "Status", Value: "submitted"},
		})
	}
	if !cc.Fmt.IsJSON() {
		output.Info(cmd.ErrOrStderr(), "Submitted %s, waiting for confirmation...", pending.Hash.Hex())
	}

	receipt, err := exec.Wait(ctx, pending)
	if receipt != nil {
		if perr := printReceipt(cmd, a.ChainID, receipt); perr != nil {
			return perr
		}
	}
	return err
}

func runReceipt(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	hash, err := parseHash(args[0])
	if err != nil {
		return err
	}

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}
	exec, err := a.Executor()
	if err != nil {
		return err
	}

	var receipt *types.Receipt
	if receiptWait {
		receipt, err = exec.Wait(ctx, &txexec.Pending{Hash: hash})
	} else {
		receipt, err = exec.Receipt(ctx, hash)
	}
	if receipt != nil {
		if perr := printReceipt(cmd, a.ChainID, receipt); perr != nil {
			return perr
		}
	}
	return err
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{
			"hash":   s,
			"reason": "expected 0x-prefixed 32-byte hex",
		})
	}
	return common.BytesToHash(b), nil
}

type receiptView struct {
	Hash        string `json:"hash"`
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	Explorer    string `json:"explorer,omitempty"`
}

func printReceipt(cmd *cobra.Command, chainID func(context.Context) (*big.Int, error), r *types.Receipt) error {
	cc := GetCmdContext(cmd)

	v := receiptView{
		Hash:    r.TxHash.Hex(),
		Status:  "success",
		GasUsed: r.GasUsed,
	}
	if r.Status == types.ReceiptStatusFailed {
		v.Status = "reverted"
	}
	if r.BlockNumber != nil {
		v.BlockNumber = r.BlockNumber.String()
	}
	if id, err := chainID(cmd.Context()); err == nil {
		if explorer := chain.LookupNetwork(id).Explorer; explorer != "" {
			v.Explorer = explorer + "/tx/" + v.Hash
		}
	}

	fields := output.Fields{
		{Label: "Hash", Value: v.Hash},
		{Label: "Status", Value: v.Status},
		{Label: "Block", Value: v.BlockNumber},
		{Label: "Gas used", Value: strconv.FormatUint(v.GasUsed, 10)},
	}
	if v.Explorer != "" {
		fields = append(fields, output.Field{Label: "Explorer", Value: v.Explorer})
	}
	return cc.Fmt.Result(v, fields)
}
