package cli

import (
	"bufio"
	"context"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/app"
	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/chain"
	"github.com/mrz1836/tether/internal/output"
	"github.com/mrz1836/tether/internal/provider"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run actions against one live session",
	Long: `Start an interactive prompt that keeps one wallet session open.

Each line names an action and its arguments. Actions other than connect are
refused until a session is active, and again after disconnect. Type 'help'
for the list of actions and 'exit' to leave; the session stays cached.`,
	Example: `  tether shell
  printf 'connect injected\nchainId\nsignMessage hello\n' | tether shell`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	shellCmd.GroupID = "session"
	rootCmd.AddCommand(shellCmd)
}

const shellHelp = `Actions:
  connect [kind]                         connect (injected, relay, session)
  disconnect                             end the session
  chainId | accounts | network           chain reads
  balance [address]                      native balance
  signMessage <text>                     sign and verify a message
  signTypedData                          sign and verify the Ether Mail sample
  sendNative <to> <amount>               send native coin and wait
  sendToken <token> <to> <amount> [dec]  send an ERC-20 token and wait
  status                                 show which actions are available
  metrics                                dump the metrics collected so far
  exit                                   leave the shell`

func runShell(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	a, err := cc.App(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if s := a.Session(); s != nil {
		output.Info(cmd.ErrOrStderr(), "Resumed %s session for %s", s.Kind, viewSession(s).Address)
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	for {
		out(w, "tether> ")
		if !sc.Scan() {
			outln(w)
			return sc.Err()
		}

		words := splitLine(sc.Text())
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "exit", "quit":
			return nil
		case "help":
			outln(w, shellHelp)
			continue
		case "status":
			for _, t := range app.Triggers() {
				out(w, "  %-14s %s\n", t, yesNo(a.Enabled(t)))
			}
			continue
		case "metrics":
			if err := cc.Metrics.WriteText(w); err != nil {
				return err
			}
			continue
		}

		if err := shellInvoke(ctx, a, w, words); err != nil {
			formatErr(err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// shellInvoke parses one line into a trigger and runs it.
func shellInvoke(ctx context.Context, a *app.App, w io.Writer, words []string) error {
	t, args, err := parseShellLine(words)
	if err != nil {
		return err
	}
	if t == app.TriggerConnect && args.Kind == "" {
		kind, err := chooseKind("", a.Providers())
		if err != nil {
			return err
		}
		args.Kind = kind
	}

	res, err := a.Invoke(ctx, t, args)
	if err != nil {
		return err
	}
	if t == app.TriggerDisconnect {
		output.Success(w, "Disconnected")
		return nil
	}
	renderShellResult(w, res)
	return nil
}

func parseShellLine(words []string) (app.Trigger, app.Args, error) {
	t := app.Trigger(words[0])
	rest := words[1:]
	var args app.Args

	need := func(n int, usage string) error {
		if len(rest) < n {
			return tethererr.WithSuggestion(tethererr.ErrInvalidInput, "Usage: "+usage)
		}
		return nil
	}

	var err error
	switch t {
	case app.TriggerConnect:
		if len(rest) > 0 {
			args.Kind, err = wallet.ParseKind(rest[0])
		}
	case app.TriggerDisconnect, app.TriggerChainID, app.TriggerAccounts, app.TriggerNetwork:
	case app.TriggerBalance:
		if len(rest) > 0 {
			args.Address, err = chain.ParseAddress(rest[0])
		}
	case app.TriggerSignMessage:
		if err = need(1, "signMessage <text>"); err == nil {
			args.Message = strings.Join(rest, " ")
		}
	case app.TriggerSignTypedData:
		args.Typed, err = typedInput(true, "")
	case app.TriggerSendNative:
		if err = need(2, "sendNative <to> <amount>"); err == nil {
			var tr transfer
			tr, err = parseTransfer("", rest[0], rest[1], chain.NativeDecimals, 0)
			args.To, args.Amount = tr.to, tr.amount
		}
	case app.TriggerSendToken:
		if err = need(3, "sendToken <token> <to> <amount> [decimals]"); err == nil {
			decimals := int32(18)
			if len(rest) > 3 {
				var d int64
				if d, err = strconv.ParseInt(rest[3], 10, 32); err != nil {
					err = tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{"decimals": rest[3]})
				}
				decimals = int32(d)
			}
			if err == nil {
				var tr transfer
				tr, err = parseTransfer(rest[0], rest[1], rest[2], decimals, 0)
				args.Token, args.To, args.Amount = tr.token, tr.to, tr.amount
			}
		}
	default:
		err = tethererr.WithSuggestion(
			tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{"action": words[0]}),
			"Type 'help' for the list of actions")
	}
	return t, args, err
}

func renderShellResult(w io.Writer, res any) {
	switch v := res.(type) {
	case *broker.Session:
		_ = viewSession(v).fields().Render(w)
	case *big.Int:
		outln(w, v.String())
	case []common.Address:
		for _, addr := range v {
			outln(w, addr.Hex())
		}
	case *provider.Network:
		out(w, "%s (chain %s, %s)\n", v.Name, v.ChainID, v.Symbol)
	case *app.SignResult:
		_ = viewSignResult(v).fields().Render(w)
	case *types.Receipt:
		status := "success"
		if v.Status == types.ReceiptStatusFailed {
			status = "reverted"
		}
		out(w, "%s %s in block %s\n", v.TxHash.Hex(), status, v.BlockNumber)
	default:
		if res != nil {
			outln(w, res)
		}
	}
}

// splitLine splits on spaces, keeping double-quoted runs together.
func splitLine(line string) []string {
	var words []string
	var cur strings.Builder
	quoted, inWord := false, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			inWord = true
		case (r == ' ' || r == '\t') && !quoted:
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}
