package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // Test seams for interactive input
var (
	stdinIsTerminal  = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } //nolint:gosec // Fd fits in int on supported platforms
	promptProviderFn = func(kinds []wallet.Kind) (wallet.Kind, error) {
		return promptProvider(os.Stdin, os.Stderr, kinds)
	}
)

// promptProvider lists kinds and reads a choice by number or name.
func promptProvider(in io.Reader, w io.Writer, kinds []wallet.Kind) (wallet.Kind, error) {
	outln(w, "Select a wallet provider:")
	for i, k := range kinds {
		out(w, "  %d) %s\n", i+1, k)
	}
	out(w, "Choice [1]: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", tethererr.Wrap(err, "reading provider choice")
	}
	choice := strings.TrimSpace(line)
	if choice == "" {
		return kinds[0], nil
	}

	if n, convErr := strconv.Atoi(choice); convErr == nil {
		if n < 1 || n > len(kinds) {
			return "", tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{
				"choice": choice,
				"valid":  "1-" + strconv.Itoa(len(kinds)),
			})
		}
		return kinds[n-1], nil
	}

	kind, err := wallet.ParseKind(choice)
	if err != nil {
		return "", err
	}
	for _, k := range kinds {
		if k == kind {
			return kind, nil
		}
	}
	return "", tethererr.WithDetails(tethererr.ErrConnectionUnavailable, map[string]string{
		"provider": kind.String(),
		"reason":   "provider is not offered",
	})
}

// chooseKind resolves the provider to connect with. An explicit name wins;
// otherwise a lone offer is taken, a terminal user is asked, and a script
// gets the first offer.
func chooseKind(requested string, offered []wallet.Kind) (wallet.Kind, error) {
	if requested != "" {
		return wallet.ParseKind(requested)
	}
	switch {
	case len(offered) == 0:
		return "", tethererr.WithSuggestion(tethererr.ErrConnectionUnavailable,
			"Enable a provider in config.yaml or start a local wallet")
	case len(offered) == 1 || !stdinIsTerminal():
		return offered[0], nil
	}
	return promptProviderFn(offered)
}
