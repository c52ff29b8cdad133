package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Terminal3D/DLMS-Parser/internal/auth"
	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/octetstring"
)

// errInvalidHex is returned by validate and classify for malformed input.
var errInvalidHex = errors.New("input is not an even number of hexadecimal digits")

// hexArg joins the arguments so an unquoted, space-separated frame works.
func hexArg(args []string) string {
	return strings.Join(args, " ")
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate HEX",
		Short: "Check that input is well-formed hex without decoding it",
		Long: `Check that input is well-formed hex. Whitespace is ignored and case is
normalised; the normalised form is printed on success.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := hexArg(args)
			if !dlms.Validate(input) {
				return errInvalidHex
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %s\n", dlms.Normalize(input))
			return nil
		},
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify HEX",
		Short: "Guess what an octet-string value holds",
		Long: `Run the octet-string classifier over a hex value and print the
analysis as JSON: text, OBIS code, date-time or raw bytes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := hexArg(args)
			if !dlms.Validate(input) {
				return errInvalidHex
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(octetstring.Classify(dlms.Normalize(input)))
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an argon2id hash for security.auth.password_hash",
		Long: `Print an argon2id hash for security.auth.password_hash.

The password is read from the first line of stdin when no argument is
given, which keeps it out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
