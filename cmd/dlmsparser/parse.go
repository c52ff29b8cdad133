package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/export"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/interpret"
)

// formatFields prints interpretation rows instead of a document.
const formatFields = "fields"

func newParseCmd(opts *cliOptions) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "parse [hex...]",
		Short: "Decode one or more hex frames",
		Long: `Decode hex frames given as arguments, or one per line on stdin when no
arguments are given. Whitespace inside a frame is ignored.

A single frame is decoded on its own; several frames are decoded as an
all-or-nothing batch.`,
		Example: `  dlmsparser parse "C0 01 C1 00 01 00 00 2A 00 00 FF 02 00"
  cat frames.txt | dlmsparser parse --format xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			inputs := args
			if len(inputs) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				inputs = dlms.SplitLines(string(data))
			}
			if len(inputs) == 0 {
				return errors.New("no hex input given")
			}

			pipe, closePipe, err := opts.openPipeline(cmd)
			if err != nil {
				return err
			}
			defer closePipe()

			var messages []dlms.Message
			if len(inputs) == 1 {
				msg, decodeErr := pipe.Decode(cmd.Context(), history.SourceCLI, inputs[0])
				if decodeErr != nil {
					return decodeFailure(decodeErr)
				}
				messages = []dlms.Message{msg}
			} else {
				messages, err = pipe.DecodeBatch(cmd.Context(), history.SourceCLI, inputs)
				if err != nil {
					return decodeFailure(err)
				}
			}

			return writeOutput(cmd, out, func(w io.Writer) error {
				return writeMessages(w, messages, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "output format: json, xml or fields")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to a file instead of stdout")

	return cmd
}

func newBatchCmd(opts *cliOptions) *cobra.Command {
	var file, format, out string

	cmd := &cobra.Command{
		Use:   "batch --file frames.txt",
		Short: "Decode a file of hex frames, one per line",
		Long: `Decode every non-blank line of a file as one all-or-nothing batch.
If any line fails, nothing is written and the failing lines are reported.
Use "-" to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			pipe, closePipe, err := opts.openPipeline(cmd)
			if err != nil {
				return err
			}
			defer closePipe()

			messages, err := pipe.DecodeText(cmd.Context(), history.SourceCLI, string(data))
			if err != nil {
				return decodeFailure(err)
			}

			return writeOutput(cmd, out, func(w io.Writer) error {
				return writeMessages(w, messages, format)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "file of hex frames, one per line (- for stdin)")
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "output format: json, xml or fields")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to a file instead of stdout")
	//nolint:errcheck // flag is defined above
	cmd.MarkFlagRequired("file")

	return cmd
}

// checkFormat rejects an unknown --format before anything is decoded.
func checkFormat(format string) error {
	if strings.EqualFold(strings.TrimSpace(format), formatFields) {
		return nil
	}
	_, err := export.ParseFormat(format)
	return err
}

// writeMessages renders messages as an export document or as
// interpretation rows, one block per message.
func writeMessages(w io.Writer, messages []dlms.Message, format string) error {
	if strings.EqualFold(strings.TrimSpace(format), formatFields) {
		for i, msg := range messages {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if err := interpret.WriteText(w, interpret.Fields(msg)); err != nil {
				return err
			}
		}
		return nil
	}

	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	body, err := export.Render(messages, f)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", f, err)
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}

// readInput reads path, or the command's stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return data, nil
}

// writeOutput runs write against --out, or the command's stdout when out is empty.
func writeOutput(cmd *cobra.Command, out string, write func(io.Writer) error) error {
	if out == "" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck // already failing
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}
