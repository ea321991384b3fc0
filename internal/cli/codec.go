package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/seiql/internal/codec"
	"github.com/roach88/seiql/internal/ir"
)

// CodecOptions holds flags for the encode and decode commands.
type CodecOptions struct {
	*RootOptions
	Type string
}

// CodecOutput is the encode/decode payload.
type CodecOutput struct {
	Type  string `json:"type"`
	Tag   uint8  `json:"tag"`
	Value string `json:"value"`
	Hex   string `json:"hex"`
	Size  int    `json:"size"`
}

func (o *CodecOptions) tag() (ir.TypeTag, error) {
	tag, err := ir.ParseTypeTag(o.Type)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid --type", err)
	}
	return tag, nil
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <value>",
		Short: "Show the on-chain bytes of a value",
		Long: `Encode a value the way it is written to a chain cell.

Examples:
  seiql encode --type ADDRESS 0xc37cB62C6Ad31842D8ba5c748f972d63C3f60569
  seiql encode --type FLOAT 12.5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "column type: INTEGER, FLOAT, TEXT, BOOL, ADDRESS or BLOB (required)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode on-chain cell bytes",
		Long: `Decode 0x-prefixed cell bytes read from the chain.

Example:
  seiql decode --type BOOL 0x01`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "column type: INTEGER, FLOAT, TEXT, BOOL, ADDRESS or BLOB (required)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runEncode(opts *CodecOptions, value string, cmd *cobra.Command) error {
	tag, err := opts.tag()
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	data, err := codec.Encode(ir.IRString(value), tag, "value")
	if err != nil {
		return formatter.Fail(err)
	}
	out := CodecOutput{Type: tag.String(), Tag: uint8(tag), Value: value, Hex: "0x" + hex.EncodeToString(data), Size: len(data)}
	return formatter.Success(out, func(w io.Writer) { writeCodec(w, out) })
}

func runDecode(opts *CodecOptions, input string, cmd *cobra.Command) error {
	tag, err := opts.tag()
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	raw := strings.TrimPrefix(strings.TrimPrefix(input, "0x"), "0X")
	data, err := hex.DecodeString(raw)
	if err != nil {
		return formatter.Fail(ir.WrapError(ir.CodeValidation, err, "invalid hex %q", input))
	}
	v, err := codec.Decode(data, tag)
	if err != nil {
		return formatter.Fail(err)
	}
	out := CodecOutput{Type: tag.String(), Tag: uint8(tag), Value: ir.Display(v), Hex: "0x" + hex.EncodeToString(data), Size: len(data)}
	return formatter.Success(out, func(w io.Writer) { writeCodec(w, out) })
}

func writeCodec(w io.Writer, out CodecOutput) {
	fmt.Fprintf(w, "%s (tag %d, %d bytes)\n", out.Type, out.Tag, out.Size)
	fmt.Fprintf(w, "  value: %s\n", out.Value)
	fmt.Fprintf(w, "  hex:   %s\n", out.Hex)
}
