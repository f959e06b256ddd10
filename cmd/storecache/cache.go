package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/canonical/store-api-go/cache"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("not found")

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Report whether the configured cache backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if !a.cache.Available() {
			return errors.Newf("%s backend unavailable, falling back to the local store", a.cfg.Cache.Backend)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s backend available\n", a.cfg.Cache.Backend)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a cached value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		attrs, err := attrFlags(cmd)
		if err != nil {
			return err
		}
		shape := cache.PlainText
		if structured, _ := cmd.Flags().GetBool("structured"); structured {
			shape = cache.Structured
		}
		value, found, err := a.cache.Get(cmd.Context(), args[0], shape, attrs...)
		if err != nil {
			return err
		}
		if !found {
			return errors.Wrapf(errNotFound, "%s", a.cache.Key(args[0], attrs...))
		}
		if shape == cache.PlainText {
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		}
		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a value, parsed as JSON with --structured",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		attrs, err := attrFlags(cmd)
		if err != nil {
			return err
		}
		var value any = args[1]
		if structured, _ := cmd.Flags().GetBool("structured"); structured {
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return errors.Wrap(err, "value is not JSON")
			}
		}
		if err := a.cache.Set(cmd.Context(), args[0], value, a.cfg.Cache.TTL.Std(), attrs...); err != nil {
			return err
		}
		a.log.Debug("stored %s for %s", a.cache.Key(args[0], attrs...), a.cfg.Cache.TTL)
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:   "del KEY",
	Short: "Remove a cached value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		attrs, err := attrFlags(cmd)
		if err != nil {
			return err
		}
		a.cache.Delete(cmd.Context(), args[0], attrs...)
		return nil
	},
}

// attrFlags turns repeated --attr name=value flags into key attributes.
func attrFlags(cmd *cobra.Command) ([]cache.Attr, error) {
	raw, _ := cmd.Flags().GetStringArray("attr")
	attrs := make([]cache.Attr, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, errors.Newf("invalid --attr %q, expected name=value", kv)
		}
		attrs = append(attrs, cache.Attr{Name: name, Value: value})
	}
	return attrs, nil
}

func init() {
	for _, cmd := range []*cobra.Command{getCmd, setCmd, delCmd} {
		cmd.Flags().StringArray("attr", nil, "key attribute as name=value, repeatable")
	}
	getCmd.Flags().Bool("structured", false, "decode the value as JSON")
	setCmd.Flags().Bool("structured", false, "parse VALUE as JSON")
}
