package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/keepstate/pkg/registry"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// cliKey is the registration key the CLI uses for its ad hoc registrations.
const cliKey = "keepstate-cli"

var errNotFound = errors.New("entry not found")

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <field>",
		Short: "Show a stored entry",
		Long: "Get prints the stored value of a field and its expiration.\n" +
			"Expired entries are still shown and flagged as expired.",
		Example: "  keepstate get cart\n  keepstate --raw get shop.cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reg, backend, err := a.open()
			if err != nil {
				return err
			}
			defer deferClose(backend, &err)

			key := reg.StorageKey(args[0])
			raw, ok, err := backend.Get(key)
			if err != nil {
				return sysErr(fmt.Errorf("get %s: %w", key, err))
			}
			if !ok {
				return userErr(fmt.Errorf("%w: %s", errNotFound, key))
			}

			view := describe(reg.Namespace(), key, raw, a.now())
			if a.jsonMode {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	var expire time.Duration

	cmd := &cobra.Command{
		Use:   "set <field> <json>",
		Short: "Store a JSON value for a field",
		Long: "Set saves a JSON value the way a registry would, optionally with an\n" +
			"expiration relative to now. Setting null removes the entry.",
		Example: "  keepstate set theme '\"dark\"'\n  keepstate set token '\"abc\"' --expire 30m",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			field := args[0]
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return userErr(fmt.Errorf("value for %s is not valid JSON: %w", field, err))
			}

			reg, backend, err := a.open()
			if err != nil {
				return err
			}
			defer deferClose(backend, &err)

			var spec types.FieldSpec = types.Bare{Name: field}
			if expire > 0 {
				spec = types.WithExpiry{Name: field, TTL: expire}
			}
			if err := reg.Register(registry.MapAccessor{field: value}, cliKey, spec); err != nil {
				return userErr(err)
			}
			if err := reg.SaveState(cliKey); err != nil {
				return sysErr(err)
			}
			if err := closeStorage(backend); err != nil {
				return err
			}

			key := reg.StorageKey(field)
			if value == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", key)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expire, "expire", 0, "expire the entry this long after saving (e.g. 1500ms, 30m)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <field>",
		Short: "Remove a stored entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reg, backend, err := a.open()
			if err != nil {
				return err
			}
			defer deferClose(backend, &err)

			key := reg.StorageKey(args[0])
			if _, ok, err := backend.Get(key); err != nil {
				return sysErr(fmt.Errorf("get %s: %w", key, err))
			} else if !ok {
				return userErr(fmt.Errorf("%w: %s", errNotFound, key))
			}

			if err := reg.Register(registry.MapAccessor{}, cliKey, types.Bare{Name: args[0]}); err != nil {
				return userErr(err)
			}
			if err := reg.ClearStorage(cliKey); err != nil {
				return sysErr(err)
			}
			if err := closeStorage(backend); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored entries in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reg, backend, err := a.open()
			if err != nil {
				return err
			}
			defer deferClose(backend, &err)

			keys, err := namespaceKeys(backend, reg.Namespace())
			if err != nil {
				return err
			}

			now := a.now()
			views := make([]entryView, 0, len(keys))
			for _, key := range keys {
				raw, ok, err := backend.Get(key)
				if err != nil {
					return sysErr(fmt.Errorf("get %s: %w", key, err))
				}
				if ok {
					views = append(views, describe(reg.Namespace(), key, raw, now))
				}
			}

			if a.jsonMode {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			for _, v := range views {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

// namespaceKeys returns the sorted stored keys that start with namespace.
func namespaceKeys(backend types.KeyLister, namespace string) ([]string, error) {
	keys, err := backend.Keys()
	if err != nil {
		return nil, sysErr(fmt.Errorf("list keys: %w", err))
	}
	matched := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, namespace) {
			matched = append(matched, key)
		}
	}
	return matched, nil
}

// namespaceFields registers every stored field of the namespace under
// cliKey and returns how many there are.
func namespaceFields(reg *registry.Registry, backend types.KeyLister) (int, error) {
	keys, err := namespaceKeys(backend, reg.Namespace())
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if name := strings.TrimPrefix(key, reg.Namespace()); name != "" {
			names = append(names, name)
		}
	}
	if err := reg.Register(registry.MapAccessor{}, cliKey, types.Fields(names...)...); err != nil {
		return 0, sysErr(err)
	}
	return len(names), nil
}
