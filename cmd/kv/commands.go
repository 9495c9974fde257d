package kv

import (
	"fmt"
	"strings"

	"github.com/relock/sentinel/rpc/common"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			return printResponse(dispatcher.Set(cmd.Context(), key, value))
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(dispatcher.Get(cmd.Context(), args[0]))
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(dispatcher.Delete(cmd.Context(), args[0]))
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			fmt.Printf("key=%s, found=%t\n", key, dispatcher.Exists(cmd.Context(), key))
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys [pattern]",
		Short: "Lists the keys matching a pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			keys, ok := dispatcher.Keys(cmd.Context(), pattern)
			if !ok {
				return fmt.Errorf("no keys received")
			}
			fmt.Println(strings.Join(keys, "\n"))
			return nil
		},
	}
	ttlCmd = &cobra.Command{
		Use:   "ttl [key] [value]",
		Short: "Reads the time to live of a key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value int64
			if len(args) == 2 {
				var err error
				if value, err = cast.ToInt64E(args[1]); err != nil {
					return fmt.Errorf("value must be a number: %w", err)
				}
			}
			ttl, ok := dispatcher.TTL(cmd.Context(), args[0], value)
			fmt.Printf("key=%s, found=%t, ttl=%d\n", args[0], ok, ttl)
			return nil
		},
	}
	expireCmd = &cobra.Command{
		Use:   "expire [key] [seconds]",
		Short: "Sets the expiry of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := cast.ToInt64E(args[1])
			if err != nil {
				return fmt.Errorf("seconds must be a number: %w", err)
			}
			return printResponse(dispatcher.Expire(cmd.Context(), args[0], seconds))
		},
	}
)

// printResponse prints a response, an unavailable cluster is an error
func printResponse(resp common.Response) error {
	if !resp.Available() {
		return fmt.Errorf("cluster unavailable: %v", resp.Err)
	}
	fmt.Println(resp)
	return nil
}
