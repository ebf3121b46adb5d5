package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/ctnfastfood/cart/internal/domain"
	"github.com/ctnfastfood/cart/internal/event"
	"github.com/ctnfastfood/cart/internal/notify"
	pkgkafka "github.com/ctnfastfood/cart/pkg/kafka"
)

func (c *cli) showCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the items, total and item count of a cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeFn, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			summary := s.Summary()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, summary domain.Summary) error {
	if len(summary.Items) == 0 {
		_, err := fmt.Fprintln(w, "Cart is empty.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tQTY\tPRICE\tSUBTOTAL")
	for _, item := range summary.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.ID, item.Name, item.Category, item.Quantity,
			item.UnitPrice.StringFixed(2), item.Subtotal().StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Total: Rs %s (%d items)\n", summary.TotalDisplay, summary.ItemCount)
	return err
}

func (c *cli) exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the cart snapshot as an indented JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeFn, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			data, err := s.Export()
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d items to %s\n", len(s.Items()), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to FILE instead of stdout")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE|-",
		Short: "Replace the cart with a snapshot read from FILE or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			s, closeFn, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			summary, err := s.Import(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d items (%d units), total Rs %s\n",
				len(summary.Items), summary.ItemCount, summary.TotalDisplay)
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func (c *cli) clearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cart without --yes")
			}

			s, closeFn, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := s.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", s.Key())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm clearing the cart")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print cart changes published to Kafka until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}

			consumerCfg := pkgkafka.ConsumerConfig{
				Brokers:     cfg.KafkaBrokers,
				GroupID:     cfg.KafkaGroupID,
				Topic:       event.TopicCartChanged,
				StartOffset: kafka.LastOffset,
			}
			consumer := pkgkafka.NewConsumerWithReader(
				c.deps.newReader(consumerCfg),
				consumerCfg,
				changePrinter(cmd.OutOrStdout(), c.sessionID),
				c.logger(cmd, cfg),
			)
			return consumer.Start(cmd.Context())
		},
	}
}

// changePrinter prints one line per cart change. A non-empty sessionID
// limits output to that session's cart.
func changePrinter(w io.Writer, sessionID string) pkgkafka.Handler {
	return func(_ context.Context, e *pkgkafka.Event) error {
		var change notify.Change
		if err := e.UnmarshalData(&change); err != nil {
			return fmt.Errorf("decode %s: %w", e.EventType, err)
		}
		if sessionID != "" && !strings.HasSuffix(change.CartKey, ":"+sessionID) {
			return nil
		}

		line := fmt.Sprintf("%s  %-7s %s  items=%d total=%s",
			change.At.Format("15:04:05"), change.Action, change.CartKey,
			change.ItemCount, change.Total.StringFixed(2))
		if change.ItemID != "" {
			line += " id=" + change.ItemID
		}
		if change.Name != "" {
			line += fmt.Sprintf(" item=%q", change.Name)
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}
