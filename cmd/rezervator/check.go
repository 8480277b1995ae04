package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
)

type locationFlags struct {
	city   string
	region string
}

func (f *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.city, "city", "", "only count commitments in this city")
	cmd.Flags().StringVar(&f.region, "region", "", "province code of --city")
}

func (f *locationFlags) filter() (*model.Location, error) {
	if f.city == "" && f.region == "" {
		return nil, nil
	}
	if f.city == "" || f.region == "" {
		return nil, &model.ValidationError{Field: "location", Message: "--city and --region must be given together"}
	}
	return &model.Location{City: f.city, Region: f.region}, nil
}

func parseDay(s string) (dates.Date, error) {
	if s == "" {
		return dates.Today(dates.SystemClock{}), nil
	}
	d, err := dates.Parse(s)
	if err != nil {
		return dates.Date{}, &model.ValidationError{Field: "date", Message: err.Error()}
	}
	return d, nil
}

func newCheckCommand(configPath *string) *cobra.Command {
	var (
		on, end string
		loc     locationFlags
	)

	cmd := &cobra.Command{
		Use:   "check <item-id>",
		Short: "Print the availability of an item on a day or over a period",
		Long: "Without --end, prints the availability of the item on --date.\n" +
			"With --end, prints the peak commitment and minimum availability from --date to --end.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDay(on)
			if err != nil {
				return err
			}
			filter, err := loc.filter()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			var result any
			if end == "" {
				result, err = a.engine.CheckAvailability(cmd.Context(), args[0], start, filter)
			} else {
				var last dates.Date
				if last, err = dates.Parse(end); err != nil {
					return &model.ValidationError{Field: "end", Message: err.Error()}
				}
				result, err = a.engine.CheckAvailabilityOverPeriod(cmd.Context(), args[0], start, last, "")
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&on, "date", "d", "", "day to check, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&end, "end", "e", "", "last day of the period, YYYY-MM-DD")
	loc.register(cmd)
	return cmd
}

func newSnapshotCommand(configPath *string) *cobra.Command {
	var (
		on  string
		loc locationFlags
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the availability of every item on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDay(on)
			if err != nil {
				return err
			}
			filter, err := loc.filter()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			points, err := a.engine.CheckAvailabilityAllItems(cmd.Context(), day, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), points)
		},
	}
	cmd.Flags().StringVarP(&on, "date", "d", "", "day to check, YYYY-MM-DD (default: today)")
	loc.register(cmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
