package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tatianab/hustle/internal/market"
	"github.com/tatianab/hustle/internal/models"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func newAssetsCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List the investable assets and their starting prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			assets, err := market.DefaultAssets()
			if err != nil {
				return err
			}
			accent.Printf("%-14s %-20s %-10s %10s %8s\n", "ID", "NAME", "SECTOR", "PRICE", "CHANGE")
			for _, a := range assets {
				if filter != "" && string(a.Type) != filter {
					continue
				}
				neutral.Printf("%-14s %-20s %-10s %10s ", a.ID, a.DisplayName, a.Sector, models.Naira(a.Price))
				printChange(a)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "type", "", "only list equity or fund assets")
	return cmd
}

func printChange(a models.Asset) {
	if len(a.History) < 2 {
		fmt.Println()
		return
	}
	prev := a.History[len(a.History)-2]
	diff := a.Price - prev
	pct := float64(diff) / float64(prev) * 100
	switch {
	case diff > 0:
		success.Printf("%+7.1f%%\n", pct)
	case diff < 0:
		danger.Printf("%+7.1f%%\n", pct)
	default:
		neutral.Printf("%7.1f%%\n", pct)
	}
}
