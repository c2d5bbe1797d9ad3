package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"foxylend/services/lending/server"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatAmount renders a decimal amount with thousands separators. Values
// that fail to parse are returned untouched.
func formatAmount(raw string) string {
	if raw == "" {
		return "-"
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return humanize.BigComma(v)
}

func formatStart(unix uint64) string {
	if unix == 0 {
		return "-"
	}
	return humanize.Time(time.Unix(int64(unix), 0))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printOffers(w io.Writer, offers []server.OfferView) error {
	if len(offers) == 0 {
		_, err := fmt.Fprintln(w, "no offers")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCOLLECTION\tAMOUNT\tOWNER\tBORROWER\tTOKEN\tSTARTED")
	for _, o := range offers {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Status, o.CollectionID, formatAmount(o.Amount), o.Owner,
			orDash(o.Borrower), orDash(o.TokenID), formatStart(o.StartTime))
	}
	return tw.Flush()
}

func printOffer(w io.Writer, o *server.OfferView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Offer\t%d\n", o.ID)
	fmt.Fprintf(tw, "Status\t%s\n", o.Status)
	fmt.Fprintf(tw, "Collection\t%d\n", o.CollectionID)
	fmt.Fprintf(tw, "Amount\t%s\n", formatAmount(o.Amount))
	fmt.Fprintf(tw, "Owner\t%s\n", o.Owner)
	fmt.Fprintf(tw, "Borrower\t%s\n", orDash(o.Borrower))
	fmt.Fprintf(tw, "Token\t%s\n", orDash(o.TokenID))
	fmt.Fprintf(tw, "Started\t%s\n", formatStart(o.StartTime))
	return tw.Flush()
}

func printCollections(w io.Writer, collections []server.CollectionView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFLOOR\tAPY\tMAX TIME\tCONTRACT")
	for _, c := range collections {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\t%s\n",
			c.ID, c.Name, formatAmount(c.FloorPrice), c.APY,
			(time.Duration(c.MaxTime) * time.Second).String(), orDash(c.Contract))
	}
	return tw.Flush()
}

func printResult(w io.Writer, res *server.ResultView) error {
	if res.OfferID != 0 {
		fmt.Fprintf(w, "%s offer %d: %s\n", res.Action, res.OfferID, res.Outcome)
	} else {
		fmt.Fprintf(w, "%s: %s\n", res.Action, res.Outcome)
	}
	if len(res.Attributes) > 0 {
		keys := make([]string, 0, len(res.Attributes))
		for k := range res.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s\n", k, res.Attributes[k])
		}
	}
	if len(res.Transfers) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  KIND\tTO\tAMOUNT\tTOKEN")
	for _, t := range res.Transfers {
		amount := "-"
		if t.Amount != "" {
			amount = formatAmount(t.Amount) + " " + t.Denom
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", t.Kind, t.To, amount, orDash(t.TokenID))
	}
	return tw.Flush()
}

func printJobs(w io.Writer, jobs []server.JobView) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "no jobs")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tSTATUS\tACTION\tKIND\tOFFER\tTO\tAMOUNT\tATTEMPTS\tERROR")
	for _, j := range jobs {
		amount := orDash(j.TokenID)
		if j.Amount != "" {
			amount = formatAmount(j.Amount)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			j.Position, j.Status, j.Action, j.Kind, j.OfferID, j.To, amount, j.Attempts, orDash(j.LastError))
	}
	return tw.Flush()
}
