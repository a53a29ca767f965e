package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/store"
)

var (
	recordsSource   string
	recordsMinScore float64
	recordsLimit    int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect processed opportunity records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, filterable by source and minimum idea score",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListRecords(cmd.Context(), store.RecordFilter{
			SourceID: recordsSource,
			MinScore: recordsMinScore,
			Limit:    recordsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		if len(recs) == 0 {
			fmt.Println("no records")
			return nil
		}
		for i := range recs {
			printRecord(&recs[i])
		}
		return nil
	},
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetRecord(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "get record")
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode record")
		}
		fmt.Println(string(out))
		return nil
	},
}

var recordsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-insert records from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := importRecords(cmd.Context(), st, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("imported %d records\n", n)
		return nil
	},
}

// importRecords loads a JSON array of records and bulk-inserts them,
// assigning ids and timestamps where the file omits them.
func importRecords(ctx context.Context, st store.Store, path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrap(err, "read records file")
	}

	var recs []model.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return 0, eris.Wrap(err, "parse records file")
	}
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = uuid.NewString()
		}
		if recs[i].CreatedAt.IsZero() {
			recs[i].CreatedAt = time.Now().UTC()
		}
	}

	n, err := st.InsertRecords(ctx, recs)
	if err != nil {
		return n, eris.Wrap(err, "insert records")
	}
	return n, nil
}

func printRecord(rec *model.Record) {
	var top float64
	for _, idea := range rec.Ideas {
		if idea.Score > top {
			top = idea.Score
		}
	}
	fmt.Printf("%-36s  %-12s  %5.1f  %2d ideas  %s\n",
		rec.ID, rec.SourceID, top, len(rec.Ideas), rec.CreatedAt.Format("2006-01-02 15:04:05"))
}

func init() {
	recordsListCmd.Flags().StringVar(&recordsSource, "source", "", "filter by source document id")
	recordsListCmd.Flags().Float64Var(&recordsMinScore, "min-score", 0, "only records with an idea at or above this score")
	recordsListCmd.Flags().IntVar(&recordsLimit, "limit", 0, "maximum records to print (0 = all)")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsImportCmd)
	rootCmd.AddCommand(recordsCmd)
}
