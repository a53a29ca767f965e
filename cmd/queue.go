package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the job queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs and their statuses",
	RunE: func(cmd *cobra.Command, args []string) error {
		qs, err := queue.NewSQLite(cfg.Queue.DatabasePath)
		if err != nil {
			return eris.Wrap(err, "open queue store")
		}
		defer qs.Close()

		ctx := cmd.Context()

		processing, err := qs.Processing(ctx)
		if err != nil {
			return eris.Wrap(err, "read processing marker")
		}
		if processing != "" {
			if job, err := qs.GetJob(ctx, processing); err == nil {
				printJob(job)
			}
		}

		pending, err := qs.Pending(ctx)
		if err != nil {
			return eris.Wrap(err, "list pending")
		}
		for _, id := range pending {
			job, err := qs.GetJob(ctx, id)
			if err != nil {
				fmt.Printf("%-36s  <unreadable: %v>\n", id, err)
				continue
			}
			printJob(job)
		}

		if processing == "" && len(pending) == 0 {
			fmt.Println("queue is empty")
		}
		return nil
	},
}

var queueTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Enqueue a coordinator job",
	RunE: func(cmd *cobra.Command, args []string) error {
		qs, err := queue.NewSQLite(cfg.Queue.DatabasePath)
		if err != nil {
			return eris.Wrap(err, "open queue store")
		}
		defer qs.Close()

		manager := queue.NewManager(qs,
			queue.WithProcessingTimeout(cfg.Queue.ProcessingTimeout),
			queue.WithRetentionTTL(cfg.Queue.RetentionTTL),
		)
		id, err := manager.EnqueueCoordinator(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "enqueue coordinator")
		}
		fmt.Println(id)
		return nil
	},
}

var queueWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Run one dequeue-and-process cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		job, err := e.Worker.Process(cmd.Context())
		if job == nil && err == nil {
			fmt.Println("nothing to process")
			return nil
		}
		if job != nil {
			printJob(job)
		}
		return err
	},
}

func printJob(job *model.Job) {
	errStr := ""
	if job.Error != "" {
		errStr = "  error: " + job.Error
	}
	fmt.Printf("%-36s  %-14s  %-10s  %s%s\n",
		job.ID, job.Type, job.Status, job.CreatedAt.Format("2006-01-02 15:04:05"), errStr)
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueTriggerCmd)
	queueCmd.AddCommand(queueWorkCmd)
	rootCmd.AddCommand(queueCmd)
}
