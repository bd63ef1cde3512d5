package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func deadLetterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Inspects and manages dead-lettered tasks",
	}
	cmd.AddCommand(deadLetterListCmd(), deadLetterRequeueCmd(), deadLetterClearCmd())
	return cmd
}

func deadLetterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists dead-lettered tasks, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			queue, closeQueue := openQueue(config)
			defer closeQueue()

			tasks, err := queue.DeadTasks()
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("No dead-lettered tasks")
				return nil
			}
			for _, task := range tasks {
				fmt.Printf("%s  queue=%s type=%s attempts=%d error=%q\n",
					task.Id, task.Queue, task.Type, task.Attempts, task.LastError)
			}
			return nil
		},
	}
}

func deadLetterRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Requeues every dead-lettered task with a fresh attempt budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			queue, closeQueue := openQueue(config)
			defer closeQueue()

			requeued, err := queue.RequeueDead()
			if err != nil {
				return err
			}
			log.Infof("Requeued %d dead-lettered tasks", requeued)
			return nil
		},
	}
}

func deadLetterClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discards every dead-lettered task",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			queue, closeQueue := openQueue(config)
			defer closeQueue()

			cleared, err := queue.ClearDead()
			if err != nil {
				return err
			}
			log.Infof("Cleared %d dead-lettered tasks", cleared)
			return nil
		},
	}
}
