package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jalakoo/neo4j-transfer/internal/config"
	"github.com/jalakoo/neo4j-transfer/internal/core"
	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
	"github.com/jalakoo/neo4j-transfer/pkg/utils"
)

var (
	cfgPath string
	cfg     *config.Config
)

func main() {
	root := &cobra.Command{
		Use:   "neo4j-transfer",
		Short: "Move nodes and relationships between Neo4j databases, with provenance-scoped undo",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err == nil {
				log.Println("Loaded environment from .env")
			}
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			} else {
				cfg = config.Default()
			}
			return utils.InitLogger(cfg.Log.Level, cfg.Log.Format)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to TOML config file")

	root.AddCommand(labelsCmd(), typesCmd(), transferCmd(), revertCmd(), purgeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildService() (*core.Service, error) {
	source, err := driver.NewNeo4jDriver(driver.Credentials{
		URI:      cfg.Source.URI,
		Username: cfg.Source.Username,
		Password: cfg.Source.Password,
		Database: cfg.Source.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}

	target, err := driver.NewNeo4jDriver(driver.Credentials{
		URI:      cfg.Target.URI,
		Username: cfg.Target.Username,
		Password: cfg.Target.Password,
		Database: cfg.Target.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("target driver: %w", err)
	}

	svc := core.NewService(source, target, core.NewLedger(), utils.GetLogger())
	svc.ApplyTransferConfig(cfg.Transfer)
	return svc, nil
}

func labelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List node labels present in the source database",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			labels, err := svc.Reader.Labels(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range labels {
				fmt.Println(l)
			}
			return nil
		},
	}
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List relationship types present in the source database",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			types, err := svc.Reader.RelationshipTypes(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range types {
				fmt.Println(t)
			}
			return nil
		},
	}
}

func transferCmd() *cobra.Command {
	var spec model.TransferSpec

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer selected entities from source to target",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			totals, err := svc.Reader.Counts(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Printf("source matches %d nodes, %d relationships\n", totals.Nodes, totals.Rels)

			rec, err := svc.Transfer(cmd.Context(), spec)
			if rec.ID != "" {
				fmt.Println(rec.String())
				if rec.Status != model.StatusComplete {
					fmt.Printf("revert with: neo4j-transfer revert --timestamp %q --ts-key %q\n",
						rec.TagValue(), rec.Spec.TimestampKey)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&spec.All, "all", false, "transfer the entire graph")
	cmd.Flags().StringSliceVar(&spec.NodeLabels, "labels", nil, "node labels to transfer")
	cmd.Flags().StringSliceVar(&spec.RelationshipTypes, "types", nil, "relationship types to transfer")
	cmd.Flags().IntVar(&spec.BatchSize, "batch-size", 0, "entities per bulk write (default 1000)")
	cmd.Flags().StringVar(&spec.OriginalIDKey, "id-key", "", "override provenance id property key")
	cmd.Flags().StringVar(&spec.TimestampKey, "ts-key", "", "override provenance timestamp property key")
	cmd.Flags().BoolVar(&spec.Overwrite, "overwrite", false, "clobber pre-existing properties under the provenance keys")
	return cmd
}

func revertCmd() *cobra.Command {
	var timestamp, tsKey string

	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Delete everything a prior transfer wrote to the target",
		Long: "Deletes every target entity whose provenance timestamp property matches\n" +
			"the given value. Relationships go first, then nodes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			counts, err := svc.RevertTimestamp(cmd.Context(), tsKey, timestamp)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d nodes, %d relationships\n", counts.Nodes, counts.Rels)
			return nil
		},
	}

	cmd.Flags().StringVar(&timestamp, "timestamp", "", "provenance timestamp of the transfer to revert (required)")
	cmd.Flags().StringVar(&tsKey, "ts-key", model.DefaultTimestampKey, "provenance timestamp property key")
	cmd.MarkFlagRequired("timestamp")
	return cmd
}

func purgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Irreversibly delete the entire target graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			deleted, err := svc.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d nodes\n", deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
