package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	vcore "github.com/liliang-cn/vcore"
)

var (
	dataPath  string
	dimension int
	metric    string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "vcore",
	Short: "CLI tool for the vcore vector store",
	Long:  `A command-line interface for managing vectors in a vcore store.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		fmt.Printf("Vector store initialized at %s with %d dimensions\n", dataPath, dimension)
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		metadataStr, _ := cmd.Flags().GetString("metadata")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		if len(vector) == 0 {
			return fmt.Errorf("vector is required")
		}

		metadata := vcore.Metadata{}
		if metadataStr != "" {
			var raw map[string]any
			if err := json.Unmarshal([]byte(metadataStr), &raw); err != nil {
				return fmt.Errorf("invalid metadata JSON: %w", err)
			}
			for k, v := range raw {
				metadata[k] = v
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		id, err := store.Store(ctx, vector, metadata)
		if err != nil {
			return fmt.Errorf("failed to store vector: %w", err)
		}

		fmt.Printf("Stored vector as '%s'\n", id)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a vector by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		r, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get record: %w", err)
		}
		if r == nil {
			return fmt.Errorf("record '%s' not found", id)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(r, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Printf("ID: %s\n", r.ID)
			fmt.Printf("Vector: %v\n", r.Vector)
			fmt.Printf("Metadata: %v\n", r.Metadata)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		existed, err := store.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		if !existed {
			return fmt.Errorf("record '%s' not found", id)
		}

		fmt.Printf("Record '%s' deleted successfully\n", id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for similar vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		filterStr, _ := cmd.Flags().GetString("filter")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		opts := vcore.SearchOptions{K: k}
		if threshold != 0 {
			opts.Threshold = &threshold
		}
		if filterStr != "" {
			filter, err := parseKVFilter(filterStr)
			if err != nil {
				return err
			}
			opts.Filter = filter
		}

		ctx := context.Background()
		results, err := store.Search(ctx, vector, opts)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Printf("Found %d results:\n", len(results))
			for i, r := range results {
				fmt.Printf("%d. %s (score: %.4f)\n", i+1, r.ID, r.Score)
				if verbose {
					fmt.Printf("   Metadata: %v\n", r.Metadata)
				}
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		usage := store.GetMemoryUsage(ctx)

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(map[string]any{
				"count":      store.Size(),
				"dimension":  dimension,
				"bytesUsed":  usage.TotalBytes,
				"memoryCap":  usage.CapBytes,
				"ratio":      usage.Ratio,
			}, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Println("Store Statistics:")
			fmt.Printf("  Total Vectors: %d\n", store.Size())
			fmt.Printf("  Vector Dimensions: %d\n", dimension)
			fmt.Printf("  Estimated Memory: %.2f MB (%.1f%% of cap)\n", float64(usage.TotalBytes)/(1024*1024), usage.Ratio*100)
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Report the pruning stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		stats := store.GetPruningStats(ctx)
		fmt.Printf("Total pruned: %d\n", stats.TotalPruned)
		fmt.Printf("Pruning events: %d\n", stats.EventCount)
		fmt.Printf("Avg duration: %.2fms\n", stats.AvgDurationMs)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a timestamped backup of the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		path, err := store.CreateBackup(ctx)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup written to %s\n", path)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-path>",
	Short: "Restore the store from a backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backupPath := args[0]

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		if err := store.RestoreFromBackup(ctx, backupPath); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Println("Store restored successfully")
		return nil
	},
}

var similarityCmd = &cobra.Command{
	Use:   "similarity",
	Short: "Calculate similarity or distance between two vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		vector1Str, _ := cmd.Flags().GetString("vector1")
		vector2Str, _ := cmd.Flags().GetString("vector2")
		method, _ := cmd.Flags().GetString("method")

		v1, err := parseVector(vector1Str)
		if err != nil {
			return err
		}
		v2, err := parseVector(vector2Str)
		if err != nil {
			return err
		}
		if len(v1) != len(v2) {
			return fmt.Errorf("vectors must have the same dimensions")
		}

		score, err := vcore.Calculate(vcore.Metric(method), v1, v2)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %.6f\n", method, score)
		return nil
	},
}

func parseVector(str string) ([]float64, error) {
	if str == "" {
		return nil, nil
	}
	parts := strings.Split(str, ",")
	vector := make([]float64, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, val)
	}
	return vector, nil
}

// parseKVFilter turns "key=value,key2=value2" into an equality Filter, a
// convenience shorthand for the CLI; the full $and/$or/$computed filter
// language is only reachable through the library API.
func parseKVFilter(s string) (vcore.Filter, error) {
	filter := vcore.Filter{}
	pairs := strings.Split(s, ",")
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid filter term %q, expected key=value", pair)
		}
		filter[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return filter, nil
}

func openStore() (*vcore.Store, error) {
	if dataPath == "" {
		return nil, fmt.Errorf("data path not specified")
	}

	cfg := vcore.DefaultConfig()
	cfg.Dimension = dimension
	cfg.Path = dataPath
	if metric != "" {
		cfg.Metric = vcore.Metric(metric)
	}

	store, err := vcore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return store, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataPath, "path", "p", "./vdata", "Store data directory")
	rootCmd.PersistentFlags().IntVarP(&dimension, "dimension", "n", 0, "Vector dimension (0 for unchecked)")
	rootCmd.PersistentFlags().StringVarP(&metric, "metric", "m", "cosine", "Similarity metric (cosine/euclidean/angular)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	storeCmd.Flags().String("vector", "", "Vector values (comma-separated)")
	storeCmd.Flags().String("metadata", "", "Metadata as JSON")
	storeCmd.MarkFlagRequired("vector")

	getCmd.Flags().Bool("json", false, "Output as JSON")

	searchCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	searchCmd.Flags().Int("top-k", 10, "Number of results")
	searchCmd.Flags().Float64("threshold", 0.0, "Similarity/distance threshold")
	searchCmd.Flags().String("filter", "", "Metadata equality filters (key=value,key2=value2)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	searchCmd.MarkFlagRequired("vector")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	similarityCmd.Flags().String("vector1", "", "First vector (comma-separated)")
	similarityCmd.Flags().String("vector2", "", "Second vector (comma-separated)")
	similarityCmd.Flags().String("method", "cosine", "Metric (cosine/euclidean/angular)")
	similarityCmd.MarkFlagRequired("vector1")
	similarityCmd.MarkFlagRequired("vector2")

	rootCmd.AddCommand(
		initCmd,
		storeCmd,
		getCmd,
		deleteCmd,
		searchCmd,
		statsCmd,
		pruneCmd,
		backupCmd,
		restoreCmd,
		similarityCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
