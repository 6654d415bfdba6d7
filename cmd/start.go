package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gloomers/gossip"
	"github.com/adamgarcia4/goLearning/gloomers/logger"
	"github.com/adamgarcia4/goLearning/gloomers/metrics"
	"github.com/adamgarcia4/goLearning/gloomers/node"
	"github.com/adamgarcia4/goLearning/gloomers/transport"
)

// Defaults matter for commands that do not register every flag.
var (
	workload       = node.DefaultWorkload
	gossipInterval = node.DefaultGossipInterval
	manualGossip   bool
	estimatePolicy = string(gossip.PolicyEvidence)
	queueWarnDepth = node.DefaultQueueWarnDepth
	metricsAddr    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run a node on standard input and output",
	Long: `Run a single node. Messages are read from standard input, one JSON document per
line, and replies and gossip are written to standard output. Logs go to standard error.

Examples:
  # Broadcast node, gossiping every second
  gloomers start

  # Other workloads
  gloomers start --workload=echo
  gloomers start --workload=unique-ids

  # Faster gossip, with metrics on :9100/metrics
  gloomers start --gossip-interval=200ms --metrics-addr=:9100`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&workload, "workload", "w", node.DefaultWorkload,
		fmt.Sprintf("Workload to run (%s, %s, %s)", node.WorkloadBroadcast, node.WorkloadEcho, node.WorkloadUniqueIDs))
	addGossipFlags(startCmd)
	startCmd.Flags().IntVar(&queueWarnDepth, "queue-warn-depth", node.DefaultQueueWarnDepth, "Warn when this many work items are waiting (0 disables)")
	startCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")
}

// addGossipFlags registers the flags shared by start and interactive.
func addGossipFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&gossipInterval, "gossip-interval", "i", node.DefaultGossipInterval, "Time between anti-entropy rounds")
	cmd.Flags().BoolVar(&manualGossip, "manual-gossip", false, "Only gossip when triggered")
	cmd.Flags().StringVar(&estimatePolicy, "estimate-policy", string(gossip.PolicyEvidence),
		fmt.Sprintf("How neighbor estimates grow (%s, %s)", gossip.PolicyEvidence, gossip.PolicyOptimistic))
}

// buildConfig applies the CLI flags over node.DefaultConfig.
func buildConfig() (*node.Config, error) {
	config := node.DefaultConfig()
	config.Workload = workload
	config.GossipInterval = gossipInterval
	config.ManualGossip = manualGossip
	config.EstimatePolicy = gossip.Policy(estimatePolicy)
	config.QueueWarnDepth = queueWarnDepth

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return config, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	// Standard output is the protocol channel; logs go to stderr.
	if err := logger.Init(logger.Options{Level: logLevel, Development: devLog}); err != nil {
		return err
	}
	defer logger.Sync()

	config, err := buildConfig()
	if err != nil {
		return err
	}

	stdio := transport.NewStdio(os.Stdin, os.Stdout)
	n, err := node.New(config, nil, stdio)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr); err != nil {
				logger.L().Error("metrics server failed", zap.String("addr", metricsAddr), zap.Error(err))
			}
		}()
	}

	logger.L().Info("node starting",
		zap.String("workload", config.Workload),
		zap.Duration("gossip_interval", config.GossipInterval),
		zap.String("estimate_policy", string(config.EstimatePolicy)),
	)
	if err := n.Run(ctx, stdio); err != nil {
		logger.Errorf("node stopped: %v", err)
		return err
	}
	if ctx.Err() != nil {
		logger.Infof("Shutting down...")
	}
	return nil
}
