package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/hupe1980/grantmesh/client"
	"github.com/hupe1980/grantmesh/config"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/evaluator"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/model/anthropic"
	"github.com/hupe1980/grantmesh/model/openai"
)

var (
	agentID     string
	agentType   string
	agentWallet string
	agentScore  float64
)

func init() {
	agentCmd.Flags().StringVar(&agentID, "id", "", "Agent id (defaults to <type>-agent)")
	agentCmd.Flags().StringVar(&agentType, "type", "", "Agent type: technical, ecosystem, budget, team or sentiment")
	agentCmd.Flags().StringVar(&agentWallet, "wallet", "", "Optional wallet or external identity")
	agentCmd.Flags().Float64Var(&agentScore, "static-score", 70, "Score used by the static provider")
	_ = agentCmd.MarkFlagRequired("type")
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a reference evaluator agent against a dispatcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		typ := core.AgentType(agentType)
		if !typ.Valid() {
			return fmt.Errorf("%w: agent type %q", core.ErrInvalidArgument, agentType)
		}
		id := agentID
		if id == "" {
			id = agentType + "-agent"
		}
		log := logger.WithAgent(id)

		scorer, err := newScorer(cfg.Evaluator, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := client.New(client.NewWebSocketTransport(cfg.Evaluator.Server), func(o *client.Options) {
			o.AgentID = id
			o.AgentType = typ
			o.Wallet = agentWallet
			o.Name = "grantmesh-agent"
			o.Logger = log
		})
		if err := c.Connect(ctx); err != nil {
			return err
		}
		defer c.Disconnect(cmd.Context())

		a := evaluator.New(c, typ, scorer, func(o *evaluator.Options) {
			o.PollInterval = cfg.Evaluator.PollInterval
			o.Logger = log
		})
		if err := a.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
			return err
		}
		return nil
	},
}

func newScorer(cfg config.EvaluatorConfig, logger *logging.MeshLogger) (evaluator.Scorer, error) {
	withLogger := func(o *evaluator.ModelScorerOptions) { o.Logger = logger }
	switch cfg.Provider {
	case "anthropic":
		m := anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdk.Model(cfg.Model)
			}
		})
		return evaluator.NewModelScorer(m, withLogger), nil
	case "openai":
		m := openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
		return evaluator.NewModelScorer(m, withLogger), nil
	case "static":
		return evaluator.StaticScorer{Value: agentScore}, nil
	}
	return nil, fmt.Errorf("unknown evaluator provider %q", cfg.Provider)
}
