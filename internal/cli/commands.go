package cli

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	xhttp "TradeDesk/pkg/http"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type globals struct {
	server  string
	timeout time.Duration
}

// NewRootCmd creates the deskctl root command.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "deskctl",
		Short:         "Operate a running TradeDesk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("DESKCTL_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&g.server, "server", server, "desk base URL (env DESKCTL_SERVER)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newHealthCmd(g),
		newStocksCmd(g),
		newSystemCmd(g),
		newAnalysisCmd(g),
		newRecommendationsCmd(g),
		newEvidenceCmd(g),
		newCalibrationCmd(g),
		newTradingCmd(g),
		newAccountCmd(g),
		newDepartmentsCmd(g),
		newConfigCmd(g),
		newQuoteCmd(g),
	)
	return root
}

// call runs one request and prints the payload.
func (g *globals) call(cmd *cobra.Command, method, path string, query map[string][]string, body any) error {
	data, err := NewDesk(g.server, g.timeout).Call(cmd.Context(), method, path, query, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func (g *globals) get(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return g.call(cmd, xhttp.MethodGet, path, nil, nil)
	}
}

func (g *globals) post(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return g.call(cmd, xhttp.MethodPost, path, nil, nil)
	}
}

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the desk is up",
		Args:  cobra.NoArgs,
		RunE:  g.get("/health"),
	}
}

func newStocksCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "stocks", Short: "Manage the symbol pool"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add SYMBOL",
			Short: "Add a symbol to the pool",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, xhttp.MethodPost, "/api/stocks/add", nil, map[string]string{"symbol": args[0]})
			},
		},
		&cobra.Command{
			Use:   "remove SYMBOL",
			Short: "Remove a symbol and its state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, xhttp.MethodPost, "/api/stocks/remove", nil, map[string]string{"symbol": args[0]})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the active symbols",
			Args:  cobra.NoArgs,
			RunE:  g.get("/api/stocks/list"),
		},
	)
	return cmd
}

func newSystemCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "system", Short: "Control the scheduler"}
	cmd.AddCommand(
		&cobra.Command{Use: "start", Short: "Start the control loop", Args: cobra.NoArgs, RunE: g.post("/api/system/start")},
		&cobra.Command{Use: "stop", Short: "Stop the control loop", Args: cobra.NoArgs, RunE: g.post("/api/system/stop")},
		&cobra.Command{Use: "run-once", Short: "Run every stage once as a background job", Args: cobra.NoArgs, RunE: g.post("/api/system/run-once")},
		&cobra.Command{Use: "run-selection", Short: "Run stock selection as a background job", Args: cobra.NoArgs, RunE: g.post("/api/system/run-selection")},
		&cobra.Command{Use: "status", Short: "Show scheduler status", Args: cobra.NoArgs, RunE: g.get("/api/system/status")},
		&cobra.Command{Use: "progress", Short: "Show stage progress and next runs", Args: cobra.NoArgs, RunE: g.get("/api/system/progress")},
		&cobra.Command{Use: "jobs", Short: "List background jobs", Args: cobra.NoArgs, RunE: g.get("/api/system/jobs")},
		&cobra.Command{
			Use:   "job ID",
			Short: "Show one background job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, xhttp.MethodGet, "/api/system/jobs/"+args[0], nil, nil)
			},
		},
		newReloadCmd(g),
	)
	return cmd
}

func newReloadCmd(g *globals) *cobra.Command {
	var (
		provider string
		stages   []string
	)
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Rebuild the evaluators, optionally overriding providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{}
			if provider != "" {
				body["default"] = provider
			}
			if len(stages) > 0 {
				m, err := parsePairs(stages)
				if err != nil {
					return err
				}
				body["stages"] = m
			}
			return g.call(cmd, xhttp.MethodPost, "/api/system/reload", nil, body)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "default evaluator provider")
	cmd.Flags().StringSliceVar(&stages, "stage", nil, "per-stage provider as stage=provider (repeatable)")
	return cmd
}

func newAnalysisCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analysis [SYMBOL]",
		Short: "Show the latest analysis for all symbols or one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/analysis"
			if len(args) == 1 {
				path += "/" + args[0]
			}
			return g.call(cmd, xhttp.MethodGet, path, nil, nil)
		},
	}
}

func newRecommendationsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "Show the selection recommendation pool",
		Args:    cobra.NoArgs,
		RunE:    g.get("/api/recommendations"),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "select SYMBOL",
		Short: "Promote a recommendation into the symbol pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, xhttp.MethodPost, "/api/recommendations/select", nil, map[string]string{"symbol": args[0]})
		},
	})
	return cmd
}

func newEvidenceCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "evidence", Short: "Submit or list operator evidence"}

	var (
		symbol      string
		summary     string
		reliability float64
		broadcast   bool
		images      []string
	)
	submit := &cobra.Command{
		Use:   "submit TEXT",
		Short: "Submit a piece of evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"symbol":    symbol,
				"content":   args[0],
				"summary":   summary,
				"broadcast": broadcast,
				"source":    "deskctl",
			}
			if reliability > 0 {
				body["reliability"] = reliability
			}
			if len(images) > 0 {
				body["image_urls"] = images
			}
			return g.call(cmd, xhttp.MethodPost, "/api/evidence", nil, body)
		},
	}
	submit.Flags().StringVar(&symbol, "symbol", "", "target symbol (empty broadcasts)")
	submit.Flags().StringVar(&summary, "summary", "", "short summary")
	submit.Flags().Float64Var(&reliability, "reliability", 0, "source reliability in [0,1]")
	submit.Flags().BoolVar(&broadcast, "broadcast", false, "deliver to every symbol")
	submit.Flags().StringSliceVar(&images, "image", nil, "image URL (repeatable)")

	cmd.AddCommand(submit, &cobra.Command{
		Use:   "list",
		Short: "List pending evidence",
		Args:  cobra.NoArgs,
		RunE:  g.get("/api/evidence"),
	})
	return cmd
}

func newCalibrationCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "calibration", Short: "Train or inspect the calibration engine"}
	cmd.AddCommand(
		&cobra.Command{Use: "train", Short: "Refit the calibration parameters", Args: cobra.NoArgs, RunE: g.post("/api/calibration/train")},
		&cobra.Command{Use: "report", Short: "Show the last calibration report", Args: cobra.NoArgs, RunE: g.get("/api/calibration/report")},
	)
	return cmd
}

func newTradingCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "trading", Short: "Inspect the paper ledger"}

	var (
		symbol string
		since  string
		limit  int
	)
	history := &cobra.Command{
		Use:   "history",
		Short: "Show the trade history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.call(cmd, xhttp.MethodGet, "/api/trading/history", query("symbol", symbol, "since", since), nil)
		},
	}
	history.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	history.Flags().StringVar(&since, "since", "", "RFC3339 time, date or unix seconds")

	journal := &cobra.Command{
		Use:   "journal",
		Short: "Show archived trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.call(cmd, xhttp.MethodGet, "/api/trading/journal", query("symbol", symbol, "limit", strconv.Itoa(limit)), nil)
		},
	}
	journal.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	journal.Flags().IntVar(&limit, "limit", 100, "maximum rows")

	var symbols []string
	perSymbol := &cobra.Command{
		Use:   "symbols",
		Short: "Show per-symbol performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.call(cmd, xhttp.MethodGet, "/api/trading/performance/symbols", query("symbols", strings.Join(symbols, ",")), nil)
		},
	}
	perSymbol.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to report (default: the active pool)")

	cmd.AddCommand(
		&cobra.Command{Use: "account", Short: "Show the account", Args: cobra.NoArgs, RunE: g.get("/api/trading/account")},
		&cobra.Command{Use: "positions", Short: "Show open positions", Args: cobra.NoArgs, RunE: g.get("/api/trading/positions")},
		&cobra.Command{Use: "performance", Short: "Show portfolio performance", Args: cobra.NoArgs, RunE: g.get("/api/trading/performance")},
		perSymbol,
		history,
		journal,
	)
	return cmd
}

func newAccountCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage per-user paper accounts"}

	var accountType, accountID string
	create := &cobra.Command{
		Use:   "create USER",
		Short: "Open a paper account that follows the desk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"user_id": args[0], "account_type": accountType}
			if accountID != "" {
				body["account_id"] = accountID
			}
			return g.call(cmd, xhttp.MethodPost, "/api/account/create", nil, body)
		},
	}
	create.Flags().StringVar(&accountType, "type", "paper", "account type")
	create.Flags().StringVar(&accountID, "id", "", "account id (default: generated)")

	userPath := func(user, suffix string) string {
		return "/api/account/" + url.PathEscape(user) + suffix
	}
	var symbol string
	trades := &cobra.Command{
		Use:   "trades USER",
		Short: "Show a user's trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, xhttp.MethodGet, userPath(args[0], "/trades"), query("symbol", symbol), nil)
		},
	}
	trades.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "get USER",
			Short: "Show a user's account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, xhttp.MethodGet, userPath(args[0], ""), nil, nil)
			},
		},
		&cobra.Command{
			Use:   "status USER",
			Short: "Show a user's balance and positions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, xhttp.MethodGet, userPath(args[0], "/status"), nil, nil)
			},
		},
		trades,
	)
	return cmd
}

func newDepartmentsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "departments SYMBOL",
		Short: "Show each stage's conclusion and the quant output of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, xhttp.MethodGet, "/api/departments/"+args[0], nil, nil)
		},
	}
}

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect the runtime configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Show the effective providers and cadences",
		Args:  cobra.NoArgs,
		RunE:  g.get("/api/config/current"),
	})
	return cmd
}

func newQuoteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Fetch a market quote through the desk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, xhttp.MethodGet, "/api/market/quote/"+args[0], nil, nil)
		},
	}
}

// query builds query params from key/value pairs, skipping empty values.
func query(kv ...string) map[string][]string {
	q := make(map[string][]string)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q[kv[i]] = []string{kv[i+1]}
		}
	}
	return q
}

func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid stage override %q, want stage=provider", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
