package cmd

import (
	"fmt"
	"os"

	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbosity  int
	port       int
	dbPath     string
	gcsBucket  string
	sessionKey string
	geminiKey  string
	workers    int
)

var rootCmd = &cobra.Command{
	Use:   "garmin-wrapped",
	Short: "Garmin Wrapped - your year of training as a shareable story",
	Long: `Garmin Wrapped fetches a year of activity and wellness data from
Garmin Connect, distills it into highlights, records, and trends, and
serves it as a swipeable year-in-review.

The server runs with:
- Session-based login against Garmin Connect
- Concurrent data fetching with progress streamed over SSE
- Cached reports per account, invalidated when the activity type
  selection changes
- Optional AI-generated commentary via Gemini (set --gemini-key)

Reports persist in a local SQLite database by default; pass --gcs-bucket
to store them in Google Cloud Storage instead.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on verbosity before any command runs
		logging.Setup(logging.Level(verbosity))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		rtCfg := &RuntimeConfig{
			Port:       port,
			DBPath:     dbPath,
			GCSBucket:  gcsBucket,
			SessionKey: sessionKey,
			GeminiKey:  geminiKey,
			Workers:    workers,
		}
		return Run(rtCfg)
	},
}

func init() {
	// Logging verbosity
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v for debug, -vv for trace with HTTP requests)")

	// Runtime settings as CLI flags
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 8080, "HTTP server port")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "garmin_wrapped.db", "path to SQLite database file")
	rootCmd.PersistentFlags().StringVar(&gcsBucket, "gcs-bucket", "", "Google Cloud Storage bucket for report storage (overrides --db)")
	rootCmd.PersistentFlags().StringVar(&sessionKey, "session-key", "", "session cookie signing key (at least 32 chars; generated per run if empty)")
	rootCmd.PersistentFlags().StringVar(&geminiKey, "gemini-key", os.Getenv("GEMINI_API_KEY"), "Gemini API key for AI commentary (defaults to GEMINI_API_KEY)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 5, "concurrent fetch workers per report")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
