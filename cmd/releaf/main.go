package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/releaf/internal/metrics"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	DB          string `help:"Path to SQLite run history (empty disables)." default:"data/releaf.db" env:"RELEAF_DB"`
	OutputDir   string `help:"Directory for summaries and rendered PNGs (empty disables)." default:"out" env:"RELEAF_OUTPUT_DIR"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address while running." env:"RELEAF_METRICS_ADDR"`

	AlignScale float64 `help:"Regional calibration scale about the image centre." default:"1.95"`
	AlignNorth float64 `help:"Regional calibration offset north in metres." default:"-5"`
	AlignEast  float64 `help:"Regional calibration offset east in metres." default:"10"`
	MaxSpots   int     `help:"Maximum critical spots kept per location." default:"5"`
	PreviewURL string  `help:"Per-spot preview URL template with {lat} and {lon}." env:"RELEAF_PREVIEW_URL"`

	OverpassURL string `help:"Overpass API endpoint." default:"https://overpass-api.de/api/interpreter" env:"OVERPASS_URL"`

	OpenAIKey     string        `help:"API key for the vision model." env:"OPENAI_API_KEY"`
	VisionModel   string        `help:"Vision model name." default:"gpt-4o-mini" env:"RELEAF_VISION_MODEL"`
	VisionBaseURL string        `help:"OpenAI-compatible API base URL." env:"OPENAI_BASE_URL"`
	ImageryURL    string        `help:"Ground-level imagery URL template with {lat} and {lon}." env:"RELEAF_IMAGERY_URL"`
	ImageryDir    string        `help:"Directory of ground-level images named by coordinate." env:"RELEAF_IMAGERY_DIR"`
	ImageCacheDir string        `help:"Disk cache for fetched ground-level images." default:"data/imagery" env:"RELEAF_IMAGE_CACHE"`
	RedisURL      string        `help:"Redis URL for caching vision records." env:"REDIS_URL"`
	SpotTimeout   time.Duration `help:"Timeout for one spot's image fetch and model call." default:"60s"`
}

type CLI struct {
	Globals

	Analyze AnalyzeCmd `cmd:"" help:"Analyse a single location."`
	Batch   BatchCmd   `cmd:"" help:"Analyse every location in a YAML manifest."`
	Enrich  EnrichCmd  `cmd:"" help:"Run ground-level vision enrichment on the spots of a stored run."`
	Runs    RunsCmd    `cmd:"" help:"List stored runs."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("releaf"),
		kong.Description("Scores urban locations for tree planting priority."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if cli.MetricsAddr != "" {
		go serveMetrics(cli.MetricsAddr)
	}

	err := kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Printf("metrics: listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics: %v", err)
	}
}
