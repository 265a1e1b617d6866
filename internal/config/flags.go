package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/speedata/optionparser"

	"github.com/local/collager/internal/imagerender"
	"github.com/local/collager/internal/layout"
)

// DefaultOutput is the document written when -o is not given.
const DefaultOutput = "collage.pdf"

// ErrUsage marks command-line mistakes.
var ErrUsage = errors.New("usage error")

// CLIConfig holds what only the command line can say.
type CLIConfig struct {
	Inputs  []string
	Output  string
	Preview string
	// RunID asks for the stored report of an earlier run instead of a new one.
	RunID   string
	Check   bool
	Version bool
	Help    bool
}

// ParseArgs applies command-line flags on top of cfg. args includes the
// program name, as os.Args does. Flags win over the environment.
func ParseArgs(args []string, cfg *Config) (*optionparser.OptionParser, error) {
	var output, preview, heuristic, wrap, filter string
	var seedErr error
	shuffle := cfg.Layout.Shuffle

	op := optionparser.NewOptionParser()
	op.Banner = "Usage: collager [options] <image file or folder>...\n\nLays out images onto a single PDF page."
	op.Coda = "\nInputs may be local files, folders (not descended) or s3://bucket/key and s3://bucket/prefix/ references."
	op.On("-o", "--output FILE", "Output PDF path or s3:// URL (default "+DefaultOutput+")", &output)
	op.On("--shuffle", "Shuffle image order before placement", &shuffle)
	op.On("--seed N", "Seed for --shuffle (0 draws one from the clock)", func(s string) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			seedErr = fmt.Errorf("%w: invalid --seed %q", ErrUsage, s)
			return
		}
		cfg.Layout.Seed = n
	})
	op.On("--heuristic NAME", "Scale heuristic: area or aggregate", &heuristic)
	op.On("--wrap NAME", "Row wrap policy: row or stream", &wrap)
	op.On("--filter NAME", "Resize filter: nearest, bilinear or lanczos", &filter)
	op.On("--preview FILE", "Also render the written page to a PNG", &preview)
	op.On("--status RUN_ID", "Print the stored status and layout of an earlier run, then exit", &cfg.CLI.RunID)
	op.On("--check", "Report reachability of Redis, S3 and the PDF renderer, then exit", &cfg.CLI.Check)
	op.On("--version", "Print version and exit", &cfg.CLI.Version)
	op.On("-h", "--help", "Show this help", &cfg.CLI.Help)

	if err := op.ParseFrom(args); err != nil {
		return op, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if seedErr != nil {
		return op, seedErr
	}

	cfg.Layout.Shuffle = shuffle
	if output != "" {
		cfg.CLI.Output = output
	}
	if cfg.CLI.Output == "" {
		cfg.CLI.Output = DefaultOutput
	}
	cfg.CLI.Preview = preview
	if heuristic != "" {
		cfg.Layout.Heuristic = layout.Heuristic(normalize(heuristic))
	}
	if wrap != "" {
		cfg.Layout.WrapPolicy = layout.WrapPolicy(normalize(wrap))
	}
	if filter != "" {
		cfg.Render.Filter = imagerender.Filter(normalize(filter))
	}
	cfg.CLI.Inputs = append([]string(nil), op.Extra...)

	if cfg.CLI.Help || cfg.CLI.Version || cfg.CLI.Check || cfg.CLI.RunID != "" {
		return op, nil
	}
	if len(cfg.CLI.Inputs) == 0 {
		return op, fmt.Errorf("%w: at least one image file or folder is required", ErrUsage)
	}
	for _, in := range cfg.CLI.Inputs {
		if strings.TrimSpace(in) == "" {
			return op, fmt.Errorf("%w: empty input path", ErrUsage)
		}
	}
	return op, nil
}
