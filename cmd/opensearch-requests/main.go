// Command opensearch-requests applies security directives to a search domain.
// Inside the Lambda runtime it serves invocations; elsewhere it handles one
// event read from a file or stdin.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk/invoke"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/security"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

const name = "opensearch-requests"

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		h, err := newHandler(context.Background(), os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		lambda.Start(h.Handle)
		return
	}
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type eventHandler interface {
	Handle(ctx context.Context, e security.Event) (security.Result, error)
}

// newHandler builds the direct handler from DOMAIN, REGION, REQUEST_TIMEOUT and LOG_LEVEL.
func newHandler(ctx context.Context, logOut io.Writer) (*security.Handler, error) {
	cfg, err := security.LoadHandlerConfig(nil)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awssdk.LoadDefault(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log := logging.New(name, cfg.LogLevel, logOut)
	return security.NewHandler(cfg.Domain, cfg.Region, awsCfg.Credentials,
		security.WithLogger(log),
		security.WithTimeout(cfg.RequestTimeout))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	eventPath := fs.String("event", "-", "event JSON file, - for stdin")
	function := fs.String("function", "", "send the event to this deployed handler function instead of applying it directly")
	region := fs.String("region", "", "region of the handler function")
	logLevel := fs.String("log-level", "info", "log level used with -function")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readEvent(*eventPath, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	ev, err := security.ParseEvent(raw)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var h eventHandler
	if *function != "" {
		awsCfg, err := awssdk.LoadDefault(ctx, *region)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		h = invoke.NewFromConfig(awsCfg, *function, logging.New(name, *logLevel, stderr))
	} else {
		direct, err := newHandler(ctx, stderr)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		h = direct
	}

	res, err := h.Handle(ctx, ev)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func readEvent(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event %s: %w", path, err)
	}
	return b, nil
}
