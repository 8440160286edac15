package main

import (
	"context"
	"fmt"
	"os"

	p "github.com/pulumi/pulumi-go-provider"

	provider "github.com/mikecbrant/opensearch-search-stack/internal/pulumi"
)

// Set via -ldflags in release
var version = "0.0.0"

func main() {
	prov, err := provider.NewProvider()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := p.RunProvider(context.Background(), "search-stack", version, prov); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
