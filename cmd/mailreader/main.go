package main

import (
	"context"
	"os"

	"github.com/nhle/mailreader/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
