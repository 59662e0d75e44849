package main

import (
	"github.com/Paintersrp/servectl/internal/cli"
	"github.com/Paintersrp/servectl/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
